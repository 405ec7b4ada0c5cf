// Package service sequences mutating calls. Every submission gets a pending
// receipt immediately; a single sequencer goroutine then executes them one at
// a time in acceptance order and finalizes each receipt.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"guildledger/internal/submission/metrics"
	"guildledger/internal/submission/models"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/requestcontext"
)

const (
	defaultQueueSize    = 256
	defaultPollInterval = 250 * time.Millisecond
)

type Store interface {
	Create(ctx context.Context, r *models.Receipt) error
	Get(ctx context.Context, hash string) (*models.Receipt, error)
	Transition(ctx context.Context, next *models.Receipt, from models.Status) error
}

// Operation is the state change a submission performs. Its result becomes
// the receipt result once confirmed.
type Operation = func(ctx context.Context) (any, error)

type item struct {
	ctx     context.Context
	receipt models.Receipt
	op      Operation
}

type Service struct {
	store        Store
	queue        chan item
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *metrics.Metrics

	mu      sync.Mutex
	waiters map[string][]chan struct{}
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithQueueSize bounds how many submissions may wait for the sequencer.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queue = make(chan item, n)
		}
	}
}

// WithPollInterval sets how often Wait re-reads the store. Polling covers
// receipts finalized by another instance sharing the store.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("receipt store is required")
	}
	s := &Service{
		store:        store,
		queue:        make(chan item, defaultQueueSize),
		pollInterval: defaultPollInterval,
		waiters:      make(map[string][]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Submit records a pending receipt for op and queues it. The request context
// values (caller, request id, request time) travel with the operation, its
// cancellation does not.
func (s *Service) Submit(ctx context.Context, caller domain.Address, kind models.Kind, op Operation) (*models.Receipt, error) {
	if op == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "submission has no operation")
	}
	now := requestcontext.Now(ctx)
	r, err := models.NewReceipt(kind, caller, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create receipt")
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store receipt")
	}

	select {
	case s.queue <- item{ctx: context.WithoutCancel(ctx), receipt: *r, op: op}:
		s.observeQueue()
	default:
		failed := *r
		failed.ApplyFailure(dErrors.New(dErrors.CodeTimeout, "submission queue is full"), now)
		if err := s.store.Transition(ctx, &failed, models.StatusPending); err != nil {
			s.logError(ctx, "failed to finalize rejected submission", err, r)
		}
		s.observeOutcome(&failed)
		return nil, dErrors.New(dErrors.CodeTimeout, "submission queue is full")
	}

	s.logInfo(ctx, "submission accepted", r)
	return r, nil
}

// Run executes queued submissions until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case it := <-s.queue:
			s.observeQueue()
			s.process(it)
		}
	}
}

func (s *Service) process(it item) {
	ctx := it.ctx
	processing := it.receipt
	processing.Status = models.StatusProcessing
	if err := s.store.Transition(ctx, &processing, models.StatusPending); err != nil {
		// A cancelled receipt never runs.
		if !errors.Is(err, sentinel.ErrInvalidState) {
			s.logError(ctx, "failed to start submission", err, &processing)
		}
		s.notify(processing.Hash)
		return
	}

	result, opErr := it.op(ctx)

	final := processing
	now := time.Now()
	if opErr != nil {
		final.ApplyFailure(opErr, now)
	} else if err := final.ApplyConfirmation(result, now); err != nil {
		final.ApplyFailure(dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode result"), now)
	}

	if err := s.store.Transition(ctx, &final, models.StatusProcessing); err != nil {
		s.logError(ctx, "failed to finalize submission", err, &final)
	}
	s.observeOutcome(&final)
	if final.Failure != nil {
		s.logWarn(ctx, "submission failed", &final)
	} else {
		s.logInfo(ctx, "submission confirmed", &final)
	}
	s.notify(final.Hash)
}

// Get returns the current receipt for hash.
func (s *Service) Get(ctx context.Context, hash string) (*models.Receipt, error) {
	r, err := s.store.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "transaction not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load transaction")
	}
	return r, nil
}

// Wait blocks until the receipt is final or ctx is done. On timeout it
// returns the latest receipt together with a Timeout error.
func (s *Service) Wait(ctx context.Context, hash string) (*models.Receipt, error) {
	done := s.subscribe(hash)
	defer func() { s.unsubscribe(hash, done) }()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		r, err := s.Get(ctx, hash)
		if err != nil {
			return nil, err
		}
		if r.Status.IsFinal() {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return r, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction not finalized yet")
		case <-done:
			done = s.subscribe(hash)
		case <-ticker.C:
		}
	}
}

// Cancel withdraws a submission that has not started executing. Only the
// submitting caller may cancel.
func (s *Service) Cancel(ctx context.Context, caller domain.Address, hash string) (*models.Receipt, error) {
	r, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	if r.Caller != caller {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the submitter can cancel a transaction")
	}
	if r.Status != models.StatusPending {
		return nil, dErrors.New(dErrors.CodeConflict, "transaction is already "+string(r.Status))
	}

	cancelled := *r
	cancelled.ApplyCancellation(requestcontext.Now(ctx))
	if err := s.store.Transition(ctx, &cancelled, models.StatusPending); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeConflict, "transaction is already executing")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel transaction")
	}
	s.observeOutcome(&cancelled)
	s.logInfo(ctx, "submission cancelled", &cancelled)
	s.notify(hash)
	return &cancelled, nil
}

func (s *Service) subscribe(hash string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.waiters[hash] = append(s.waiters[hash], ch)
	return ch
}

func (s *Service) unsubscribe(hash string, ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.waiters[hash]
	for i, c := range list {
		if c == ch {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.waiters, hash)
		return
	}
	s.waiters[hash] = list
}

func (s *Service) notify(hash string) {
	s.mu.Lock()
	list := s.waiters[hash]
	delete(s.waiters, hash)
	s.mu.Unlock()
	for _, ch := range list {
		close(ch)
	}
}

func (s *Service) observeQueue() {
	if s.metrics != nil {
		s.metrics.SetQueueDepth(len(s.queue))
	}
}

func (s *Service) observeOutcome(r *models.Receipt) {
	if s.metrics != nil {
		s.metrics.ObserveOutcome(string(r.Kind), string(r.Status), r.SubmittedAt)
	}
}

func (s *Service) logInfo(ctx context.Context, msg string, r *models.Receipt) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, msg, receiptAttrs(ctx, r)...)
}

func (s *Service) logWarn(ctx context.Context, msg string, r *models.Receipt) {
	if s.logger == nil {
		return
	}
	args := receiptAttrs(ctx, r)
	if r.Failure != nil {
		args = append(args, "code", string(r.Failure.Code), "reason", r.Failure.Message)
	}
	s.logger.WarnContext(ctx, msg, args...)
}

func (s *Service) logError(ctx context.Context, msg string, err error, r *models.Receipt) {
	if s.logger == nil {
		return
	}
	s.logger.ErrorContext(ctx, msg, append(receiptAttrs(ctx, r), "error", err)...)
}

func receiptAttrs(ctx context.Context, r *models.Receipt) []any {
	return []any{
		"tx_hash", r.Hash,
		"kind", string(r.Kind),
		"status", string(r.Status),
		"caller", r.Caller.String(),
		"request_id", requestcontext.RequestID(ctx),
	}
}
