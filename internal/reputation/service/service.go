// Package service implements the reputation ledger: a fungible, mint-only
// balance per holder.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"guildledger/internal/events"
	"guildledger/internal/reputation/metrics"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/tx"
	"guildledger/pkg/requestcontext"
)

type Store interface {
	BalanceOf(ctx context.Context, holder domain.Address) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
	Credit(ctx context.Context, holder domain.Address, amount uint64) error
}

// Authorizer answers whether a principal may mint an asset right now.
type Authorizer interface {
	Authorize(ctx context.Context, asset domain.AssetID, principal domain.Address) error
}

type Service struct {
	store     Store
	auth      Authorizer
	tx        tx.Runner
	logger    *slog.Logger
	publisher events.Publisher
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, auth Authorizer, runner tx.Runner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("reputation store is required")
	}
	if auth == nil {
		return nil, errors.New("authorizer is required")
	}
	if runner == nil {
		return nil, errors.New("transaction runner is required")
	}
	s := &Service{store: store, auth: auth, tx: runner}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Mint credits amount to holder on behalf of minter. Mint rights are checked
// on every call. A zero amount is rejected so that a caller bug is not
// mistaken for a zero-reward task; callers skip the mint for those.
func (s *Service) Mint(ctx context.Context, minter, to domain.Address, amount uint64) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.auth.Authorize(ctx, domain.AssetReputation, minter); err != nil {
			return err
		}
		if to.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "cannot mint to the zero address")
		}
		if amount == 0 {
			return dErrors.New(dErrors.CodeInvalidInput, "mint amount must be positive")
		}

		supply, err := s.store.TotalSupply(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read total supply")
		}
		// Every balance is bounded by the supply, so this also guards the holder.
		if amount > math.MaxUint64-supply {
			return dErrors.New(dErrors.CodeInvalidInput, "mint would overflow total supply")
		}
		if err := s.store.Credit(ctx, to, amount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit balance")
		}

		if s.publisher != nil {
			e := events.New(ctx, events.ReputationMinted)
			e.Actor = events.Addr(minter)
			e.Subject = events.Addr(to)
			e.Asset = domain.AssetReputation
			e.Amount = amount
			tx.AfterCommit(ctx, func() {
				s.publisher.Publish(context.WithoutCancel(ctx), e)
			})
		}
		if s.metrics != nil {
			tx.AfterCommit(ctx, func() {
				s.metrics.AddMinted(amount)
			})
		}
		return nil
	})
	if err != nil {
		s.rejected(ctx, minter, err)
		return err
	}
	return nil
}

// Authorize re-checks minter's reputation mint rights without minting.
func (s *Service) Authorize(ctx context.Context, minter domain.Address) error {
	return s.auth.Authorize(ctx, domain.AssetReputation, minter)
}

func (s *Service) BalanceOf(ctx context.Context, holder domain.Address) (uint64, error) {
	var bal uint64
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		bal, err = s.store.BalanceOf(ctx, holder)
		return err
	})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return bal, nil
}

func (s *Service) TotalSupply(ctx context.Context) (uint64, error) {
	var supply uint64
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		supply, err = s.store.TotalSupply(ctx)
		return err
	})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read total supply")
	}
	return supply, nil
}

func (s *Service) rejected(ctx context.Context, minter domain.Address, err error) {
	code := dErrors.CodeOf(err)
	if s.metrics != nil {
		s.metrics.IncrementRejected(string(code))
	}
	if s.logger != nil {
		s.logger.WarnContext(ctx, "reputation mint rejected",
			"minter", minter.String(),
			"code", string(code),
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
