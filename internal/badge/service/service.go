// Package service implements the badge issuer: a mint-only non-fungible
// token registry with per-owner enumeration.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"guildledger/internal/badge/metrics"
	"guildledger/internal/badge/models"
	"guildledger/internal/events"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
	"guildledger/pkg/requestcontext"
)

type Store interface {
	Append(ctx context.Context, badge models.Badge) (uint64, error)
	FindByID(ctx context.Context, tokenID uint64) (*models.Badge, error)
	TokensOfOwner(ctx context.Context, owner domain.Address) ([]uint64, error)
	Count(ctx context.Context) (uint64, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, asset domain.AssetID, principal domain.Address) error
}

type Service struct {
	store     Store
	auth      Authorizer
	tx        tx.Runner
	baseURI   string
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

// WithBaseURI sets the prefix TokenURI joins with a token id.
func WithBaseURI(uri string) Option {
	return func(s *Service) {
		s.baseURI = uri
	}
}

func New(store Store, auth Authorizer, runner tx.Runner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("badge store is required")
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

// Mint issues one badge to to on behalf of minter and returns its token id.
func (s *Service) Mint(ctx context.Context, minter, to domain.Address) (uint64, error) {
	var tokenID uint64
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.auth.Authorize(ctx, domain.AssetBadge, minter); err != nil {
			return err
		}
		if to.IsZero() {
			return dErrors.New(dErrors.CodeInvalidInput, "cannot mint to the zero address")
		}

		id, err := s.store.Append(ctx, models.Badge{
			Owner:    to,
			Minter:   minter,
			MintedAt: requestcontext.Now(ctx),
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store badge")
		}
		tokenID = id

		tx.AfterCommit(ctx, func() {
			if s.metrics != nil {
				s.metrics.IncrementMinted()
			}
			if s.publisher != nil {
				e := events.New(ctx, events.BadgeMinted)
				e.Actor = events.Addr(minter)
				e.Subject = events.Addr(to)
				e.Asset = domain.AssetBadge
				e.TokenID = id
				s.publisher.Publish(context.WithoutCancel(ctx), e)
			}
		})
		return nil
	})
	if err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "badge mint rejected",
				"minter", minter.String(),
				"code", string(dErrors.CodeOf(err)),
				"request_id", requestcontext.RequestID(ctx),
			)
		}
		return 0, err
	}
	return tokenID, nil
}

// TokensOfOwner lists owner's token ids in mint order.
func (s *Service) TokensOfOwner(ctx context.Context, owner domain.Address) ([]uint64, error) {
	var ids []uint64
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		ids, err = s.store.TokensOfOwner(ctx, owner)
		return err
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list badges")
	}
	return ids, nil
}

func (s *Service) BalanceOf(ctx context.Context, owner domain.Address) (uint64, error) {
	ids, err := s.TokensOfOwner(ctx, owner)
	if err != nil {
		return 0, err
	}
	return uint64(len(ids)), nil
}

// Get returns the badge record for tokenID.
func (s *Service) Get(ctx context.Context, tokenID uint64) (*models.Badge, error) {
	var badge *models.Badge
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		badge, err = s.store.FindByID(ctx, tokenID)
		return err
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "badge not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load badge")
	}
	return badge, nil
}

func (s *Service) OwnerOf(ctx context.Context, tokenID uint64) (domain.Address, error) {
	badge, err := s.Get(ctx, tokenID)
	if err != nil {
		return domain.Address{}, err
	}
	return badge.Owner, nil
}

// TokenURI returns the metadata location for an existing token. It is empty
// when no base URI is configured.
func (s *Service) TokenURI(ctx context.Context, tokenID uint64) (string, error) {
	if _, err := s.Get(ctx, tokenID); err != nil {
		return "", err
	}
	if s.baseURI == "" {
		return "", nil
	}
	return strings.TrimSuffix(s.baseURI, "/") + "/" + strconv.FormatUint(tokenID, 10), nil
}

func (s *Service) TotalSupply(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.store.Count(ctx)
		return err
	})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count badges")
	}
	return n, nil
}
