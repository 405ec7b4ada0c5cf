// Package service implements the registry authority: the factory that
// creates guild instances, keeps the enumerable guild list, and keeps every
// guild's minter grants in step with its lifecycle.
package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"guildledger/internal/events"
	"guildledger/internal/guild/models"
	"guildledger/internal/registry/metrics"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
	"guildledger/pkg/requestcontext"
)

var tracer = otel.Tracer("guildledger/internal/registry")

type GuildStore interface {
	Create(ctx context.Context, g *models.Guild) error
	FindByAddress(ctx context.Context, address domain.Address) (*models.Guild, error)
	Update(ctx context.Context, g *models.Guild) error
	ListAll(ctx context.Context) ([]*models.Guild, error)
	Count(ctx context.Context) (uint64, error)
}

// Permissions is the part of the permission registry the authority drives.
type Permissions interface {
	Grant(ctx context.Context, caller domain.Address, asset domain.AssetID, grantee domain.Address) error
	RevokeAll(ctx context.Context, caller, grantee domain.Address, assets ...domain.AssetID) error
}

type Service struct {
	guilds      GuildStore
	permissions Permissions
	tx          tx.Runner
	// self is the authority's own principal; it administers the reward
	// assets and derives guild addresses.
	self domain.Address
	// admin is the deployer, the only principal allowed to remove guilds.
	admin     domain.Address
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

func New(guilds GuildStore, permissions Permissions, runner tx.Runner, self, admin domain.Address, opts ...Option) (*Service, error) {
	if guilds == nil {
		return nil, errors.New("guild store is required")
	}
	if permissions == nil {
		return nil, errors.New("permission registry is required")
	}
	if runner == nil {
		return nil, errors.New("transaction runner is required")
	}
	if self.IsZero() || admin.IsZero() {
		return nil, errors.New("registry and admin addresses are required")
	}
	s := &Service{guilds: guilds, permissions: permissions, tx: runner, self: self, admin: admin}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address is the authority's own principal.
func (s *Service) Address() domain.Address {
	return s.self
}

// CreateGuild registers a new active guild mastered by caller and grants it
// mint rights on every reward asset in the same transaction.
func (s *Service) CreateGuild(ctx context.Context, caller domain.Address, req *models.CreateGuildRequest) (*models.Guild, error) {
	ctx, span := tracer.Start(ctx, "registry.CreateGuild")
	defer span.End()

	req.Normalize()
	if err := req.Validate(); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	category, err := domain.ParseCategory(req.Category)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	var created *models.Guild
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		nonce, err := s.guilds.Count(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to count guilds")
		}
		address := domain.DeriveAddress(s.self, nonce)

		g, err := models.NewGuild(address, req.Name, req.Description, category, caller, nonce, requestcontext.Now(ctx))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid guild")
		}
		if err := s.guilds.Create(ctx, g); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "guild address already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store guild")
		}
		for _, asset := range domain.RewardAssets() {
			if err := s.permissions.Grant(ctx, s.self, asset, address); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant guild mint rights")
			}
		}
		created = g

		s.afterCommit(ctx, func(ctx context.Context) {
			if s.metrics != nil {
				s.metrics.IncrementGuildsCreated()
			}
			s.publish(ctx, events.GuildCreated, address, caller)
			s.logInfo(ctx, "guild created",
				"guild", address.String(),
				"master", caller.String(),
				"category", string(category),
			)
		})
		return nil
	})
	recordSpanError(span, err)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("guild", created.Address.String()))
	return created, nil
}

// RemoveGuild deactivates a guild and revokes its mint rights on every
// reward asset in the same transaction. Only the registry admin may remove.
func (s *Service) RemoveGuild(ctx context.Context, caller, guild domain.Address) error {
	ctx, span := tracer.Start(ctx, "registry.RemoveGuild", trace.WithAttributes(
		attribute.String("guild", guild.String()),
	))
	defer span.End()

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if caller != s.admin {
			return dErrors.New(dErrors.CodeUnauthorized, "only the registry admin can remove guilds")
		}
		g, err := s.findGuild(ctx, guild)
		if err != nil {
			return err
		}
		if err := g.CanRemove(); err != nil {
			return err
		}
		g.ApplyRemoval(requestcontext.Now(ctx))
		if err := s.guilds.Update(ctx, g); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update guild")
		}
		if err := s.permissions.RevokeAll(ctx, s.self, guild, domain.RewardAssets()...); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke guild mint rights")
		}

		s.afterCommit(ctx, func(ctx context.Context) {
			if s.metrics != nil {
				s.metrics.IncrementGuildsRemoved()
			}
			s.publish(ctx, events.GuildRemoved, guild, caller)
			s.logInfo(ctx, "guild removed", "guild", guild.String())
		})
		return nil
	})
	recordSpanError(span, err)
	return err
}

// GetAllGuilds lists every guild address in creation order, removed guilds
// included; callers filter on Active.
func (s *Service) GetAllGuilds(ctx context.Context) ([]domain.Address, error) {
	guilds, err := s.ListGuilds(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Address, 0, len(guilds))
	for _, g := range guilds {
		out = append(out, g.Address)
	}
	return out, nil
}

// ListGuilds is GetAllGuilds with the full records.
func (s *Service) ListGuilds(ctx context.Context) ([]*models.Guild, error) {
	var guilds []*models.Guild
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		guilds, err = s.guilds.ListAll(ctx)
		return err
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list guilds")
	}
	return guilds, nil
}

func (s *Service) GetGuildInfo(ctx context.Context, guild domain.Address) (*models.Guild, error) {
	var g *models.Guild
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		g, err = s.findGuild(ctx, guild)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Service) findGuild(ctx context.Context, address domain.Address) (*models.Guild, error) {
	g, err := s.guilds.FindByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "guild not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load guild")
	}
	return g, nil
}

func (s *Service) afterCommit(ctx context.Context, fn func(ctx context.Context)) {
	detached := context.WithoutCancel(ctx)
	tx.AfterCommit(ctx, func() { fn(detached) })
}

func (s *Service) publish(ctx context.Context, t events.Type, guild, actor domain.Address) {
	if s.publisher == nil {
		return
	}
	e := events.New(ctx, t)
	e.Guild = events.Addr(guild)
	e.Actor = events.Addr(actor)
	s.publisher.Publish(ctx, e)
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	args = append(args,
		"event", msg,
		"log_type", "ledger",
		"request_id", requestcontext.RequestID(ctx),
	)
	s.logger.InfoContext(ctx, msg, args...)
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
}
