// Package service implements the permission registry: the authority on which
// principals may mint each reward asset.
//
// Every Authorize call reads the grant store; there is no cached decision, so
// a revocation is visible to the next mint attempt.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"guildledger/internal/events"
	"guildledger/internal/permission/models"
	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
	"guildledger/pkg/requestcontext"
)

type Store interface {
	FindGrant(ctx context.Context, asset domain.AssetID, minter domain.Address) (*models.MinterGrant, error)
	SaveGrant(ctx context.Context, grant *models.MinterGrant) error
	RevokeGrants(ctx context.Context, minter domain.Address, assets []domain.AssetID, now time.Time) ([]domain.AssetID, error)
	ListGrantsByMinter(ctx context.Context, minter domain.Address) ([]*models.MinterGrant, error)
	FindAdmin(ctx context.Context, asset domain.AssetID) (*models.AssetAdmin, error)
	SaveAdmin(ctx context.Context, admin *models.AssetAdmin) error
}

// Service is the permission registry.
type Service struct {
	store     Store
	tx        tx.Runner
	owner     domain.Address
	logger    *slog.Logger
	publisher events.Publisher
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

// New constructs the registry. owner is the deployer principal: the only
// caller allowed to appoint asset administrators.
func New(store Store, runner tx.Runner, owner domain.Address, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("permission store is required")
	}
	if runner == nil {
		return nil, errors.New("transaction runner is required")
	}
	if owner.IsZero() {
		return nil, errors.New("registry owner is required")
	}
	s := &Service{store: store, tx: runner, owner: owner}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Owner returns the deployer principal.
func (s *Service) Owner() domain.Address {
	return s.owner
}

// SetAdmin appoints the principal that may grant and revoke minters for asset.
func (s *Service) SetAdmin(ctx context.Context, caller domain.Address, asset domain.AssetID, admin domain.Address) error {
	if !asset.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown asset")
	}
	if admin.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "admin cannot be the zero address")
	}
	if caller != s.owner {
		return dErrors.New(dErrors.CodeUnauthorized, "only the registry owner can set asset admins")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		err := s.store.SaveAdmin(ctx, &models.AssetAdmin{
			Asset:     asset,
			Admin:     admin,
			UpdatedAt: requestcontext.Now(ctx),
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save asset admin")
		}
		s.logInfo(ctx, "asset admin set", "asset", string(asset), "admin", admin.String())
		return nil
	})
}

// Grant authorizes grantee to mint asset. Granting an active grant is a no-op.
func (s *Service) Grant(ctx context.Context, caller domain.Address, asset domain.AssetID, grantee domain.Address) error {
	if grantee.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "grantee cannot be the zero address")
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.requireAdmin(ctx, caller, asset); err != nil {
			return err
		}
		now := requestcontext.Now(ctx)

		existing, err := s.store.FindGrant(ctx, asset, grantee)
		switch {
		case err == nil && existing.IsActive():
			return nil
		case err == nil:
			existing.ApplyRegrant(caller, now)
			if err := s.store.SaveGrant(ctx, existing); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save grant")
			}
		case errors.Is(err, sentinel.ErrNotFound):
			grant, err := models.NewMinterGrant(asset, grantee, caller, now)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid grant")
			}
			if err := s.store.SaveGrant(ctx, grant); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save grant")
			}
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load grant")
		}

		s.emit(ctx, events.MinterGranted, caller, grantee, asset)
		return nil
	})
}

// Revoke withdraws grantee's right to mint asset. Revoking a missing or
// already revoked grant is a no-op.
func (s *Service) Revoke(ctx context.Context, caller domain.Address, asset domain.AssetID, grantee domain.Address) error {
	return s.RevokeAll(ctx, caller, grantee, asset)
}

// RevokeAll withdraws grantee's rights on every listed asset in one write.
// caller must administer each asset.
func (s *Service) RevokeAll(ctx context.Context, caller, grantee domain.Address, assets ...domain.AssetID) error {
	if len(assets) == 0 {
		return nil
	}
	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, asset := range assets {
			if err := s.requireAdmin(ctx, caller, asset); err != nil {
				return err
			}
		}
		revoked, err := s.store.RevokeGrants(ctx, grantee, assets, requestcontext.Now(ctx))
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke grants")
		}
		for _, asset := range revoked {
			s.emit(ctx, events.MinterRevoked, caller, grantee, asset)
		}
		return nil
	})
}

// IsMinter reports whether principal currently holds an active grant on asset.
func (s *Service) IsMinter(ctx context.Context, asset domain.AssetID, principal domain.Address) (bool, error) {
	err := s.Authorize(ctx, asset, principal)
	switch {
	case err == nil:
		return true, nil
	case dErrors.HasCode(err, dErrors.CodeUnauthorized), dErrors.HasCode(err, dErrors.CodePermissionRevoked):
		return false, nil
	default:
		return false, err
	}
}

// Authorize returns nil when principal may mint asset, PermissionRevoked when
// a grant existed and was revoked, and Unauthorized when none was ever made.
func (s *Service) Authorize(ctx context.Context, asset domain.AssetID, principal domain.Address) error {
	if !asset.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown asset")
	}
	var grant *models.MinterGrant
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		grant, err = s.store.FindGrant(ctx, asset, principal)
		return err
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeUnauthorized, "caller is not an authorized minter")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load grant")
	}
	if !grant.IsActive() {
		return dErrors.New(dErrors.CodePermissionRevoked, "minting permission has been revoked")
	}
	return nil
}

// ListGrants returns every grant, active or revoked, held by principal.
func (s *Service) ListGrants(ctx context.Context, principal domain.Address) ([]*models.MinterGrant, error) {
	var grants []*models.MinterGrant
	err := s.tx.View(ctx, func(ctx context.Context) error {
		var err error
		grants, err = s.store.ListGrantsByMinter(ctx, principal)
		return err
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	return grants, nil
}

func (s *Service) requireAdmin(ctx context.Context, caller domain.Address, asset domain.AssetID) error {
	if !asset.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown asset")
	}
	admin, err := s.store.FindAdmin(ctx, asset)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeUnauthorized, "asset has no admin")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load asset admin")
	}
	if admin.Admin != caller {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the asset admin")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, t events.Type, actor, subject domain.Address, asset domain.AssetID) {
	if s.publisher == nil {
		return
	}
	e := events.New(ctx, t)
	e.Actor = events.Addr(actor)
	e.Subject = events.Addr(subject)
	e.Asset = asset
	tx.AfterCommit(ctx, func() {
		s.publisher.Publish(context.WithoutCancel(ctx), e)
	})
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.InfoContext(ctx, msg, append(args, "request_id", requestcontext.RequestID(ctx))...)
}
