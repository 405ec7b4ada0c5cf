package store

import (
	"context"
	"maps"
	"slices"
	"time"

	"guildledger/internal/permission/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

type grantKey struct {
	asset  domain.AssetID
	minter domain.Address
}

type state struct {
	grants map[grantKey]*models.MinterGrant
	order  []grantKey
	admins map[domain.AssetID]*models.AssetAdmin
}

func (s state) clone() state {
	return state{
		grants: maps.Clone(s.grants),
		order:  slices.Clip(s.order),
		admins: maps.Clone(s.admins),
	}
}

// InMemory keeps grants and asset admins in a tx.Cell, so writes made inside
// a tx.Memory transaction become visible only when it commits.
type InMemory struct {
	cell *tx.Cell[state]
}

func NewInMemory() *InMemory {
	return &InMemory{cell: tx.NewCell(state{
		grants: make(map[grantKey]*models.MinterGrant),
		admins: make(map[domain.AssetID]*models.AssetAdmin),
	}, state.clone)}
}

func (s *InMemory) FindGrant(ctx context.Context, asset domain.AssetID, minter domain.Address) (*models.MinterGrant, error) {
	g, ok := s.cell.Load(ctx).grants[grantKey{asset, minter}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

// SaveGrant inserts or replaces the grant for (asset, minter).
func (s *InMemory) SaveGrant(ctx context.Context, grant *models.MinterGrant) error {
	return s.cell.Update(ctx, func(st *state) error {
		key := grantKey{grant.Asset, grant.Minter}
		if _, existed := st.grants[key]; !existed {
			st.order = append(st.order, key)
		}
		cp := *grant
		st.grants[key] = &cp
		return nil
	})
}

// RevokeGrants revokes every active grant of minter on the given assets and
// returns the assets whose grant changed.
func (s *InMemory) RevokeGrants(ctx context.Context, minter domain.Address, assets []domain.AssetID, now time.Time) ([]domain.AssetID, error) {
	var revoked []domain.AssetID
	err := s.cell.Update(ctx, func(st *state) error {
		for _, asset := range assets {
			key := grantKey{asset, minter}
			g, ok := st.grants[key]
			if !ok || !g.IsActive() {
				continue
			}
			next := *g
			next.ApplyRevocation(now)
			st.grants[key] = &next
			revoked = append(revoked, asset)
		}
		return nil
	})
	return revoked, err
}

// ListGrantsByMinter returns every grant held by minter, in grant order.
func (s *InMemory) ListGrantsByMinter(ctx context.Context, minter domain.Address) ([]*models.MinterGrant, error) {
	st := s.cell.Load(ctx)
	var out []*models.MinterGrant
	for _, key := range st.order {
		if key.minter != minter {
			continue
		}
		cp := *st.grants[key]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) FindAdmin(ctx context.Context, asset domain.AssetID) (*models.AssetAdmin, error) {
	a, ok := s.cell.Load(ctx).admins[asset]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemory) SaveAdmin(ctx context.Context, admin *models.AssetAdmin) error {
	return s.cell.Update(ctx, func(st *state) error {
		cp := *admin
		st.admins[admin.Asset] = &cp
		return nil
	})
}
