// Package guild stores guild records in creation order.
package guild

import (
	"context"
	"maps"
	"slices"

	"guildledger/internal/guild/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

type state struct {
	guilds map[domain.Address]*models.Guild
	order  []domain.Address
}

func (s state) clone() state {
	return state{guilds: maps.Clone(s.guilds), order: slices.Clip(s.order)}
}

// InMemory keeps guilds in a tx.Cell. Stored records are never modified in
// place; updates replace them.
type InMemory struct {
	cell *tx.Cell[state]
}

func NewInMemory() *InMemory {
	return &InMemory{cell: tx.NewCell(state{guilds: make(map[domain.Address]*models.Guild)}, state.clone)}
}

// Create inserts g. It fails with ErrAlreadyUsed if the address is taken.
func (s *InMemory) Create(ctx context.Context, g *models.Guild) error {
	return s.cell.Update(ctx, func(st *state) error {
		if _, ok := st.guilds[g.Address]; ok {
			return sentinel.ErrAlreadyUsed
		}
		cp := *g
		st.guilds[g.Address] = &cp
		st.order = append(st.order, g.Address)
		return nil
	})
}

func (s *InMemory) FindByAddress(ctx context.Context, address domain.Address) (*models.Guild, error) {
	g, ok := s.cell.Load(ctx).guilds[address]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *InMemory) Update(ctx context.Context, g *models.Guild) error {
	return s.cell.Update(ctx, func(st *state) error {
		if _, ok := st.guilds[g.Address]; !ok {
			return sentinel.ErrNotFound
		}
		cp := *g
		st.guilds[g.Address] = &cp
		return nil
	})
}

// ListAll returns every guild, removed ones included, in creation order.
func (s *InMemory) ListAll(ctx context.Context) ([]*models.Guild, error) {
	st := s.cell.Load(ctx)
	out := make([]*models.Guild, 0, len(st.order))
	for _, addr := range st.order {
		cp := *st.guilds[addr]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) Count(ctx context.Context) (uint64, error) {
	return uint64(len(s.cell.Load(ctx).order)), nil
}
