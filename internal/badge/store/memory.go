// Package store persists badges.
package store

import (
	"context"
	"maps"
	"slices"

	"guildledger/internal/badge/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

// collection keeps badges in mint order; badges[i] has token id i+1.
type collection struct {
	badges  []models.Badge
	byOwner map[domain.Address][]uint64
}

func (c collection) clone() collection {
	return collection{badges: slices.Clip(c.badges), byOwner: maps.Clone(c.byOwner)}
}

type InMemory struct {
	cell *tx.Cell[collection]
}

func NewInMemory() *InMemory {
	return &InMemory{cell: tx.NewCell(collection{byOwner: make(map[domain.Address][]uint64)}, collection.clone)}
}

// Append stores a new badge for owner under the next token id.
func (s *InMemory) Append(ctx context.Context, badge models.Badge) (uint64, error) {
	err := s.cell.Update(ctx, func(c *collection) error {
		badge.TokenID = uint64(len(c.badges)) + 1
		c.badges = append(c.badges, badge)
		c.byOwner[badge.Owner] = append(slices.Clip(c.byOwner[badge.Owner]), badge.TokenID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return badge.TokenID, nil
}

func (s *InMemory) FindByID(ctx context.Context, tokenID uint64) (*models.Badge, error) {
	badges := s.cell.Load(ctx).badges
	if tokenID == 0 || tokenID > uint64(len(badges)) {
		return nil, sentinel.ErrNotFound
	}
	b := badges[tokenID-1]
	return &b, nil
}

// TokensOfOwner returns owner's token ids in mint order.
func (s *InMemory) TokensOfOwner(ctx context.Context, owner domain.Address) ([]uint64, error) {
	return append([]uint64{}, s.cell.Load(ctx).byOwner[owner]...), nil
}

func (s *InMemory) Count(ctx context.Context) (uint64, error) {
	return uint64(len(s.cell.Load(ctx).badges)), nil
}
