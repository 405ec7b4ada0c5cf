// Package member stores guild memberships.
package member

import (
	"context"
	"maps"

	"guildledger/internal/guild/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

type key struct {
	guild  domain.Address
	member domain.Address
}

type members map[key]*models.Membership

type InMemory struct {
	cell *tx.Cell[members]
}

func NewInMemory() *InMemory {
	return &InMemory{cell: tx.NewCell(make(members), func(m members) members { return maps.Clone(m) })}
}

// Create inserts m. It fails with ErrAlreadyUsed if the principal has
// already joined the guild.
func (s *InMemory) Create(ctx context.Context, m *models.Membership) error {
	return s.cell.Update(ctx, func(st *members) error {
		k := key{m.Guild, m.Member}
		if _, ok := (*st)[k]; ok {
			return sentinel.ErrAlreadyUsed
		}
		cp := *m
		(*st)[k] = &cp
		return nil
	})
}

func (s *InMemory) Find(ctx context.Context, guild, member domain.Address) (*models.Membership, error) {
	m, ok := s.cell.Load(ctx)[key{guild, member}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *InMemory) Update(ctx context.Context, m *models.Membership) error {
	return s.cell.Update(ctx, func(st *members) error {
		k := key{m.Guild, m.Member}
		if _, ok := (*st)[k]; !ok {
			return sentinel.ErrNotFound
		}
		cp := *m
		(*st)[k] = &cp
		return nil
	})
}
