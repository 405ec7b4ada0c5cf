// Package task stores guild task boards.
package task

import (
	"context"
	"maps"
	"slices"

	"guildledger/internal/guild/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

// boards holds one slice per guild; boards[g][i] has id i+1.
type boards map[domain.Address][]*models.Task

// InMemory keeps task boards in a tx.Cell. A board slice is copied before
// one of its entries is replaced.
type InMemory struct {
	cell *tx.Cell[boards]
}

func NewInMemory() *InMemory {
	return &InMemory{cell: tx.NewCell(make(boards), func(m boards) boards { return maps.Clone(m) })}
}

// Create appends t. t.ID must be the next id on the guild's board.
func (s *InMemory) Create(ctx context.Context, t *models.Task) error {
	return s.cell.Update(ctx, func(st *boards) error {
		board := (*st)[t.Guild]
		if t.ID != uint64(len(board))+1 {
			return sentinel.ErrInvalidState
		}
		cp := *t
		(*st)[t.Guild] = append(slices.Clip(board), &cp)
		return nil
	})
}

func (s *InMemory) Find(ctx context.Context, guild domain.Address, id uint64) (*models.Task, error) {
	board := s.cell.Load(ctx)[guild]
	if id == 0 || id > uint64(len(board)) {
		return nil, sentinel.ErrNotFound
	}
	cp := *board[id-1]
	return &cp, nil
}

func (s *InMemory) Update(ctx context.Context, t *models.Task) error {
	return s.cell.Update(ctx, func(st *boards) error {
		board := (*st)[t.Guild]
		if t.ID == 0 || t.ID > uint64(len(board)) {
			return sentinel.ErrNotFound
		}
		next := slices.Clone(board)
		cp := *t
		next[t.ID-1] = &cp
		(*st)[t.Guild] = next
		return nil
	})
}

func (s *InMemory) Count(ctx context.Context, guild domain.Address) (uint64, error) {
	return uint64(len(s.cell.Load(ctx)[guild])), nil
}

// List returns the guild's tasks in id order.
func (s *InMemory) List(ctx context.Context, guild domain.Address) ([]*models.Task, error) {
	board := s.cell.Load(ctx)[guild]
	out := make([]*models.Task, 0, len(board))
	for _, t := range board {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}
