// Package store persists reputation balances.
package store

import (
	"context"
	"maps"

	"guildledger/pkg/domain"
	"guildledger/pkg/platform/tx"
)

type ledger struct {
	balances map[domain.Address]uint64
	supply   uint64
}

func (l ledger) clone() ledger {
	return ledger{balances: maps.Clone(l.balances), supply: l.supply}
}

// InMemory holds balances in a map plus a running total supply.
type InMemory struct {
	cell *tx.Cell[ledger]
}

func NewInMemory() *InMemory {
	return &InMemory{cell: tx.NewCell(ledger{balances: make(map[domain.Address]uint64)}, ledger.clone)}
}

func (s *InMemory) BalanceOf(ctx context.Context, holder domain.Address) (uint64, error) {
	return s.cell.Load(ctx).balances[holder], nil
}

func (s *InMemory) TotalSupply(ctx context.Context) (uint64, error) {
	return s.cell.Load(ctx).supply, nil
}

// Credit adds amount to holder's balance and to the total supply. The caller
// has already checked for overflow.
func (s *InMemory) Credit(ctx context.Context, holder domain.Address, amount uint64) error {
	return s.cell.Update(ctx, func(l *ledger) error {
		l.balances[holder] += amount
		l.supply += amount
		return nil
	})
}
