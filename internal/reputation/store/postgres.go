package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"guildledger/pkg/domain"
	"guildledger/pkg/platform/tx"
)

// PostgresStore keeps balances in reputation_balances and the total in the
// single reputation_supply row, updated by the same statement as the balance.
// Amounts are NUMERIC(20,0) so the full uint64 range fits; they cross the
// driver as text.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) BalanceOf(ctx context.Context, holder domain.Address) (uint64, error) {
	var raw string
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT balance::text FROM reputation_balances WHERE holder = $1`, holder).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return parseAmount(raw)
}

func (s *PostgresStore) TotalSupply(ctx context.Context) (uint64, error) {
	var raw string
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT supply::text FROM reputation_supply WHERE id`).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read total supply: %w", err)
	}
	return parseAmount(raw)
}

// Credit adds amount to holder's balance and to the supply row in a single
// statement. The caller has already checked for overflow.
func (s *PostgresStore) Credit(ctx context.Context, holder domain.Address, amount uint64) error {
	query := `
		WITH supply AS (
			INSERT INTO reputation_supply (id, supply)
			VALUES (TRUE, $2::numeric)
			ON CONFLICT (id) DO UPDATE SET
				supply = reputation_supply.supply + EXCLUDED.supply
		)
		INSERT INTO reputation_balances (holder, balance)
		VALUES ($1, $2::numeric)
		ON CONFLICT (holder) DO UPDATE SET
			balance = reputation_balances.balance + EXCLUDED.balance
	`
	if _, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, holder, strconv.FormatUint(amount, 10)); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func parseAmount(raw string) (uint64, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return v, nil
}
