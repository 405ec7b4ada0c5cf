package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"guildledger/internal/badge/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

// PostgresStore keeps badges in the badges table. Token ids come from
// MAX(token_id)+1 inside the caller's serializable transaction, so they stay
// gapless even when a mint rolls back.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, badge models.Badge) (uint64, error) {
	query := `
		INSERT INTO badges (token_id, owner, minter, minted_at)
		SELECT COALESCE(MAX(token_id), 0) + 1, $1, $2, $3 FROM badges
		RETURNING token_id
	`
	var id int64
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, badge.Owner, badge.Minter, badge.MintedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert badge: %w", err)
	}
	return uint64(id), nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tokenID uint64) (*models.Badge, error) {
	var (
		b  models.Badge
		id int64
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT token_id, owner, minter, minted_at FROM badges WHERE token_id = $1`, int64(tokenID)).
		Scan(&id, &b.Owner, &b.Minter, &b.MintedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find badge: %w", err)
	}
	b.TokenID = uint64(id)
	return &b, nil
}

func (s *PostgresStore) TokensOfOwner(ctx context.Context, owner domain.Address) ([]uint64, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT token_id FROM badges WHERE owner = $1 ORDER BY token_id`, owner)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	ids := []uint64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan badge id: %w", err)
		}
		ids = append(ids, uint64(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate badges: %w", err)
	}
	return ids, nil
}

func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM badges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count badges: %w", err)
	}
	return uint64(n), nil
}
