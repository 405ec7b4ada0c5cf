package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"guildledger/internal/guild/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, m *models.Membership) error {
	query := `
		INSERT INTO guild_members (guild, member, reputation, joined_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, m.Guild, m.Member, int64(m.Reputation), m.JoinedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, guild, member domain.Address) (*models.Membership, error) {
	var (
		m          models.Membership
		reputation int64
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT guild, member, reputation, joined_at FROM guild_members WHERE guild = $1 AND member = $2`,
		guild, member).Scan(&m.Guild, &m.Member, &reputation, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	m.Reputation = uint64(reputation)
	return &m, nil
}

func (s *PostgresStore) Update(ctx context.Context, m *models.Membership) error {
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx,
		`UPDATE guild_members SET reputation = $3 WHERE guild = $1 AND member = $2`,
		m.Guild, m.Member, int64(m.Reputation))
	if err != nil {
		return fmt.Errorf("update membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update membership rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
