package task

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

const taskColumns = `guild, id, title, description, reward_points, reward_nft, completed, creator, completed_by, created_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, t *models.Task) error {
	query := `INSERT INTO guild_tasks (` + taskColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		t.Guild, int64(t.ID), t.Title, t.Description, int64(t.RewardPoints), t.RewardNFT,
		t.Completed, t.Creator, nullAddress(t.CompletedBy), t.CreatedAt, t.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return sentinel.ErrInvalidState
		}
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, guild domain.Address, id uint64) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM guild_tasks WHERE guild = $1 AND id = $2`
	t, err := scanTask(tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, guild, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Update(ctx context.Context, t *models.Task) error {
	query := `
		UPDATE guild_tasks
		SET completed = $3, completed_by = $4, completed_at = $5
		WHERE guild = $1 AND id = $2
	`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		t.Guild, int64(t.ID), t.Completed, nullAddress(t.CompletedBy), t.CompletedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update task rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context, guild domain.Address) (uint64, error) {
	var n int64
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM guild_tasks WHERE guild = $1`, guild).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return uint64(n), nil
}

func (s *PostgresStore) List(ctx context.Context, guild domain.Address) ([]*models.Task, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+taskColumns+` FROM guild_tasks WHERE guild = $1 ORDER BY id`, guild)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t                models.Task
		id, rewardPoints int64
		completedBy      sql.NullString
		completedAt      sql.NullTime
	)
	err := row.Scan(&t.Guild, &id, &t.Title, &t.Description, &rewardPoints, &t.RewardNFT,
		&t.Completed, &t.Creator, &completedBy, &t.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	t.ID = uint64(id)
	t.RewardPoints = uint64(rewardPoints)
	if completedBy.Valid {
		var by domain.Address
		if err := by.Scan(completedBy.String); err != nil {
			return nil, err
		}
		t.CompletedBy = &by
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	return &t, nil
}

func nullAddress(a *domain.Address) sql.NullString {
	if a == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: a.String(), Valid: true}
}
