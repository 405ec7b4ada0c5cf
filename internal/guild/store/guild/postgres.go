package guild

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

const uniqueViolation = "23505"

// PostgresStore keeps guild records in the guilds table; nonce doubles as
// the creation order.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const guildColumns = `address, name, description, category, master, member_count, active, nonce, created_at, removed_at`

func (s *PostgresStore) Create(ctx context.Context, g *models.Guild) error {
	query := `INSERT INTO guilds (` + guildColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		g.Address, g.Name, g.Description, string(g.Category), g.Master,
		int64(g.MemberCount), g.Active, int64(g.Nonce), g.CreatedAt, g.RemovedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert guild: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByAddress(ctx context.Context, address domain.Address) (*models.Guild, error) {
	query := `SELECT ` + guildColumns + ` FROM guilds WHERE address = $1`
	g, err := scanGuild(tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find guild: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) Update(ctx context.Context, g *models.Guild) error {
	query := `
		UPDATE guilds
		SET member_count = $2, active = $3, removed_at = $4
		WHERE address = $1
	`
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, g.Address, int64(g.MemberCount), g.Active, g.RemovedAt)
	if err != nil {
		return fmt.Errorf("update guild: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update guild rows: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Guild, error) {
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, `SELECT `+guildColumns+` FROM guilds ORDER BY nonce`)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer rows.Close()

	out := []*models.Guild{}
	for rows.Next() {
		g, err := scanGuild(rows)
		if err != nil {
			return nil, fmt.Errorf("scan guild: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate guilds: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Count(ctx context.Context) (uint64, error) {
	var n int64
	if err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM guilds`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count guilds: %w", err)
	}
	return uint64(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuild(row rowScanner) (*models.Guild, error) {
	var (
		g                  models.Guild
		category           string
		memberCount, nonce int64
		removedAt          sql.NullTime
	)
	err := row.Scan(&g.Address, &g.Name, &g.Description, &category, &g.Master,
		&memberCount, &g.Active, &nonce, &g.CreatedAt, &removedAt)
	if err != nil {
		return nil, err
	}
	g.Category = domain.Category(category)
	g.MemberCount = uint64(memberCount)
	g.Nonce = uint64(nonce)
	if removedAt.Valid {
		t := removedAt.Time
		g.RemovedAt = &t
	}
	return &g, nil
}
