package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"guildledger/internal/permission/models"
	"guildledger/pkg/domain"
	"guildledger/pkg/platform/sentinel"
	"guildledger/pkg/platform/tx"
)

// PostgresStore persists grants in minter_grants and admins in asset_admins.
// Queries run on the transaction in ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const grantColumns = `asset, minter, status, granted_by, granted_at, revoked_at`

func (s *PostgresStore) FindGrant(ctx context.Context, asset domain.AssetID, minter domain.Address) (*models.MinterGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM minter_grants WHERE asset = $1 AND minter = $2`
	g, err := scanGrant(tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, string(asset), minter))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find grant: %w", err)
	}
	return g, nil
}

func (s *PostgresStore) SaveGrant(ctx context.Context, grant *models.MinterGrant) error {
	query := `
		INSERT INTO minter_grants (` + grantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (asset, minter) DO UPDATE SET
			status = EXCLUDED.status,
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at,
			revoked_at = EXCLUDED.revoked_at
	`
	_, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		string(grant.Asset), grant.Minter, string(grant.Status), grant.GrantedBy, grant.GrantedAt, grant.RevokedAt)
	if err != nil {
		return fmt.Errorf("save grant: %w", err)
	}
	return nil
}

// RevokeGrants revokes all active grants of minter on assets in one statement.
func (s *PostgresStore) RevokeGrants(ctx context.Context, minter domain.Address, assets []domain.AssetID, now time.Time) ([]domain.AssetID, error) {
	if len(assets) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(assets))
	for _, a := range assets {
		names = append(names, string(a))
	}
	query := `
		UPDATE minter_grants
		SET status = $1, revoked_at = $2
		WHERE minter = $3 AND asset = ANY($4) AND status = $5
		RETURNING asset
	`
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query,
		string(models.GrantStatusRevoked), now, minter, pq.Array(names), string(models.GrantStatusActive))
	if err != nil {
		return nil, fmt.Errorf("revoke grants: %w", err)
	}
	defer rows.Close()

	var revoked []domain.AssetID
	for rows.Next() {
		var asset string
		if err := rows.Scan(&asset); err != nil {
			return nil, fmt.Errorf("scan revoked asset: %w", err)
		}
		revoked = append(revoked, domain.AssetID(asset))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revoked assets: %w", err)
	}
	return revoked, nil
}

func (s *PostgresStore) ListGrantsByMinter(ctx context.Context, minter domain.Address) ([]*models.MinterGrant, error) {
	query := `SELECT ` + grantColumns + ` FROM minter_grants WHERE minter = $1 ORDER BY granted_at, asset`
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, minter)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []*models.MinterGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindAdmin(ctx context.Context, asset domain.AssetID) (*models.AssetAdmin, error) {
	query := `SELECT asset, admin, updated_at FROM asset_admins WHERE asset = $1`
	var (
		a         models.AssetAdmin
		assetName string
	)
	err := tx.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, string(asset)).Scan(&assetName, &a.Admin, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find asset admin: %w", err)
	}
	a.Asset = domain.AssetID(assetName)
	return &a, nil
}

func (s *PostgresStore) SaveAdmin(ctx context.Context, admin *models.AssetAdmin) error {
	query := `
		INSERT INTO asset_admins (asset, admin, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset) DO UPDATE SET
			admin = EXCLUDED.admin,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query, string(admin.Asset), admin.Admin, admin.UpdatedAt); err != nil {
		return fmt.Errorf("save asset admin: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (*models.MinterGrant, error) {
	var (
		g             models.MinterGrant
		asset, status string
		revokedAt     sql.NullTime
	)
	if err := row.Scan(&asset, &g.Minter, &status, &g.GrantedBy, &g.GrantedAt, &revokedAt); err != nil {
		return nil, err
	}
	g.Asset = domain.AssetID(asset)
	g.Status = models.GrantStatus(status)
	if revokedAt.Valid {
		t := revokedAt.Time
		g.RevokedAt = &t
	}
	return &g, nil
}
