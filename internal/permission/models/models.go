// Package models holds the permission registry's records: which principal
// administers each reward asset and which minters it has authorized.
package models

import (
	"time"

	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
)

// GrantStatus is the lifecycle position of a minter grant.
type GrantStatus string

const (
	GrantStatusActive  GrantStatus = "active"
	GrantStatusRevoked GrantStatus = "revoked"
)

// MinterGrant records that Minter may mint Asset. A revoked grant is kept so
// that a later mint attempt can be reported as revoked rather than unknown.
type MinterGrant struct {
	Asset     domain.AssetID `json:"asset"`
	Minter    domain.Address `json:"minter"`
	Status    GrantStatus    `json:"status"`
	GrantedBy domain.Address `json:"granted_by"`
	GrantedAt time.Time      `json:"granted_at"`
	RevokedAt *time.Time     `json:"revoked_at,omitempty"`
}

// NewMinterGrant creates an active grant.
func NewMinterGrant(asset domain.AssetID, minter, grantedBy domain.Address, now time.Time) (*MinterGrant, error) {
	if !asset.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown asset")
	}
	if minter.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "minter cannot be the zero address")
	}
	return &MinterGrant{
		Asset:     asset,
		Minter:    minter,
		Status:    GrantStatusActive,
		GrantedBy: grantedBy,
		GrantedAt: now,
	}, nil
}

func (g *MinterGrant) IsActive() bool {
	return g.Status == GrantStatusActive
}

// ApplyRevocation marks the grant revoked. Revoking a revoked grant is a no-op.
func (g *MinterGrant) ApplyRevocation(now time.Time) {
	if !g.IsActive() {
		return
	}
	g.Status = GrantStatusRevoked
	g.RevokedAt = &now
}

// ApplyRegrant reactivates a previously revoked grant.
func (g *MinterGrant) ApplyRegrant(grantedBy domain.Address, now time.Time) {
	g.Status = GrantStatusActive
	g.GrantedBy = grantedBy
	g.GrantedAt = now
	g.RevokedAt = nil
}

// AssetAdmin names the principal allowed to grant and revoke minters for an
// asset. Only the registry owner may change it.
type AssetAdmin struct {
	Asset     domain.AssetID `json:"asset"`
	Admin     domain.Address `json:"admin"`
	UpdatedAt time.Time      `json:"updated_at"`
}
