package models

import (
	"time"
	"unicode/utf8"

	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
)

const (
	MaxGuildNameLength        = 64
	MaxGuildDescriptionLength = 500
)

// Guild is the registry-visible record of one guild instance.
//
// Invariants:
//   - Name and Description are non-empty and within their length limits
//   - Category is one of the fixed set
//   - Master is immutable and never the zero address
//   - MemberCount never decreases
//   - Active goes true → false once, on removal, and never back
type Guild struct {
	Address     domain.Address  `json:"address"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    domain.Category `json:"category"`
	Master      domain.Address  `json:"master"`
	MemberCount uint64          `json:"member_count"`
	Active      bool            `json:"active"`
	// Nonce is the creation index the address was derived from.
	Nonce     uint64     `json:"nonce"`
	CreatedAt time.Time  `json:"created_at"`
	RemovedAt *time.Time `json:"removed_at,omitempty"`
}

func NewGuild(address domain.Address, name, description string, category domain.Category, master domain.Address, nonce uint64, now time.Time) (*Guild, error) {
	if address.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "guild address cannot be zero")
	}
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "guild name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxGuildNameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "guild name must be 64 characters or less")
	}
	if description == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "guild description cannot be empty")
	}
	if utf8.RuneCountInString(description) > MaxGuildDescriptionLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "guild description must be 500 characters or less")
	}
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "unknown guild category")
	}
	if master.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "guild master cannot be the zero address")
	}
	return &Guild{
		Address:     address,
		Name:        name,
		Description: description,
		Category:    category,
		Master:      master,
		Active:      true,
		Nonce:       nonce,
		CreatedAt:   now,
	}, nil
}

// CanAuthorTasks checks that caller may create tasks on the guild right now.
func (g *Guild) CanAuthorTasks(caller domain.Address) error {
	if !g.Active {
		return dErrors.New(dErrors.CodeUnauthorized, "guild has been removed")
	}
	if caller != g.Master {
		return dErrors.New(dErrors.CodeUnauthorized, "only the guild master can create tasks")
	}
	return nil
}

// CanAdmitMembers checks that the guild still accepts joins.
func (g *Guild) CanAdmitMembers() error {
	if !g.Active {
		return dErrors.New(dErrors.CodeUnauthorized, "guild has been removed")
	}
	return nil
}

// ApplyJoin records one more member.
func (g *Guild) ApplyJoin() {
	g.MemberCount++
}

// CanRemove checks if the guild can transition to removed.
// Use with ApplyRemoval inside the removal transaction.
func (g *Guild) CanRemove() error {
	if !g.Active {
		return dErrors.New(dErrors.CodeAlreadyRemoved, "guild is already removed")
	}
	return nil
}

// ApplyRemoval deactivates the guild. Call CanRemove first.
func (g *Guild) ApplyRemoval(now time.Time) {
	g.Active = false
	g.RemovedAt = &now
}
