// Package events carries committed ledger state changes to downstream
// consumers (indexers, notification services, analytics).
//
// Services publish from tx.AfterCommit hooks, so an event is only ever
// emitted for a transaction that committed. Publishing is best effort and
// never rolls back ledger state.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"guildledger/pkg/domain"
	"guildledger/pkg/requestcontext"
)

// Type names a ledger event.
type Type string

const (
	GuildCreated     Type = "guild_created"
	GuildRemoved     Type = "guild_removed"
	MemberJoined     Type = "member_joined"
	TaskCreated      Type = "task_created"
	TaskCompleted    Type = "task_completed"
	ReputationMinted Type = "reputation_minted"
	BadgeMinted      Type = "badge_minted"
	MinterGranted    Type = "minter_granted"
	MinterRevoked    Type = "minter_revoked"
)

// Event is a committed ledger fact. Zero-valued fields do not apply to the
// event Type.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"type"`
	Guild      *domain.Address `json:"guild,omitempty"`
	Actor      *domain.Address `json:"actor,omitempty"`
	Subject    *domain.Address `json:"subject,omitempty"`
	Asset      domain.AssetID  `json:"asset,omitempty"`
	Amount     uint64          `json:"amount,omitempty"`
	TokenID    uint64          `json:"token_id,omitempty"`
	TaskID     uint64          `json:"task_id,omitempty"`
	RequestID  string          `json:"request_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New stamps an event with an id, the request id and the request time.
func New(ctx context.Context, t Type) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		RequestID:  requestcontext.RequestID(ctx),
		OccurredAt: requestcontext.Now(ctx),
	}
}

// Addr returns a pointer to a copy of a, for the optional address fields.
func Addr(a domain.Address) *domain.Address {
	return &a
}

// Publisher delivers committed events.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// LogPublisher writes events as structured log lines. It is the default sink
// and the fallback when the broker is unavailable.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event Event) {
	if p.logger == nil {
		return
	}
	args := []any{
		"event", string(event.Type),
		"log_type", "ledger",
		"event_id", event.ID.String(),
	}
	if event.Guild != nil {
		args = append(args, "guild", event.Guild.String())
	}
	if event.Actor != nil {
		args = append(args, "actor", event.Actor.String())
	}
	if event.Subject != nil {
		args = append(args, "subject", event.Subject.String())
	}
	if event.Asset != "" {
		args = append(args, "asset", string(event.Asset))
	}
	if event.Amount != 0 {
		args = append(args, "amount", event.Amount)
	}
	if event.TokenID != 0 {
		args = append(args, "token_id", event.TokenID)
	}
	if event.TaskID != 0 {
		args = append(args, "task_id", event.TaskID)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	p.logger.InfoContext(ctx, string(event.Type), args...)
}

// Recorder keeps published events in memory. Tests use it to assert what a
// service emitted.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the published event types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]Type, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}
