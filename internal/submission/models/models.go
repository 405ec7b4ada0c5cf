// Package models holds submission receipts: the pending-transaction handles
// returned for every mutating call before it is finalized.
package models

import (
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
)

// Status is the finalization state of a submission.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusConfirmed  Status = "confirmed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsFinal reports whether no further transition is possible.
func (s Status) IsFinal() bool {
	return s == StatusConfirmed || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo enforces pending → processing → confirmed|failed and
// pending → cancelled.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCancelled
	case StatusProcessing:
		return next == StatusConfirmed || next == StatusFailed
	default:
		return false
	}
}

// Kind names the operation a submission runs.
type Kind string

const (
	KindCreateGuild  Kind = "create_guild"
	KindRemoveGuild  Kind = "remove_guild"
	KindJoinGuild    Kind = "join_guild"
	KindCreateTask   Kind = "create_task"
	KindCompleteTask Kind = "complete_task"
)

// Failure is the stable error kind and reason of a failed submission.
type Failure struct {
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
}

// Receipt tracks one submission from acceptance to finalization.
type Receipt struct {
	Hash        string          `json:"hash"`
	Kind        Kind            `json:"kind"`
	Caller      domain.Address  `json:"caller"`
	Status      Status          `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Failure     *Failure        `json:"error,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
	FinalizedAt *time.Time      `json:"finalized_at,omitempty"`
}

// NewReceipt creates a pending receipt with a fresh hash.
func NewReceipt(kind Kind, caller domain.Address, now time.Time) (*Receipt, error) {
	nonce, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return &Receipt{
		Hash:        receiptHash(kind, caller, nonce),
		Kind:        kind,
		Caller:      caller,
		Status:      StatusPending,
		SubmittedAt: now,
	}, nil
}

// ApplyConfirmation records a successful outcome. result is encoded as JSON.
func (r *Receipt) ApplyConfirmation(result any, now time.Time) error {
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		r.Result = raw
	}
	r.Status = StatusConfirmed
	r.FinalizedAt = &now
	return nil
}

// ApplyFailure records a rejected outcome with its stable error kind.
func (r *Receipt) ApplyFailure(err error, now time.Time) {
	code := dErrors.CodeOf(err)
	message := dErrors.MessageOf(err)
	if code == dErrors.CodeInternal {
		message = "internal error"
	}
	r.Status = StatusFailed
	r.Failure = &Failure{Code: code, Message: message}
	r.FinalizedAt = &now
}

func (r *Receipt) ApplyCancellation(now time.Time) {
	r.Status = StatusCancelled
	r.FinalizedAt = &now
}

// receiptHash is Keccak-256 over the kind, the caller and a random nonce.
func receiptHash(kind Kind, caller domain.Address, nonce uuid.UUID) string {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write([]byte(kind))
	_, _ = h.Write(caller[:])
	_, _ = h.Write(nonce[:])
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
