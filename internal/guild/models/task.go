package models

import (
	"time"
	"unicode/utf8"

	"guildledger/pkg/domain"
	dErrors "guildledger/pkg/domain-errors"
)

const (
	MaxTaskTitleLength       = 100
	MaxTaskDescriptionLength = 500
)

// Task is one entry on a guild's task board. Completed is a single flag for
// the whole guild: the first member to complete a task claims its reward
// and the task is closed for everyone else.
type Task struct {
	Guild        domain.Address  `json:"guild"`
	ID           uint64          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	RewardPoints uint64          `json:"reward_points"`
	RewardNFT    bool            `json:"reward_nft"`
	Completed    bool            `json:"completed"`
	Creator      domain.Address  `json:"creator"`
	CompletedBy  *domain.Address `json:"completed_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

func NewTask(guild domain.Address, id uint64, title, description string, rewardPoints uint64, rewardNFT bool, creator domain.Address, now time.Time) (*Task, error) {
	if id == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "task id starts at 1")
	}
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "task title cannot be empty")
	}
	if utf8.RuneCountInString(title) > MaxTaskTitleLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "task title must be 100 characters or less")
	}
	if description == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "task description cannot be empty")
	}
	if utf8.RuneCountInString(description) > MaxTaskDescriptionLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "task description must be 500 characters or less")
	}
	return &Task{
		Guild:        guild,
		ID:           id,
		Title:        title,
		Description:  description,
		RewardPoints: rewardPoints,
		RewardNFT:    rewardNFT,
		Creator:      creator,
		CreatedAt:    now,
	}, nil
}

func (t *Task) CanComplete() error {
	if t.Completed {
		return dErrors.New(dErrors.CodeAlreadyCompleted, "task is already completed")
	}
	return nil
}

// ApplyCompletion closes the task. Call CanComplete first.
func (t *Task) ApplyCompletion(by domain.Address, now time.Time) {
	t.Completed = true
	t.CompletedBy = &by
	t.CompletedAt = &now
}

// Membership is a principal's standing in one guild. It is never deleted.
type Membership struct {
	Guild      domain.Address `json:"guild"`
	Member     domain.Address `json:"member"`
	Reputation uint64         `json:"reputation"`
	JoinedAt   time.Time      `json:"joined_at"`
}

// ApplyReward adds points to the member's per-guild counter. The ledger mint
// that precedes it has already rejected overflowing amounts.
func (m *Membership) ApplyReward(points uint64) {
	m.Reputation += points
}

// Completion is what a successful task completion awarded.
type Completion struct {
	Guild       domain.Address `json:"guild"`
	TaskID      uint64         `json:"task_id"`
	Member      domain.Address `json:"member"`
	Reputation  uint64         `json:"reputation"`
	BadgeToken  *uint64        `json:"badge_token_id,omitempty"`
	CompletedAt time.Time      `json:"completed_at"`
}
