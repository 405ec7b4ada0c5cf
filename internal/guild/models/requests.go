package models

import (
	"strings"

	dErrors "guildledger/pkg/domain-errors"
)

// CreateTaskRequest is the task-authoring input. RewardPoints is signed so
// that a negative value can be rejected instead of wrapping.
type CreateTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	RewardPoints int64  `json:"reward_points"`
	RewardNFT    bool   `json:"reward_nft"`
}

func (r *CreateTaskRequest) Normalize() {
	if r == nil {
		return
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
}

func (r *CreateTaskRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Title == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "title is required")
	}
	if len([]rune(r.Title)) > MaxTaskTitleLength {
		return dErrors.New(dErrors.CodeInvalidInput, "title must be 100 characters or less")
	}
	if r.Description == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "description is required")
	}
	if len([]rune(r.Description)) > MaxTaskDescriptionLength {
		return dErrors.New(dErrors.CodeInvalidInput, "description must be 500 characters or less")
	}
	if r.RewardPoints < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "reward points cannot be negative")
	}
	return nil
}

// CreateGuildRequest is the guild-creation input.
type CreateGuildRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

func (r *CreateGuildRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	r.Category = strings.TrimSpace(r.Category)
}

func (r *CreateGuildRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	if len([]rune(r.Name)) > MaxGuildNameLength {
		return dErrors.New(dErrors.CodeInvalidInput, "name must be 64 characters or less")
	}
	if r.Description == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "description is required")
	}
	if len([]rune(r.Description)) > MaxGuildDescriptionLength {
		return dErrors.New(dErrors.CodeInvalidInput, "description must be 500 characters or less")
	}
	if r.Category == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "category is required")
	}
	return nil
}
