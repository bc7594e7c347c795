// Package task provides the task entity, its events and the durable store implementations.
package task

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength matches the width of the title column.
const MaxTitleLength = 255

// Status represents the state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// Task is a unit of work on the board.
type Task struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Status      Status    `gorm:"size:50;not null;index" json:"status"`
	CreatedAt   time.Time `gorm:"not null;index;autoCreateTime:false" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

// CreateRequest represents the request to create a task.
type CreateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateRequest represents a partial update. Nil fields keep their stored value.
type UpdateRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *Status `json:"status,omitempty"`
}

// Validate checks the request and normalizes the title.
func (r *CreateRequest) Validate() error {
	title, err := normalizeTitle(r.Title)
	if err != nil {
		return err
	}
	r.Title = title
	return nil
}

// Validate checks the provided fields and normalizes the title.
func (r *UpdateRequest) Validate() error {
	if r.Title != nil {
		title, err := normalizeTitle(*r.Title)
		if err != nil {
			return err
		}
		r.Title = &title
	}
	if r.Status != nil && !r.Status.Valid() {
		return fmt.Errorf("%w: status must be %q or %q", ErrValidation, StatusPending, StatusCompleted)
	}
	return nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", ErrValidation, MaxTitleLength)
	}
	return title, nil
}

// New builds a pending task with both timestamps set to at.
func New(req CreateRequest, at time.Time) *Task {
	ts := Timestamp(at)
	return &Task{
		Title:       req.Title,
		Description: req.Description,
		Status:      StatusPending,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

// Apply merges the non-nil fields of req and advances UpdatedAt.
func (t *Task) Apply(req UpdateRequest, at time.Time) {
	if req.Title != nil {
		t.Title = *req.Title
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Status != nil {
		t.Status = *req.Status
	}
	t.UpdatedAt = NextUpdatedAt(t.UpdatedAt, at)
}

// NextUpdatedAt returns at, or prev plus one microsecond when the clock has
// not moved past prev, so UpdatedAt strictly increases on every update.
func NextUpdatedAt(prev, at time.Time) time.Time {
	at = Timestamp(at)
	if !at.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return at
}

// Timestamp normalizes t to UTC at microsecond precision, the resolution
// both store backends persist.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
