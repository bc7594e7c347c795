package task

import (
	"context"
	"time"
)

// Repository is the durable store for tasks. Every method is a single atomic
// operation against the backing database.
type Repository interface {
	// List returns all tasks ordered by CreatedAt descending, then ID descending.
	List(ctx context.Context) ([]Task, error)
	// Create persists t and fills in its ID.
	Create(ctx context.Context, t *Task) error
	// Update applies req to the task with the given id. Returns ErrNotFound
	// when no such task exists.
	Update(ctx context.Context, id int64, req UpdateRequest, at time.Time) (*Task, error)
	// Delete removes the task with the given id. Returns ErrNotFound when no
	// such task exists.
	Delete(ctx context.Context, id int64) error
	// Ping checks the database connection.
	Ping(ctx context.Context) error
	// Close releases the underlying connections.
	Close() error
}
