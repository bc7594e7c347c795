package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tasks (
	id          BIGSERIAL PRIMARY KEY,
	title       VARCHAR(255) NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status      VARCHAR(50) NOT NULL DEFAULT 'pending',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks (created_at DESC, id DESC);
`

const taskColumns = `id, title, description, status, created_at, updated_at`

const (
	listTasksSQL = `SELECT ` + taskColumns + ` FROM tasks ORDER BY created_at DESC, id DESC`

	createTaskSQL = `INSERT INTO tasks (title, description, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
RETURNING id`

	// updated_at never moves backwards even if the caller's clock does.
	updateTaskSQL = `UPDATE tasks SET
	title       = COALESCE($2, title),
	description = COALESCE($3, description),
	status      = COALESCE($4, status),
	updated_at  = GREATEST($5::timestamptz, updated_at + interval '1 microsecond')
WHERE id = $1
RETURNING ` + taskColumns

	deleteTaskSQL = `DELETE FROM tasks WHERE id = $1 RETURNING id`
)

// PostgresRepository stores tasks in PostgreSQL through a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a repository on an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the tasks table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create tasks table: %w", err)
	}
	return nil
}

// List returns all tasks, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]Task, error) {
	rows, err := r.pool.Query(ctx, listTasksSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Task, error) {
		return scanTask(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}
	if tasks == nil {
		tasks = make([]Task, 0)
	}
	return tasks, nil
}

// Create inserts t and fills in its ID.
func (r *PostgresRepository) Create(ctx context.Context, t *Task) error {
	err := r.pool.QueryRow(ctx, createTaskSQL,
		t.Title, t.Description, string(t.Status), t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", describePgError(err))
	}
	return nil
}

// Update applies the non-nil fields of req in a single statement.
func (r *PostgresRepository) Update(ctx context.Context, id int64, req UpdateRequest, at time.Time) (*Task, error) {
	var status *string
	if req.Status != nil {
		s := string(*req.Status)
		status = &s
	}

	row := r.pool.QueryRow(ctx, updateTaskSQL, id, req.Title, req.Description, status, Timestamp(at))
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update task %d: %w", id, describePgError(err))
	}
	return &t, nil
}

// Delete removes the task.
func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	var deleted int64
	if err := r.pool.QueryRow(ctx, deleteTaskSQL, id).Scan(&deleted); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete task %d: %w", id, describePgError(err))
	}
	return nil
}

// Ping checks the database connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var (
		t      Task
		status string
	)
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

// describePgError adds the SQLSTATE code to server-side errors.
func describePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%s (SQLSTATE %s): %w", pgErr.Message, pgErr.Code, err)
	}
	return err
}
