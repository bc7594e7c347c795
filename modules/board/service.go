// Package board coordinates task mutations: validate, persist, invalidate the
// cache and notify observers, in that order.
package board

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Cjantwhy/task-cooperator/domain/task"
	"github.com/Cjantwhy/task-cooperator/modules/cache"
	"go.uber.org/zap"
)

// Store is the durable store the coordinator writes through.
type Store interface {
	List(ctx context.Context) ([]task.Task, error)
	Create(ctx context.Context, t *task.Task) error
	Update(ctx context.Context, id int64, req task.UpdateRequest, at time.Time) (*task.Task, error)
	Delete(ctx context.Context, id int64) error
}

// Cache is the read-through collection cache. Neither method surfaces cache failures.
type Cache interface {
	Read(ctx context.Context, load cache.Loader) ([]task.Task, bool, error)
	Invalidate(ctx context.Context)
}

// Notifier hands committed events to the fan-out side. It must not block on
// observers and has no way to fail the mutation.
type Notifier interface {
	Notify(ctx context.Context, evt task.Event)
}

// Service is the mutation coordinator.
type Service struct {
	store    Store
	cache    Cache
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new coordinator.
func NewService(store Store, c Cache, n Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		cache:    c,
		notifier: n,
		logger:   logger,
		now:      time.Now,
	}
}

// List returns all tasks newest first, served from the cache when possible.
func (s *Service) List(ctx context.Context) ([]task.Task, bool, error) {
	tasks, fromCache, err := s.cache.Read(ctx, s.store.List)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", task.ErrStore, err)
	}
	return tasks, fromCache, nil
}

// Create validates and persists a new pending task.
func (s *Service) Create(ctx context.Context, req task.CreateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t := task.New(req, s.now())
	if err := s.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("%w: %w", task.ErrStore, err)
	}

	s.committed(ctx, task.CreatedEvent(*t))
	s.logger.Info("task created", zap.Int64("id", t.ID))
	return t, nil
}

// Update applies a partial update to an existing task.
func (s *Service) Update(ctx context.Context, id int64, req task.UpdateRequest) (*task.Task, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t, err := s.store.Update(ctx, id, req, s.now())
	if err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", task.ErrStore, err)
	}

	s.committed(ctx, task.UpdatedEvent(*t))
	s.logger.Info("task updated", zap.Int64("id", t.ID), zap.String("status", string(t.Status)))
	return t, nil
}

// Delete removes an existing task.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, task.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %w", task.ErrStore, err)
	}

	s.committed(ctx, task.DeletedEvent(id))
	s.logger.Info("task deleted", zap.Int64("id", id))
	return nil
}

// committed runs the post-commit steps. They use a context detached from the
// request so a client disconnect cannot skip them.
func (s *Service) committed(ctx context.Context, evt task.Event) {
	ctx = context.WithoutCancel(ctx)
	s.cache.Invalidate(ctx)
	s.notifier.Notify(ctx, evt)
}
