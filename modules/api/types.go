package api

import (
	"context"

	"github.com/Cjantwhy/task-cooperator/domain/task"
	"github.com/Cjantwhy/task-cooperator/modules/cache"
	"github.com/go-monolith/mono"
)

// TaskService is the coordinator surface the handlers need.
type TaskService interface {
	List(ctx context.Context) ([]task.Task, bool, error)
	Create(ctx context.Context, req task.CreateRequest) (*task.Task, error)
	Update(ctx context.Context, id int64, req task.UpdateRequest) (*task.Task, error)
	Delete(ctx context.Context, id int64) error
}

// CacheStats exposes cache counters.
type CacheStats interface {
	GetStats() cache.StatsSnapshot
	ResetStats()
}

// HealthChecker is any module that reports its health.
type HealthChecker interface {
	Name() string
	Health(ctx context.Context) mono.HealthStatus
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MessageResponse is a plain confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse is the API response for health checks.
type HealthResponse struct {
	Status  string                       `json:"status"`
	Modules map[string]mono.HealthStatus `json:"modules"`
}

// StatsResponse reports cache and fan-out counters.
type StatsResponse struct {
	Cache  cache.StatsSnapshot `json:"cache"`
	Fanout any                 `json:"fanout"`
}
