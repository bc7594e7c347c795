package broadcast

import (
	"context"
	"fmt"

	"github.com/Cjantwhy/task-cooperator/domain/task"
	"github.com/Cjantwhy/task-cooperator/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"go.uber.org/zap"
)

// BroadcastModule consumes task events from the EventBus and fans them out to observers.
type BroadcastModule struct {
	hub    *Hub
	logger *zap.Logger
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.EventConsumerModule = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule(logger *zap.Logger) *BroadcastModule {
	logger = logger.Named("broadcast")
	return &BroadcastModule{
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start starts the module.
func (m *BroadcastModule) Start(_ context.Context) error {
	m.logger.Info("module started")
	return nil
}

// Stop closes every observer connection.
func (m *BroadcastModule) Stop(_ context.Context) error {
	count := m.hub.Count()
	m.hub.CloseAll()
	m.logger.Info("module stopped", zap.Int("observers_closed", count))
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"fanout": m.hub.Stats(),
		},
	}
}

// RegisterEventConsumers subscribes to the task stream. One subscription
// delivers created, updated and deleted events in the order they were published.
func (m *BroadcastModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.TaskChangedV1, m.handleTaskEvent, m,
	); err != nil {
		return fmt.Errorf("failed to register TaskChanged consumer: %w", err)
	}

	m.logger.Info("registered event consumers", zap.Strings("events", []string{"TaskChanged"}))
	return nil
}

// handleTaskEvent never returns an error: delivery problems stay with the observers.
func (m *BroadcastModule) handleTaskEvent(_ context.Context, evt task.Event, _ *mono.Msg) error {
	n := m.hub.Broadcast(evt)
	m.logger.Debug("event broadcast", zap.String("type", string(evt.Type)), zap.Int("observers", n))
	return nil
}

// GetHub returns the observer hub for the API module.
func (m *BroadcastModule) GetHub() *Hub {
	return m.hub
}
