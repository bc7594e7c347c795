package board

import (
	"context"

	"github.com/Cjantwhy/task-cooperator/domain/task"
	"github.com/Cjantwhy/task-cooperator/events"
	"github.com/go-monolith/mono"
	"go.uber.org/zap"
)

// busNotifier publishes task events on the mono EventBus.
type busNotifier struct {
	bus    mono.EventBus
	logger *zap.Logger
}

func (n *busNotifier) Notify(_ context.Context, evt task.Event) {
	if err := events.Publish(n.bus, evt); err != nil {
		n.logger.Warn("failed to publish task event", zap.String("type", string(evt.Type)), zap.Error(err))
	}
}

// discardNotifier is used when no EventBus is available.
type discardNotifier struct{}

func (discardNotifier) Notify(context.Context, task.Event) {}
