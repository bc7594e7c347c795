// Package events defines the typed events the board module emits on the mono EventBus.
package events

import (
	"fmt"

	"github.com/Cjantwhy/task-cooperator/domain/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// TaskChangedV1 carries every task mutation. Created, updated and deleted
// events share one subject, so a single subscription sees them in commit order;
// task.Event.Type tells them apart.
var TaskChangedV1 = helper.EventDefinition[task.Event](
	"board",
	"TaskChanged",
	"v1",
)

// All returns every task event definition in base form.
func All() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		TaskChangedV1.ToBase(),
	}
}

// Publish sends evt on the task stream. Unknown event types are rejected.
func Publish(bus mono.EventBus, evt task.Event) error {
	switch evt.Type {
	case task.EventCreated, task.EventUpdated, task.EventDeleted:
		return TaskChangedV1.Publish(bus, evt, nil)
	default:
		return fmt.Errorf("unknown task event type %q", evt.Type)
	}
}
