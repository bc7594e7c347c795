package task

// EventType names a committed change pushed to observers.
type EventType string

const (
	EventCreated EventType = "task_created"
	EventUpdated EventType = "task_updated"
	EventDeleted EventType = "task_deleted"
)

// Event is the payload delivered to every open observer.
// Created and updated events carry the task; deleted events carry only its id.
type Event struct {
	Type   EventType `json:"type"`
	Task   *Task     `json:"task,omitempty"`
	TaskID int64     `json:"taskId,omitempty"`
}

// CreatedEvent returns the event for a newly persisted task.
func CreatedEvent(t Task) Event {
	return Event{Type: EventCreated, Task: &t}
}

// UpdatedEvent returns the event for an updated task.
func UpdatedEvent(t Task) Event {
	return Event{Type: EventUpdated, Task: &t}
}

// DeletedEvent returns the event for a deleted task.
func DeletedEvent(id int64) Event {
	return Event{Type: EventDeleted, TaskID: id}
}
