package engine

import (
	"time"

	"nightingale/internal/eventbus"
)

// Event types published on the bus. Terminal events carry the final
// Snapshot in TaskEvent.Task.
const (
	EventSubmitted = "task.submitted"
	EventRejected  = "task.rejected"
	EventStarted   = "task.started"
	EventCompleted = "task.completed"
	EventFailed    = "task.failed"
	EventCancelled = "task.cancelled"
	EventReaped    = "task.reaped"
)

// TaskEvent is the Data of every task.* event.
type TaskEvent struct {
	ID         string        `json:"id,omitempty"`
	Type       Type          `json:"type,omitempty"`
	OwnerID    string        `json:"owner_id,omitempty"`
	QueueDelay time.Duration `json:"queue_delay,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      string        `json:"error,omitempty"`
	Count      int           `json:"count,omitempty"`
	Task       *Snapshot     `json:"task,omitempty"`
}

func (s *Service) publish(typ string, at time.Time, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: ev})
}
