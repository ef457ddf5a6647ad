package job

import "time"

type EventType string

const (
	EventExecutionStarted   EventType = "EXECUTION_STARTED"
	EventProgress           EventType = "PROGRESS"
	EventExecutionCompleted EventType = "EXECUTION_COMPLETED"
	EventExecutionFailed    EventType = "EXECUTION_FAILED"
	EventExecutionPaused    EventType = "EXECUTION_PAUSED"
)

// Event is emitted by the executor for dashboards and downstream consumers.
type Event struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"job_id"`
	JobName   string    `json:"job_name,omitempty"`
	Progress  Progress  `json:"progress"`
	Status    Status    `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
	Runner    string    `json:"runner,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventSink receives execution events. Implementations must not block the run.
type EventSink interface {
	Publish(evt Event)
}

// MultiSink fans an event out to several sinks.
type MultiSink []EventSink

func (m MultiSink) Publish(evt Event) {
	for _, s := range m {
		if s != nil {
			s.Publish(evt)
		}
	}
}
