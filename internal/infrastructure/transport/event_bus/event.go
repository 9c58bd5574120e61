// internal/infrastructure/transport/event_bus/event.go
package events

import (
	"sync"
	"time"
)

// EventType тип события шины
type EventType string

const (
	EventSessionTerminated  EventType = "session_terminated"
	EventLossLimitWarning   EventType = "loss_limit_warning"
	EventPerformanceSummary EventType = "performance_summary"
	EventJobDeadLettered    EventType = "job_dead_lettered"
)

// Event событие шины
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	Data      interface{}       `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Subscriber получатель событий
type Subscriber interface {
	HandleEvent(event Event) error
	GetName() string
	GetSubscribedEvents() []EventType
}

// Middleware промежуточное ПО для обработки событий
type Middleware interface {
	Process(event Event, next HandlerFunc) error
}

// HandlerFunc функция обработки события
type HandlerFunc func(event Event) error

// Metrics счетчики шины
type Metrics struct {
	mu               sync.RWMutex
	EventsPublished  int64             `json:"events_published"`
	EventsProcessed  int64             `json:"events_processed"`
	EventsFailed     int64             `json:"events_failed"`
	EventsDropped    int64             `json:"events_dropped"`
	SubscribersCount map[EventType]int `json:"subscribers_count"`
	ProcessingTime   time.Duration     `json:"processing_time"`
}

// Snapshot копия метрик без мьютекса
type Snapshot struct {
	EventsPublished  int64
	EventsProcessed  int64
	EventsFailed     int64
	EventsDropped    int64
	SubscribersCount map[EventType]int
	ProcessingTime   time.Duration
}
