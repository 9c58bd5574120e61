// internal/notifier/notification_service.go
package notifier

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	events "trading-session-guard/internal/infrastructure/transport/event_bus"
	"trading-session-guard/pkg/logger"
)

// Type тип уведомления
type Type string

const (
	TypeSessionTerminated  Type = Type(events.EventSessionTerminated)
	TypeLossLimitWarning   Type = Type(events.EventLossLimitWarning)
	TypePerformanceSummary Type = Type(events.EventPerformanceSummary)
	TypeJobDeadLettered    Type = Type(events.EventJobDeadLettered)
)

// AllTypes все типы уведомлений
var AllTypes = []Type{TypeSessionTerminated, TypeLossLimitWarning, TypePerformanceSummary, TypeJobDeadLettered}

// Notification уведомление о событии сессии
type Notification struct {
	SessionID string                 `json:"session_id"`
	UserID    int64                  `json:"user_id"`
	Type      Type                   `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Dispatcher публикует уведомления в шину событий
type Dispatcher struct {
	bus    *events.EventBus
	source string
	sync   bool

	sent   atomic.Int64
	failed atomic.Int64
}

// NewDispatcher создает диспетчер. sync=true обрабатывает уведомление в вызывающей горутине.
func NewDispatcher(bus *events.EventBus, sync bool) *Dispatcher {
	return &Dispatcher{bus: bus, source: "session_guard", sync: sync}
}

// Emit отправляет уведомление подписчикам шины
func (d *Dispatcher) Emit(ctx context.Context, n Notification) error {
	if n.Type == "" {
		return fmt.Errorf("Dispatcher.Emit: пустой тип уведомления")
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	event := events.Event{
		Type:      events.EventType(n.Type),
		Source:    d.source,
		Data:      n,
		Timestamp: n.CreatedAt,
		Metadata:  map[string]string{"session_id": n.SessionID},
	}

	var err error
	if d.sync {
		err = d.bus.PublishSync(event)
	} else {
		err = d.bus.Publish(event)
	}
	if err != nil {
		d.failed.Add(1)
		logger.Warn("⚠️ [Notifier] Не удалось отправить %s для сессии %s: %v", n.Type, n.SessionID, err)
		return fmt.Errorf("Dispatcher.Emit %s: %w", n.Type, err)
	}

	d.sent.Add(1)
	return nil
}

// GetStats статистика отправки
func (d *Dispatcher) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"sent":   d.sent.Load(),
		"failed": d.failed.Load(),
	}
}

// FromEvent извлекает уведомление из события шины
func FromEvent(event events.Event) (Notification, bool) {
	switch v := event.Data.(type) {
	case Notification:
		return v, true
	case *Notification:
		if v != nil {
			return *v, true
		}
	}
	return Notification{}, false
}

func subscribedEvents() []events.EventType {
	result := make([]events.EventType, len(AllTypes))
	for i, t := range AllTypes {
		result[i] = events.EventType(t)
	}
	return result
}
