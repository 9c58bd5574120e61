// internal/notifier/console_notifier.go
package notifier

import (
	"sync/atomic"

	events "trading-session-guard/internal/infrastructure/transport/event_bus"
	"trading-session-guard/pkg/logger"
	"trading-session-guard/pkg/utils"
)

// ConsoleNotifier подписчик, печатающий уведомления в лог
type ConsoleNotifier struct {
	compact bool
	sent    atomic.Int64
}

// NewConsoleNotifier создает консольный нотификатор
func NewConsoleNotifier(compact bool) *ConsoleNotifier {
	return &ConsoleNotifier{compact: compact}
}

// HandleEvent печатает уведомление
func (c *ConsoleNotifier) HandleEvent(event events.Event) error {
	n, ok := FromEvent(event)
	if !ok {
		return nil
	}

	icon := "🔔"
	switch n.Type {
	case TypeSessionTerminated:
		icon = "⛔"
	case TypeLossLimitWarning:
		icon = "⚠️"
	case TypePerformanceSummary:
		icon = "📊"
	case TypeJobDeadLettered:
		icon = "💀"
	}

	if c.compact {
		logger.Info("%s [Console] %s: сессия %s, пользователь %d", icon, n.Type, n.SessionID, n.UserID)
	} else {
		logger.Info("%s [Console] %s: сессия %s, пользователь %d, %s", icon, n.Type, n.SessionID, n.UserID, utils.FormatPayload(n.Payload))
	}

	c.sent.Add(1)
	return nil
}

// GetName имя подписчика
func (c *ConsoleNotifier) GetName() string {
	return "console_notifier"
}

// GetSubscribedEvents все типы уведомлений сессий
func (c *ConsoleNotifier) GetSubscribedEvents() []events.EventType {
	return subscribedEvents()
}

// Sent количество напечатанных уведомлений
func (c *ConsoleNotifier) Sent() int64 {
	return c.sent.Load()
}
