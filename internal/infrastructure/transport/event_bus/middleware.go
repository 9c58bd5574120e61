// internal/infrastructure/transport/event_bus/middleware.go
package events

import (
	"fmt"
	"time"

	"trading-session-guard/pkg/logger"
)

// LoggingMiddleware логирует длительность обработки событий
type LoggingMiddleware struct{}

func (m *LoggingMiddleware) Process(event Event, next HandlerFunc) error {
	start := time.Now()
	err := next(event)

	if err != nil {
		logger.Debug("❌ [LoggingMiddleware] Ошибка обработки %s за %v: %v", event.Type, time.Since(start), err)
	} else {
		logger.Debug("✅ [LoggingMiddleware] %s обработан за %v", event.Type, time.Since(start))
	}
	return err
}

// ValidationMiddleware отбрасывает события без обязательных полей
type ValidationMiddleware struct{}

func (m *ValidationMiddleware) Process(event Event, next HandlerFunc) error {
	if event.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if event.Source == "" {
		return fmt.Errorf("event source is required")
	}
	if event.Timestamp.IsZero() {
		return fmt.Errorf("event timestamp is required")
	}
	return next(event)
}
