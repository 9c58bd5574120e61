// internal/notifier/redis_notifier.go
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	events "trading-session-guard/internal/infrastructure/transport/event_bus"

	"github.com/go-redis/redis/v8"
)

// RedisNotifier публикует уведомления в канал Redis pub/sub для внешних потребителей
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
}

// NewRedisNotifier создает публикатора
func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, timeout: 3 * time.Second}
}

// HandleEvent сериализует уведомление и публикует его
func (r *RedisNotifier) HandleEvent(event events.Event) error {
	n, ok := FromEvent(event)
	if !ok {
		return nil
	}

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("RedisNotifier: marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("RedisNotifier: publish %s: %w", r.channel, err)
	}
	return nil
}

// GetName имя подписчика
func (r *RedisNotifier) GetName() string {
	return "redis_notifier"
}

// GetSubscribedEvents все типы уведомлений сессий
func (r *RedisNotifier) GetSubscribedEvents() []events.EventType {
	return subscribedEvents()
}
