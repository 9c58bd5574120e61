// internal/core/domain/sessions/store.go
package sessions

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store интерфейс хранилища торговых сессий.
// Все изменения поля status идут только через AtomicTransition.
type Store interface {
	// Create сохраняет новую сессию в статусе PENDING
	Create(ctx context.Context, session *TradingSession) error
	// GetSession возвращает сессию или ErrNotFound
	GetSession(ctx context.Context, id string) (*TradingSession, error)
	// AtomicTransition условно меняет статус from → to; applied=false если статус уже другой.
	// Для перехода в ACTIVE возвращает ErrActiveSessionExists при нарушении уникальности.
	AtomicTransition(ctx context.Context, id string, from, to Status, fields TransitionFields) (bool, error)
	// ApplyTrade добавляет результат сделки к ACTIVE сессии
	ApplyTrade(ctx context.Context, id string, pnlDelta decimal.Decimal) (*TradingSession, error)
	// FindActiveSessionsPastEndTime ID сессий ACTIVE с end_time < now
	FindActiveSessionsPastEndTime(ctx context.Context, now time.Time) ([]string, error)
	// DeleteOlderThan удаляет терминальные сессии, завершившиеся раньше cutoff
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// ListByUser сессии пользователя (userID=0: все) со start_time в [from, to); нулевые границы не ограничивают
	ListByUser(ctx context.Context, userID int64, from, to time.Time) ([]*TradingSession, error)
	// ListActiveByUser ACTIVE сессии пользователя (userID=0: все)
	ListActiveByUser(ctx context.Context, userID int64) ([]*TradingSession, error)
	// ListTerminal завершённые сессии пользователя (userID=0: все)
	ListTerminal(ctx context.Context, userID int64) ([]*TradingSession, error)
}
