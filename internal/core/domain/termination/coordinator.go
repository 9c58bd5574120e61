// internal/core/domain/termination/coordinator.go
package termination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-session-guard/internal/core/domain/jobs"
	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/notifier"
	"trading-session-guard/pkg/logger"
)

// OrderCanceller подсистема ордеров
type OrderCanceller interface {
	CancelPendingOrders(ctx context.Context, sessionID string) error
}

// MonitoringStopper снимает задачи контроля сессии
type MonitoringStopper interface {
	StopMonitoring(ctx context.Context, sessionID string) error
}

// Notifier отправка уведомлений
type Notifier interface {
	Emit(ctx context.Context, n notifier.Notification) error
}

// JobEnqueuer постановка отложенных задач
type JobEnqueuer interface {
	Enqueue(ctx context.Context, t jobs.Type, sessionID string, payload interface{}, opts jobs.Options) (string, bool, error)
}

// Recorder метрики завершения
type Recorder interface {
	SessionTerminated(reason string)
	TerminationSkipped()
}

type nopRecorder struct{}

func (nopRecorder) SessionTerminated(string) {}
func (nopRecorder) TerminationSkipped()      {}

// Config параметры координатора
type Config struct {
	// Задержка перед расчётом итогов сессии
	AnalyticsDelay time.Duration
	// Попытки отмены ордеров внутри одного вызова
	OrderCancelAttempts int
	OrderCancelBackoff  time.Duration
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		AnalyticsDelay:      time.Minute,
		OrderCancelAttempts: 3,
		OrderCancelBackoff:  200 * time.Millisecond,
	}
}

// Coordinator единственная точка завершения сессий.
// Побочные эффекты выполняет только вызов, выигравший условное обновление статуса.
type Coordinator struct {
	store    sessions.Store
	orders   OrderCanceller
	monitor  MonitoringStopper
	notifier Notifier
	jobs     JobEnqueuer
	recorder Recorder
	config   Config
	now      func() time.Time
}

// Option опция координатора
type Option func(*Coordinator)

// WithClock подменяет часы
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithRecorder подключает метрики
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewCoordinator создает координатор. monitor подключается позже через SetMonitor,
// так как монитор сам зависит от координатора.
func NewCoordinator(store sessions.Store, orders OrderCanceller, n Notifier, enqueuer JobEnqueuer, config Config, opts ...Option) *Coordinator {
	if config.OrderCancelAttempts <= 0 {
		config.OrderCancelAttempts = 1
	}
	c := &Coordinator{
		store:    store,
		orders:   orders,
		notifier: n,
		jobs:     enqueuer,
		recorder: nopRecorder{},
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetMonitor подключает монитор сессий
func (c *Coordinator) SetMonitor(m MonitoringStopper) {
	c.monitor = m
}

// Terminate завершает ACTIVE сессию по причине reason.
// applied=true получает ровно один вызывающий; остальные и отсутствующая сессия дают (false, nil).
func (c *Coordinator) Terminate(ctx context.Context, sessionID string, reason sessions.TerminationReason) (bool, error) {
	status, err := reason.TerminalStatus()
	if err != nil {
		return false, err
	}

	now := c.now()
	applied, err := c.store.AtomicTransition(ctx, sessionID, sessions.StatusActive, status, sessions.TransitionFields{
		ActualEndTime:     &now,
		TerminationReason: reason,
	})
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			c.recorder.TerminationSkipped()
			return false, nil
		}
		return false, fmt.Errorf("Coordinator.Terminate %s: %w", sessionID, err)
	}
	if !applied {
		c.recorder.TerminationSkipped()
		logger.Debug("🔕 [Termination] Сессия %s уже завершена или не активна (%s)", sessionID, reason)
		return false, nil
	}

	c.recorder.SessionTerminated(string(reason))
	logger.Info("🛑 [Termination] Сессия %s завершена: %s → %s", sessionID, reason, status)

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		// статус уже записан; без сессии остаются только отмена ордеров и задач
		logger.Warn("⚠️ [Termination] Не удалось перечитать сессию %s: %v", sessionID, err)
		session = &sessions.TradingSession{ID: sessionID, Status: status, TerminationReason: reason, ActualEndTime: &now}
	}

	c.runSideEffects(ctx, session, reason)
	return true, nil
}

func (c *Coordinator) runSideEffects(ctx context.Context, session *sessions.TradingSession, reason sessions.TerminationReason) {
	if err := c.cancelOrders(ctx, session.ID); err != nil {
		logger.Error("❌ [Termination] Ордера сессии %s не отменены: %v", session.ID, err)
	}

	if c.monitor != nil {
		if err := c.monitor.StopMonitoring(ctx, session.ID); err != nil {
			logger.Warn("⚠️ [Termination] Не удалось снять контроль сессии %s: %v", session.ID, err)
		}
	}

	if c.notifier != nil {
		n := notifier.Notification{
			SessionID: session.ID,
			UserID:    session.UserID,
			Type:      notifier.TypeSessionTerminated,
			Payload: map[string]interface{}{
				"reason":       string(reason),
				"status":       string(session.Status),
				"realized_pnl": session.RealizedPnl.String(),
				"trade_count":  session.TradeCount,
			},
			CreatedAt: c.now(),
		}
		if err := c.notifier.Emit(ctx, n); err != nil {
			logger.Warn("⚠️ [Termination] Уведомление о завершении %s не отправлено: %v", session.ID, err)
		}
	}

	if c.jobs != nil {
		payload := jobs.PerformancePayload{SessionID: session.ID, UserID: session.UserID, Reason: string(reason)}
		if _, _, err := c.jobs.Enqueue(ctx, jobs.TypePerformance, session.ID, payload, jobs.Options{Delay: c.config.AnalyticsDelay}); err != nil {
			logger.Warn("⚠️ [Termination] Не удалось запланировать итоги сессии %s: %v", session.ID, err)
		}
	}
}

func (c *Coordinator) cancelOrders(ctx context.Context, sessionID string) error {
	if c.orders == nil {
		return nil
	}

	var err error
	for attempt := 1; attempt <= c.config.OrderCancelAttempts; attempt++ {
		if err = c.orders.CancelPendingOrders(ctx, sessionID); err == nil {
			return nil
		}
		if !sessions.IsTransient(err) || attempt == c.config.OrderCancelAttempts {
			break
		}

		delay := c.config.OrderCancelBackoff * time.Duration(attempt)
		logger.Warn("🔄 [Termination] Отмена ордеров %s: попытка %d не удалась (%v), повтор через %v", sessionID, attempt, err, delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
