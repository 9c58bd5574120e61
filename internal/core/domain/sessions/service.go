// internal/core/domain/sessions/service.go
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-session-guard/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Monitoring регистрация задач контроля активной сессии
type Monitoring interface {
	StartMonitoring(ctx context.Context, session *TradingSession) error
}

// Terminator координатор завершения
type Terminator interface {
	Terminate(ctx context.Context, sessionID string, reason TerminationReason) (bool, error)
}

// MaxDurationMinutes верхняя граница длительности сессии (сутки)
const MaxDurationMinutes = 24 * 60

// CreateParams параметры новой сессии
type CreateParams struct {
	UserID              int64
	DurationMinutes     int
	LossLimitAmount     decimal.Decimal
	LossLimitPercentage decimal.Decimal
	StartingBalance     decimal.Decimal
}

// Validate проверяет параметры
func (p CreateParams) Validate() error {
	switch {
	case p.UserID <= 0:
		return &ValidationError{Field: "user_id", Reason: "должен быть положительным"}
	case p.DurationMinutes <= 0 || p.DurationMinutes > MaxDurationMinutes:
		return &ValidationError{Field: "duration_minutes", Reason: fmt.Sprintf("допустимо от 1 до %d", MaxDurationMinutes)}
	case p.LossLimitAmount.IsNegative():
		return &ValidationError{Field: "loss_limit_amount", Reason: "не может быть отрицательным"}
	case p.LossLimitPercentage.IsNegative() || p.LossLimitPercentage.GreaterThan(hundred):
		return &ValidationError{Field: "loss_limit_percentage", Reason: "допустимо от 0 до 100"}
	case p.StartingBalance.IsNegative():
		return &ValidationError{Field: "starting_balance", Reason: "не может быть отрицательным"}
	case p.LossLimitPercentage.IsPositive() && !p.StartingBalance.IsPositive():
		return &ValidationError{Field: "starting_balance", Reason: "обязателен для процентного лимита"}
	case !p.LossLimitAmount.IsPositive() && !p.LossLimitPercentage.IsPositive():
		return &ValidationError{Field: "loss_limit", Reason: "нужен лимит суммой или процентом"}
	}
	return nil
}

// Service жизненный цикл торговых сессий
type Service struct {
	store      Store
	monitoring Monitoring
	terminator Terminator
	now        func() time.Time
}

// NewService создает сервис
func NewService(store Store, monitoring Monitoring, terminator Terminator) *Service {
	return &Service{
		store:      store,
		monitoring: monitoring,
		terminator: terminator,
		now:        time.Now,
	}
}

// WithClock подменяет часы
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create создает сессию в статусе PENDING
func (s *Service) Create(ctx context.Context, params CreateParams) (*TradingSession, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	session := &TradingSession{
		ID:                  uuid.New().String(),
		UserID:              params.UserID,
		Status:              StatusPending,
		DurationMinutes:     params.DurationMinutes,
		LossLimitAmount:     params.LossLimitAmount,
		LossLimitPercentage: params.LossLimitPercentage,
		StartingBalance:     params.StartingBalance,
		RealizedPnl:         decimal.Zero,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("Service.Create: %w", err)
	}

	logger.Info("🆕 [Sessions] Создана сессия %s пользователя %d на %d мин", session.ID, session.UserID, session.DurationMinutes)
	return session, nil
}

// Activate переводит PENDING → ACTIVE, фиксирует время окончания и ставит контроль
func (s *Service) Activate(ctx context.Context, sessionID string) (*TradingSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("Service.Activate %s: %w", sessionID, err)
	}
	if session.Status != StatusPending {
		return nil, fmt.Errorf("Service.Activate %s (%s): %w", sessionID, session.Status, ErrInvalidTransition)
	}

	start := s.now()
	end := start.Add(session.Duration())
	applied, err := s.store.AtomicTransition(ctx, sessionID, StatusPending, StatusActive, TransitionFields{
		StartTime: &start,
		EndTime:   &end,
	})
	if err != nil {
		return nil, fmt.Errorf("Service.Activate %s: %w", sessionID, err)
	}
	if !applied {
		return nil, fmt.Errorf("Service.Activate %s: %w", sessionID, ErrInvalidTransition)
	}

	session.Status = StatusActive
	session.StartTime = start
	session.EndTime = end

	if err := s.monitoring.StartMonitoring(ctx, session); err != nil {
		// сессия без контроля недопустима
		logger.Error("❌ [Sessions] Контроль сессии %s не запущен, аварийная остановка: %v", sessionID, err)
		if _, termErr := s.terminator.Terminate(ctx, sessionID, ReasonEmergencyStop); termErr != nil {
			err = errors.Join(err, termErr)
		}
		return nil, fmt.Errorf("Service.Activate %s: %w", sessionID, err)
	}

	logger.Info("▶️ [Sessions] Сессия %s активна до %s", sessionID, end.Format(time.RFC3339))
	return session, nil
}

// RecordTrade добавляет результат сделки; при пробитии лимита сессия сразу завершается
func (s *Service) RecordTrade(ctx context.Context, sessionID string, pnlDelta decimal.Decimal) (*TradingSession, error) {
	session, err := s.store.ApplyTrade(ctx, sessionID, pnlDelta)
	if err != nil {
		return nil, fmt.Errorf("Service.RecordTrade %s: %w", sessionID, err)
	}

	if !session.LossLimitBreached() {
		return session, nil
	}

	logger.Warn("🚨 [Sessions] Сессия %s: сделка исчерпала лимит убытка", sessionID)
	if _, err := s.terminator.Terminate(ctx, sessionID, ReasonLossLimitReached); err != nil {
		return nil, fmt.Errorf("Service.RecordTrade %s: %w", sessionID, err)
	}
	return s.Get(ctx, sessionID)
}

// Stop завершение по запросу пользователя
func (s *Service) Stop(ctx context.Context, sessionID string) (bool, error) {
	return s.terminate(ctx, sessionID, ReasonUserStopped)
}

// EmergencyStop аварийное завершение
func (s *Service) EmergencyStop(ctx context.Context, sessionID string) (bool, error) {
	return s.terminate(ctx, sessionID, ReasonEmergencyStop)
}

func (s *Service) terminate(ctx context.Context, sessionID string, reason TerminationReason) (bool, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return false, err
	}
	applied, err := s.terminator.Terminate(ctx, sessionID, reason)
	if err != nil {
		return false, fmt.Errorf("Service.%s %s: %w", reason, sessionID, err)
	}
	return applied, nil
}

// Get возвращает сессию
func (s *Service) Get(ctx context.Context, sessionID string) (*TradingSession, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("Service.Get %s: %w", sessionID, err)
	}
	return session, nil
}
