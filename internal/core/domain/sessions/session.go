// internal/core/domain/sessions/session.go
package sessions

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status статус торговой сессии
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusActive           Status = "ACTIVE"
	StatusCompleted        Status = "COMPLETED"
	StatusStopped          Status = "STOPPED"
	StatusExpired          Status = "EXPIRED"
	StatusEmergencyStopped Status = "EMERGENCY_STOPPED"
)

// TerminalStatuses все поглощающие статусы
var TerminalStatuses = []Status{StatusCompleted, StatusStopped, StatusExpired, StatusEmergencyStopped}

// IsTerminal true для статусов, из которых нет переходов
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusStopped, StatusExpired, StatusEmergencyStopped:
		return true
	}
	return false
}

// Valid проверяет, что статус известен
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusActive || s.IsTerminal()
}

// CanTransition описывает автомат PENDING → ACTIVE → {терминальные}
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusActive
	case StatusActive:
		return to.IsTerminal()
	default:
		return false
	}
}

// TerminationReason причина завершения сессии
type TerminationReason string

const (
	ReasonTimeExpired      TerminationReason = "time_expired"
	ReasonLossLimitReached TerminationReason = "loss_limit_reached"
	ReasonUserStopped      TerminationReason = "user_stopped"
	ReasonEmergencyStop    TerminationReason = "emergency_stop"
)

// TerminalStatus сопоставляет причину завершения с терминальным статусом
func (r TerminationReason) TerminalStatus() (Status, error) {
	switch r {
	case ReasonTimeExpired:
		return StatusExpired, nil
	case ReasonLossLimitReached:
		return StatusStopped, nil
	case ReasonUserStopped:
		return StatusCompleted, nil
	case ReasonEmergencyStop:
		return StatusEmergencyStopped, nil
	default:
		return "", &ValidationError{Field: "reason", Reason: fmt.Sprintf("неизвестная причина завершения %q", string(r))}
	}
}

// TradingSession торговая сессия пользователя с ограничением по времени и убытку
type TradingSession struct {
	ID                  string            `json:"id"`
	UserID              int64             `json:"user_id"`
	Status              Status            `json:"status"`
	DurationMinutes     int               `json:"duration_minutes"`
	LossLimitAmount     decimal.Decimal   `json:"loss_limit_amount"`
	LossLimitPercentage decimal.Decimal   `json:"loss_limit_percentage"`
	StartingBalance     decimal.Decimal   `json:"starting_balance"`
	StartTime           time.Time         `json:"start_time"`
	EndTime             time.Time         `json:"end_time"`
	ActualEndTime       *time.Time        `json:"actual_end_time,omitempty"`
	RealizedPnl         decimal.Decimal   `json:"realized_pnl"`
	TradeCount          int               `json:"trade_count"`
	TerminationReason   TerminationReason `json:"termination_reason,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// Duration длительность сессии
func (s *TradingSession) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// Remaining сколько осталось до EndTime (не меньше нуля)
func (s *TradingSession) Remaining(now time.Time) time.Duration {
	if s.EndTime.IsZero() {
		return s.Duration()
	}
	if d := s.EndTime.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Elapsed сколько прошло с начала сессии
func (s *TradingSession) Elapsed(now time.Time) time.Duration {
	if s.StartTime.IsZero() || now.Before(s.StartTime) {
		return 0
	}
	end := now
	if s.ActualEndTime != nil && s.ActualEndTime.Before(now) {
		end = *s.ActualEndTime
	}
	return end.Sub(s.StartTime)
}

// IsActive true если сессия в статусе ACTIVE
func (s *TradingSession) IsActive() bool {
	return s.Status == StatusActive
}

// Clone возвращает независимую копию
func (s *TradingSession) Clone() *TradingSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.ActualEndTime != nil {
		t := *s.ActualEndTime
		c.ActualEndTime = &t
	}
	return &c
}

// TransitionFields поля, записываемые вместе со сменой статуса
type TransitionFields struct {
	StartTime         *time.Time
	EndTime           *time.Time
	ActualEndTime     *time.Time
	TerminationReason TerminationReason
}
