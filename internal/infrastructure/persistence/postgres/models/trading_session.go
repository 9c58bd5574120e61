// internal/infrastructure/persistence/postgres/models/trading_session.go
package models

import (
	"database/sql"
	"time"

	"trading-session-guard/internal/core/domain/sessions"

	"github.com/shopspring/decimal"
)

// TradingSession строка таблицы trading_sessions; время хранится в unix-миллисекундах
type TradingSession struct {
	ID                  string          `db:"id"`
	UserID              int64           `db:"user_id"`
	Status              string          `db:"status"`
	DurationMinutes     int             `db:"duration_minutes"`
	LossLimitAmount     decimal.Decimal `db:"loss_limit_amount"`
	LossLimitPercentage decimal.Decimal `db:"loss_limit_percentage"`
	StartingBalance     decimal.Decimal `db:"starting_balance"`
	StartTime           int64           `db:"start_time"`
	EndTime             int64           `db:"end_time"`
	ActualEndTime       sql.NullInt64   `db:"actual_end_time"`
	RealizedPnl         decimal.Decimal `db:"realized_pnl"`
	TradeCount          int             `db:"trade_count"`
	TerminationReason   string          `db:"termination_reason"`
	CreatedAt           int64           `db:"created_at"`
	UpdatedAt           int64           `db:"updated_at"`
}

// TradingSessionColumns список колонок в порядке полей
const TradingSessionColumns = `id, user_id, status, duration_minutes, loss_limit_amount, loss_limit_percentage,
	starting_balance, start_time, end_time, actual_end_time, realized_pnl, trade_count,
	termination_reason, created_at, updated_at`

// NewTradingSession строит строку из доменной сессии
func NewTradingSession(s *sessions.TradingSession) *TradingSession {
	row := &TradingSession{
		ID:                  s.ID,
		UserID:              s.UserID,
		Status:              string(s.Status),
		DurationMinutes:     s.DurationMinutes,
		LossLimitAmount:     s.LossLimitAmount,
		LossLimitPercentage: s.LossLimitPercentage,
		StartingBalance:     s.StartingBalance,
		StartTime:           ToMillis(s.StartTime),
		EndTime:             ToMillis(s.EndTime),
		RealizedPnl:         s.RealizedPnl,
		TradeCount:          s.TradeCount,
		TerminationReason:   string(s.TerminationReason),
		CreatedAt:           ToMillis(s.CreatedAt),
		UpdatedAt:           ToMillis(s.UpdatedAt),
	}
	if s.ActualEndTime != nil {
		row.ActualEndTime = sql.NullInt64{Int64: ToMillis(*s.ActualEndTime), Valid: true}
	}
	return row
}

// ToDomain конвертирует строку в доменную сессию
func (r *TradingSession) ToDomain() *sessions.TradingSession {
	s := &sessions.TradingSession{
		ID:                  r.ID,
		UserID:              r.UserID,
		Status:              sessions.Status(r.Status),
		DurationMinutes:     r.DurationMinutes,
		LossLimitAmount:     r.LossLimitAmount,
		LossLimitPercentage: r.LossLimitPercentage,
		StartingBalance:     r.StartingBalance,
		StartTime:           FromMillis(r.StartTime),
		EndTime:             FromMillis(r.EndTime),
		RealizedPnl:         r.RealizedPnl,
		TradeCount:          r.TradeCount,
		TerminationReason:   sessions.TerminationReason(r.TerminationReason),
		CreatedAt:           FromMillis(r.CreatedAt),
		UpdatedAt:           FromMillis(r.UpdatedAt),
	}
	if r.ActualEndTime.Valid {
		t := FromMillis(r.ActualEndTime.Int64)
		s.ActualEndTime = &t
	}
	return s
}

// ToMillis переводит время в unix-миллисекунды; нулевое время хранится как 0
func ToMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromMillis обратное к ToMillis
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
