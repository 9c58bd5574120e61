// internal/core/domain/monitor/summary.go
package monitor

import (
	"time"

	"trading-session-guard/internal/core/domain/sessions"
)

// Summary итоги завершённой сессии
type Summary struct {
	Status            sessions.Status
	TerminationReason sessions.TerminationReason
	RealizedPnl       string
	TradeCount        int
	Duration          time.Duration
	LossUsage         string
}

// Summarize собирает итоги сессии
func Summarize(session *sessions.TradingSession, now time.Time) Summary {
	s := Summary{
		Status:            session.Status,
		TerminationReason: session.TerminationReason,
		RealizedPnl:       session.RealizedPnl.String(),
		TradeCount:        session.TradeCount,
		Duration:          session.Elapsed(now).Truncate(time.Second),
	}
	if pct, ok := session.LossPercentage(); ok {
		s.LossUsage = pct.StringFixed(2)
	}
	return s
}

// Payload поля для уведомления
func (s Summary) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"status":           string(s.Status),
		"reason":           string(s.TerminationReason),
		"realized_pnl":     s.RealizedPnl,
		"trade_count":      s.TradeCount,
		"duration_seconds": int64(s.Duration.Seconds()),
	}
	if s.LossUsage != "" {
		p["loss_usage_pct"] = s.LossUsage
	}
	return p
}
