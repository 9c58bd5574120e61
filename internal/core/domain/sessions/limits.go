// internal/core/domain/sessions/limits.go
package sessions

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EffectiveLossLimit возвращает действующий абсолютный лимит убытка.
// Если заданы и сумма, и процент от стартового баланса, действует меньший
// из них: сессия останавливается по тому порогу, который пробит первым.
func (s *TradingSession) EffectiveLossLimit() (decimal.Decimal, bool) {
	var limits []decimal.Decimal

	if s.LossLimitAmount.IsPositive() {
		limits = append(limits, s.LossLimitAmount)
	}
	if s.LossLimitPercentage.IsPositive() && s.StartingBalance.IsPositive() {
		limits = append(limits, s.StartingBalance.Mul(s.LossLimitPercentage).Div(hundred))
	}

	if len(limits) == 0 {
		return decimal.Zero, false
	}
	return decimal.Min(limits[0], limits[1:]...), true
}

// CurrentLoss abs(min(0, realizedPnl))
func (s *TradingSession) CurrentLoss() decimal.Decimal {
	if s.RealizedPnl.IsNegative() {
		return s.RealizedPnl.Neg()
	}
	return decimal.Zero
}

// LossPercentage доля использованного лимита убытка в процентах.
// ok=false, если лимит не задан.
func (s *TradingSession) LossPercentage() (decimal.Decimal, bool) {
	limit, ok := s.EffectiveLossLimit()
	if !ok {
		return decimal.Zero, false
	}
	return s.CurrentLoss().Div(limit).Mul(hundred), true
}

// LossLimitBreached true когда использовано >= 100% лимита
func (s *TradingSession) LossLimitBreached() bool {
	pct, ok := s.LossPercentage()
	return ok && pct.GreaterThanOrEqual(hundred)
}
