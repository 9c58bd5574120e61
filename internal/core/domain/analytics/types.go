// internal/core/domain/analytics/types.go
package analytics

import (
	"fmt"
	"strings"
	"time"
)

// PeriodType тип периода отчёта
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodWeekly  PeriodType = "weekly"
	PeriodMonthly PeriodType = "monthly"
	PeriodCustom  PeriodType = "custom"
)

// Bounds границы периода, заканчивающегося в now (UTC)
func (p PeriodType) Bounds(now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case PeriodDaily:
		return day, day.AddDate(0, 0, 1), nil
	case PeriodWeekly:
		return day.AddDate(0, 0, -6), day.AddDate(0, 0, 1), nil
	case PeriodMonthly:
		return day.AddDate(0, 0, -29), day.AddDate(0, 0, 1), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("для периода %q нужны явные границы", p)
	}
}

// Bucket агрегат PnL по корзине времени
type Bucket struct {
	Count      int     `json:"count"`
	TotalPnl   float64 `json:"total_pnl"`
	AveragePnl float64 `json:"average_pnl"`
}

func (b *Bucket) add(pnl float64) {
	b.Count++
	b.TotalPnl += pnl
	b.AveragePnl = b.TotalPnl / float64(b.Count)
}

// SessionAnalytics агрегированная аналитика за период
type SessionAnalytics struct {
	UserID      int64      `json:"user_id"`
	PeriodType  PeriodType `json:"period_type"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`

	TotalSessions int            `json:"total_sessions"`
	ByStatus      map[string]int `json:"by_status"`
	ByReason      map[string]int `json:"by_reason"`

	PnL  PnLStats    `json:"pnl"`
	Risk RiskMetrics `json:"risk"`

	AverageDurationMinutes float64 `json:"average_duration_minutes"`
	TotalTrades            int     `json:"total_trades"`

	ByHour    map[int]*Bucket    `json:"by_hour"`
	ByWeekday map[string]*Bucket `json:"by_weekday"`

	GeneratedAt time.Time `json:"generated_at"`
}

// OptimalTiming рекомендации по времени начала сессий
type OptimalTiming struct {
	BestHours  []int              `json:"best_hours"`
	BestDays   []time.Weekday     `json:"best_days"`
	ByHour     map[int]*Bucket    `json:"by_hour"`
	ByWeekday  map[string]*Bucket `json:"by_weekday"`
	SampleSize int                `json:"sample_size"`
}

// Prediction эвристический прогноз исхода сессии
type Prediction struct {
	PredictedPnl   float64 `json:"predicted_pnl"`
	WinProbability float64 `json:"win_probability"`
	Confidence     float64 `json:"confidence"`
	SampleSize     int     `json:"sample_size"`
	Fallback       bool    `json:"fallback"`
}

// RiskLevel уровень риска активной сессии
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// LiveMetrics показатели активной сессии
type LiveMetrics struct {
	SessionID           string        `json:"session_id"`
	UserID              int64         `json:"user_id"`
	Elapsed             time.Duration `json:"elapsed"`
	Remaining           time.Duration `json:"remaining"`
	RealizedPnl         float64       `json:"realized_pnl"`
	LossUsagePct        float64       `json:"loss_usage_pct"`
	TradeCount          int           `json:"trade_count"`
	TradeVelocity       float64       `json:"trade_velocity"` // сделок в минуту
	RiskLevel           RiskLevel     `json:"risk_level"`
	ProjectedPnl        float64       `json:"projected_pnl"`
	ProjectedConfidence float64       `json:"projected_confidence"`
}

const keyPrefix = "analytics:"

// CacheKey ключ кэша аналитики
func CacheKey(userID int64, periodType PeriodType, start, end time.Time) string {
	return fmt.Sprintf("%s%d:%s:%d:%d", keyPrefix, userID, periodType, start.Unix(), end.Unix())
}

// UserCachePrefix префикс всех ключей пользователя
func UserCachePrefix(userID int64) string {
	return fmt.Sprintf("%s%d:", keyPrefix, userID)
}

// weekdayName ключ дня недели в отчёте
func weekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}
