// internal/core/domain/analytics/engine.go
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/pkg/logger"

	"github.com/shopspring/decimal"
)

// Config эвристики движка аналитики
type Config struct {
	CacheTTL                time.Duration
	RiskFreeRate            float64
	MinTimingSessions       int
	MinPredictionMatches    int
	PredictionWindow        float64
	FallbackConfidence      float64
	MaxConfidence           float64
	ConfidenceSampleScale   int
	VelocityMediumThreshold float64
	VelocityHighThreshold   float64
	LossUsageMedium         float64
	LossUsageHigh           float64
	TradeConfidenceScale    int
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		CacheTTL:                5 * time.Minute,
		MinTimingSessions:       10,
		MinPredictionMatches:    5,
		PredictionWindow:        0.2,
		FallbackConfidence:      0.1,
		MaxConfidence:           0.9,
		ConfidenceSampleScale:   50,
		VelocityMediumThreshold: 0.5,
		VelocityHighThreshold:   2,
		LossUsageMedium:         50,
		LossUsageHigh:           80,
		TradeConfidenceScale:    20,
	}
}

// Engine расчёт аналитики по истории сессий. Источник данных только читается.
type Engine struct {
	store    sessions.Store
	cache    Cache
	recorder Recorder
	config   Config
	now      func() time.Time
}

// Option опция движка
type Option func(*Engine)

// WithClock подменяет часы
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecorder подключает метрики кэша
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine создает движок; cache может быть nil
func NewEngine(store sessions.Store, cache Cache, config Config, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		cache:    cache,
		recorder: nopRecorder{},
		config:   config,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetSessionAnalytics аналитика пользователя (0: все) за период.
// Нулевые start/end вычисляются из periodType.
func (e *Engine) GetSessionAnalytics(ctx context.Context, userID int64, periodType PeriodType, start, end time.Time) (*SessionAnalytics, error) {
	if start.IsZero() && end.IsZero() {
		var err error
		start, end, err = periodType.Bounds(e.now())
		if err != nil {
			return nil, &sessions.ValidationError{Field: "period", Reason: err.Error()}
		}
	}
	if !end.IsZero() && !start.IsZero() && !end.After(start) {
		return nil, &sessions.ValidationError{Field: "period", Reason: "конец периода раньше начала"}
	}

	key := CacheKey(userID, periodType, start, end)
	if e.cache != nil {
		var cached SessionAnalytics
		found, err := e.cache.Get(ctx, key, &cached)
		if err != nil {
			logger.Warn("⚠️ [Analytics] Ошибка чтения кэша %s: %v", key, err)
		}
		if found {
			e.recorder.CacheHit()
			return &cached, nil
		}
		e.recorder.CacheMiss()
	}

	list, err := e.store.ListByUser(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("Engine.GetSessionAnalytics: %w", err)
	}

	result := e.aggregate(list)
	result.UserID = userID
	result.PeriodType = periodType
	result.PeriodStart = start
	result.PeriodEnd = end

	if e.cache != nil {
		if err := e.cache.Set(ctx, key, result, e.config.CacheTTL); err != nil {
			logger.Warn("⚠️ [Analytics] Ошибка записи кэша %s: %v", key, err)
		}
	}
	return result, nil
}

func (e *Engine) aggregate(list []*sessions.TradingSession) *SessionAnalytics {
	result := &SessionAnalytics{
		TotalSessions: len(list),
		ByStatus:      make(map[string]int),
		ByReason:      make(map[string]int),
		ByHour:        make(map[int]*Bucket),
		ByWeekday:     make(map[string]*Bucket),
		GeneratedAt:   e.now(),
	}

	// list отсортирован по start_time, поэтому pnls хронологичен
	pnls := make([]float64, 0, len(list))
	var durationTotal float64
	for _, s := range list {
		result.ByStatus[string(s.Status)]++
		result.TotalTrades += s.TradeCount
		if !s.Status.IsTerminal() {
			continue
		}
		if s.TerminationReason != "" {
			result.ByReason[string(s.TerminationReason)]++
		}

		pnl := s.RealizedPnl.InexactFloat64()
		pnls = append(pnls, pnl)
		durationTotal += s.Elapsed(e.now()).Minutes()
		addToBuckets(result.ByHour, result.ByWeekday, s.StartTime, pnl)
	}

	result.PnL = ComputePnLStats(pnls)
	result.Risk = ComputeRiskMetrics(pnls, e.config.RiskFreeRate)
	if len(pnls) > 0 {
		result.AverageDurationMinutes = durationTotal / float64(len(pnls))
	}
	return result
}

func addToBuckets(byHour map[int]*Bucket, byWeekday map[string]*Bucket, start time.Time, pnl float64) {
	start = start.UTC()
	h := start.Hour()
	if byHour[h] == nil {
		byHour[h] = &Bucket{}
	}
	byHour[h].add(pnl)

	d := weekdayName(start.Weekday())
	if byWeekday[d] == nil {
		byWeekday[d] = &Bucket{}
	}
	byWeekday[d].add(pnl)
}

// GetOptimalSessionTiming лучшие часы (верхняя четверть) и дни (верхняя половина) по среднему PnL
func (e *Engine) GetOptimalSessionTiming(ctx context.Context, userID int64) (*OptimalTiming, error) {
	list, err := e.store.ListTerminal(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Engine.GetOptimalSessionTiming: %w", err)
	}
	if len(list) < e.config.MinTimingSessions {
		return nil, fmt.Errorf("Engine.GetOptimalSessionTiming: %d из %d сессий: %w",
			len(list), e.config.MinTimingSessions, sessions.ErrInsufficientData)
	}

	timing := &OptimalTiming{
		ByHour:     make(map[int]*Bucket),
		ByWeekday:  make(map[string]*Bucket),
		SampleSize: len(list),
	}
	byDay := make(map[time.Weekday]*Bucket)
	for _, s := range list {
		pnl := s.RealizedPnl.InexactFloat64()
		addToBuckets(timing.ByHour, timing.ByWeekday, s.StartTime, pnl)
		d := s.StartTime.UTC().Weekday()
		if byDay[d] == nil {
			byDay[d] = &Bucket{}
		}
		byDay[d].add(pnl)
	}

	hours := make([]int, 0, len(timing.ByHour))
	for h := range timing.ByHour {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		a, b := timing.ByHour[hours[i]].AveragePnl, timing.ByHour[hours[j]].AveragePnl
		if a == b {
			return hours[i] < hours[j]
		}
		return a > b
	})
	timing.BestHours = hours[:topCount(len(hours), 4)]

	days := make([]time.Weekday, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool {
		a, b := byDay[days[i]].AveragePnl, byDay[days[j]].AveragePnl
		if a == b {
			return days[i] < days[j]
		}
		return a > b
	})
	timing.BestDays = days[:topCount(len(days), 2)]

	return timing, nil
}

// topCount ceil(n/parts), не меньше 1 при n > 0
func topCount(n, parts int) int {
	if n == 0 {
		return 0
	}
	return (n + parts - 1) / parts
}

// PredictSessionOutcome прогноз по историческим сессиям с близкими параметрами (±окно).
// Мало совпадений: нейтральный прогноз с низкой уверенностью, без ошибки.
func (e *Engine) PredictSessionOutcome(ctx context.Context, userID int64, durationMinutes int, lossLimitAmount decimal.Decimal) (*Prediction, error) {
	list, err := e.store.ListTerminal(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Engine.PredictSessionOutcome: %w", err)
	}

	window := e.config.PredictionWindow
	duration := float64(durationMinutes)
	limit := lossLimitAmount.InexactFloat64()

	var matched []float64
	wins := 0
	for _, s := range list {
		if !within(float64(s.DurationMinutes), duration, window) || !within(s.LossLimitAmount.InexactFloat64(), limit, window) {
			continue
		}
		pnl := s.RealizedPnl.InexactFloat64()
		matched = append(matched, pnl)
		if pnl > 0 {
			wins++
		}
	}

	n := len(matched)
	if n < e.config.MinPredictionMatches {
		return &Prediction{
			PredictedPnl:   0,
			WinProbability: 0.5,
			Confidence:     e.config.FallbackConfidence,
			SampleSize:     n,
			Fallback:       true,
		}, nil
	}

	confidence := e.config.MaxConfidence
	if e.config.ConfidenceSampleScale > 0 {
		confidence = math.Min(e.config.MaxConfidence, float64(n)/float64(e.config.ConfidenceSampleScale))
	}
	return &Prediction{
		PredictedPnl:   mean(matched),
		WinProbability: float64(wins) / float64(n),
		Confidence:     confidence,
		SampleSize:     n,
	}, nil
}

func within(value, target, window float64) bool {
	return math.Abs(value-target) <= math.Abs(target)*window
}

// GetRealTimeMetrics показатели активных сессий пользователя (0: все)
func (e *Engine) GetRealTimeMetrics(ctx context.Context, userID int64) ([]LiveMetrics, error) {
	list, err := e.store.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("Engine.GetRealTimeMetrics: %w", err)
	}

	now := e.now()
	result := make([]LiveMetrics, 0, len(list))
	for _, s := range list {
		result = append(result, e.liveMetrics(s, now))
	}
	return result, nil
}

func (e *Engine) liveMetrics(s *sessions.TradingSession, now time.Time) LiveMetrics {
	elapsed := s.Elapsed(now)
	m := LiveMetrics{
		SessionID:   s.ID,
		UserID:      s.UserID,
		Elapsed:     elapsed,
		Remaining:   s.Remaining(now),
		RealizedPnl: s.RealizedPnl.InexactFloat64(),
		TradeCount:  s.TradeCount,
	}
	if pct, ok := s.LossPercentage(); ok {
		m.LossUsagePct = pct.InexactFloat64()
	}

	minutes := math.Max(elapsed.Minutes(), 1)
	m.TradeVelocity = float64(s.TradeCount) / minutes

	switch {
	case m.TradeVelocity >= e.config.VelocityHighThreshold || m.LossUsagePct >= e.config.LossUsageHigh:
		m.RiskLevel = RiskHigh
	case m.TradeVelocity >= e.config.VelocityMediumThreshold || m.LossUsagePct >= e.config.LossUsageMedium:
		m.RiskLevel = RiskMedium
	default:
		m.RiskLevel = RiskLow
	}

	// линейная экстраполяция на всю длительность
	if total := s.Duration().Minutes(); elapsed > 0 && total > 0 {
		m.ProjectedPnl = m.RealizedPnl / elapsed.Minutes() * total
	}
	if e.config.TradeConfidenceScale > 0 {
		m.ProjectedConfidence = math.Min(e.config.MaxConfidence, float64(s.TradeCount)/float64(e.config.TradeConfidenceScale))
	}
	return m
}

// RefreshAnalyticsCache сбрасывает кэш пользователя вместе с общей сводкой
// (userID=0), в которую входят его сессии; userID=0 очищает весь кэш аналитики
func (e *Engine) RefreshAnalyticsCache(ctx context.Context, userID int64) error {
	if e.cache == nil {
		return nil
	}

	prefixes := []string{keyPrefix}
	if userID != 0 {
		prefixes = []string{UserCachePrefix(userID), UserCachePrefix(0)}
	}
	for _, prefix := range prefixes {
		n, err := e.cache.DeletePrefix(ctx, prefix)
		if err != nil {
			return sessions.Transient("analytics_cache", err)
		}
		logger.Debug("🧽 [Analytics] Сброшено записей кэша %s*: %d", prefix, n)
	}
	return nil
}
