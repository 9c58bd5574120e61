package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/infrastructure/cache/memory"
	storage "trading-session-guard/internal/infrastructure/persistence/in_memory_storage"

	"github.com/shopspring/decimal"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMaxDrawdown(t *testing.T) {
	cases := []struct {
		pnls []float64
		want float64
	}{
		{[]float64{100, -50, 80, -30}, 50},
		{[]float64{10, 20, 30}, 0},
		{[]float64{-10, -5}, 15},
		{nil, 0},
	}
	for _, tc := range cases {
		if got := MaxDrawdown(tc.pnls); !almostEqual(got, tc.want) {
			t.Errorf("MaxDrawdown(%v) = %v, want %v", tc.pnls, got, tc.want)
		}
	}
}

func TestSharpeRatio(t *testing.T) {
	if got := SharpeRatio([]float64{42}, 0); got != 0 {
		t.Fatalf("single value sharpe = %v, want 0", got)
	}
	if got := SharpeRatio([]float64{5, 5, 5}, 0); got != 0 {
		t.Fatalf("zero stddev sharpe = %v, want 0", got)
	}
	// mean 0, population stddev 10
	if got := SharpeRatio([]float64{10, -10}, 0); !almostEqual(got, 0) {
		t.Fatalf("sharpe = %v, want 0", got)
	}
	// mean 15, population stddev 5
	if got := SharpeRatio([]float64{10, 20}, 5); !almostEqual(got, 2) {
		t.Fatalf("sharpe = %v, want 2", got)
	}
}

func TestPnLStats(t *testing.T) {
	s := ComputePnLStats([]float64{100, -50, 80, -30})

	if s.WinCount != 2 || s.LossCount != 2 {
		t.Fatalf("wins=%d losses=%d", s.WinCount, s.LossCount)
	}
	if !almostEqual(s.WinRate, 50) {
		t.Errorf("win rate = %v, want 50", s.WinRate)
	}
	if !almostEqual(s.AvgWin, 90) || !almostEqual(s.AvgLoss, 40) {
		t.Errorf("avg win=%v loss=%v, want 90/40", s.AvgWin, s.AvgLoss)
	}
	if !almostEqual(s.ProfitFactor, 180.0/80.0) {
		t.Errorf("profit factor = %v, want 2.25", s.ProfitFactor)
	}
	if s.Best != 100 || s.Worst != -50 || !almostEqual(s.Total, 100) {
		t.Errorf("best=%v worst=%v total=%v", s.Best, s.Worst, s.Total)
	}

	if pf := ComputePnLStats([]float64{10, 20}).ProfitFactor; pf != 0 {
		t.Errorf("profit factor without losses = %v, want 0", pf)
	}
}

var base = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC) // понедельник

func addTerminal(t *testing.T, store *storage.InMemorySessionStore, id string, userID int64, start time.Time, duration int, limit, pnl float64) {
	t.Helper()
	end := start.Add(time.Duration(duration) * time.Minute)
	err := store.Create(context.Background(), &sessions.TradingSession{
		ID:                id,
		UserID:            userID,
		Status:            sessions.StatusCompleted,
		DurationMinutes:   duration,
		LossLimitAmount:   decimal.NewFromFloat(limit),
		StartTime:         start,
		EndTime:           end,
		ActualEndTime:     &end,
		RealizedPnl:       decimal.NewFromFloat(pnl),
		TerminationReason: sessions.ReasonUserStopped,
		TradeCount:        3,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func newEngine(store sessions.Store, cache Cache, now time.Time) *Engine {
	return NewEngine(store, cache, DefaultConfig(), WithClock(func() time.Time { return now }))
}

func TestOptimalTimingRequiresTenSessions(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	for i := 0; i < 9; i++ {
		addTerminal(t, store, fmt.Sprintf("s-%d", i), 1, base.Add(time.Duration(i)*time.Hour), 60, 10, 1)
	}
	e := newEngine(store, nil, base.Add(48*time.Hour))

	_, err := e.GetOptimalSessionTiming(context.Background(), 1)
	if !errors.Is(err, sessions.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
	if sessions.HTTPStatus(err) != 422 {
		t.Fatalf("http status = %d", sessions.HTTPStatus(err))
	}
}

func TestOptimalTimingPicksTopBuckets(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	// 8 разных часов понедельника, лучший час 9:00, и 2 сессии во вторник
	hourPnl := map[int]float64{9: 50, 10: 40, 11: -5, 12: -10, 13: 1, 14: 2, 15: 3, 16: 4}
	i := 0
	for h, pnl := range hourPnl {
		addTerminal(t, store, fmt.Sprintf("mon-%d", i), 1, base.Add(time.Duration(h)*time.Hour), 60, 10, pnl)
		i++
	}
	addTerminal(t, store, "tue-1", 1, base.Add(24*time.Hour+17*time.Hour), 60, 10, -20)
	addTerminal(t, store, "tue-2", 1, base.Add(24*time.Hour+18*time.Hour), 60, 10, -30)

	timing, err := newEngine(store, nil, base.Add(72*time.Hour)).GetOptimalSessionTiming(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if timing.SampleSize != 10 {
		t.Fatalf("sample = %d", timing.SampleSize)
	}
	// 10 часов с данными → верхняя четверть = 3
	if len(timing.BestHours) != 3 || timing.BestHours[0] != 9 || timing.BestHours[1] != 10 || timing.BestHours[2] != 16 {
		t.Fatalf("best hours = %v, want [9 10 16]", timing.BestHours)
	}
	if len(timing.BestDays) != 1 || timing.BestDays[0] != time.Monday {
		t.Fatalf("best days = %v, want [Monday]", timing.BestDays)
	}
}

func TestPredictionFallbackWithFewMatches(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	for i := 0; i < 4; i++ {
		addTerminal(t, store, fmt.Sprintf("s-%d", i), 1, base.Add(time.Duration(i)*time.Hour), 60, 10, 5)
	}
	// вне окна ±20%
	addTerminal(t, store, "far", 1, base, 120, 10, 5)

	p, err := newEngine(store, nil, base).PredictSessionOutcome(context.Background(), 1, 60, decimal.NewFromInt(10))
	if err != nil {
		t.Fatal(err)
	}
	if !p.Fallback || p.Confidence > 0.1 || p.PredictedPnl != 0 || p.SampleSize != 4 {
		t.Fatalf("prediction = %+v, want neutral fallback with confidence <= 0.1", p)
	}
}

func TestPredictionFromMatches(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	pnls := []float64{10, -5, 20, 15, -10, 30}
	for i, pnl := range pnls {
		addTerminal(t, store, fmt.Sprintf("s-%d", i), 1, base.Add(time.Duration(i)*time.Hour), 55+i*2, 9+float64(i%2), pnl)
	}

	p, err := newEngine(store, nil, base).PredictSessionOutcome(context.Background(), 1, 60, decimal.NewFromInt(10))
	if err != nil {
		t.Fatal(err)
	}
	if p.Fallback || p.SampleSize != 6 {
		t.Fatalf("prediction = %+v", p)
	}
	if !almostEqual(p.PredictedPnl, 10) {
		t.Errorf("predicted pnl = %v, want 10", p.PredictedPnl)
	}
	if !almostEqual(p.WinProbability, 4.0/6.0) {
		t.Errorf("win probability = %v", p.WinProbability)
	}
	if !almostEqual(p.Confidence, 6.0/50.0) {
		t.Errorf("confidence = %v, want 0.12", p.Confidence)
	}
}

func TestSessionAnalyticsCachedAndInvalidated(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	addTerminal(t, store, "a", 1, base.Add(1*time.Hour), 60, 10, 100)
	addTerminal(t, store, "b", 1, base.Add(3*time.Hour), 60, 10, -50)
	addTerminal(t, store, "c", 2, base.Add(4*time.Hour), 60, 10, 7)

	now := base.Add(12 * time.Hour)
	cache := memory.NewCache().WithClock(func() time.Time { return now })
	e := newEngine(store, cache, now)
	ctx := context.Background()

	first, err := e.GetSessionAnalytics(ctx, 1, PeriodDaily, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if first.TotalSessions != 2 || !almostEqual(first.PnL.Total, 50) || !almostEqual(first.Risk.MaxDrawdown, 50) {
		t.Fatalf("analytics = %+v", first)
	}
	if first.ByStatus["COMPLETED"] != 2 || first.ByReason["user_stopped"] != 2 {
		t.Fatalf("by status=%v by reason=%v", first.ByStatus, first.ByReason)
	}
	if first.ByWeekday["monday"] == nil || first.ByWeekday["monday"].Count != 2 {
		t.Fatalf("weekday buckets = %v", first.ByWeekday)
	}

	addTerminal(t, store, "d", 1, base.Add(5*time.Hour), 60, 10, 1000)

	cached, _ := e.GetSessionAnalytics(ctx, 1, PeriodDaily, time.Time{}, time.Time{})
	if cached.TotalSessions != 2 {
		t.Fatalf("expected cached result, got %d sessions", cached.TotalSessions)
	}

	if err := e.RefreshAnalyticsCache(ctx, 1); err != nil {
		t.Fatal(err)
	}
	fresh, _ := e.GetSessionAnalytics(ctx, 1, PeriodDaily, time.Time{}, time.Time{})
	if fresh.TotalSessions != 3 {
		t.Fatalf("after refresh sessions = %d, want 3", fresh.TotalSessions)
	}

	e.GetSessionAnalytics(ctx, 2, PeriodDaily, time.Time{}, time.Time{})
	if err := e.RefreshAnalyticsCache(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if cache.Len() != 0 {
		t.Fatalf("global refresh left %d entries", cache.Len())
	}
}

func TestUserRefreshDropsGlobalSummary(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	addTerminal(t, store, "a", 1, base.Add(1*time.Hour), 60, 10, 100)
	addTerminal(t, store, "b", 2, base.Add(2*time.Hour), 60, 10, 5)

	now := base.Add(12 * time.Hour)
	cache := memory.NewCache().WithClock(func() time.Time { return now })
	e := newEngine(store, cache, now)
	ctx := context.Background()

	global, err := e.GetSessionAnalytics(ctx, 0, PeriodDaily, time.Time{}, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if global.TotalSessions != 2 {
		t.Fatalf("global sessions = %d, want 2", global.TotalSessions)
	}
	e.GetSessionAnalytics(ctx, 2, PeriodDaily, time.Time{}, time.Time{})

	addTerminal(t, store, "c", 1, base.Add(3*time.Hour), 60, 10, -20)
	if err := e.RefreshAnalyticsCache(ctx, 1); err != nil {
		t.Fatal(err)
	}

	global, _ = e.GetSessionAnalytics(ctx, 0, PeriodDaily, time.Time{}, time.Time{})
	if global.TotalSessions != 3 {
		t.Fatalf("global sessions after user refresh = %d, want 3", global.TotalSessions)
	}
	// записи других пользователей остаются в кэше
	if cache.Len() != 2 {
		t.Fatalf("cache entries = %d, want user 2 + fresh global", cache.Len())
	}
}

func TestCustomPeriodNeedsBounds(t *testing.T) {
	e := newEngine(storage.NewInMemorySessionStore(), nil, base)
	_, err := e.GetSessionAnalytics(context.Background(), 1, PeriodCustom, time.Time{}, time.Time{})
	if !sessions.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestRealTimeMetrics(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	start := base.Add(10 * time.Hour)
	store.Create(context.Background(), &sessions.TradingSession{
		ID:              "live",
		UserID:          1,
		Status:          sessions.StatusActive,
		DurationMinutes: 60,
		LossLimitAmount: decimal.NewFromInt(9),
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		RealizedPnl:     decimal.RequireFromString("-7.2"),
		TradeCount:      10,
	})

	e := newEngine(store, nil, start.Add(20*time.Minute))
	metrics, err := e.GetRealTimeMetrics(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 {
		t.Fatalf("metrics = %d, want 1", len(metrics))
	}
	m := metrics[0]
	if m.Remaining != 40*time.Minute || m.Elapsed != 20*time.Minute {
		t.Errorf("elapsed=%v remaining=%v", m.Elapsed, m.Remaining)
	}
	if !almostEqual(m.LossUsagePct, 80) || m.RiskLevel != RiskHigh {
		t.Errorf("loss usage=%v risk=%s, want 80/high", m.LossUsagePct, m.RiskLevel)
	}
	if !almostEqual(m.TradeVelocity, 0.5) {
		t.Errorf("velocity = %v, want 0.5", m.TradeVelocity)
	}
	if !almostEqual(m.ProjectedPnl, -21.6) {
		t.Errorf("projected = %v, want -21.6", m.ProjectedPnl)
	}
	if !almostEqual(m.ProjectedConfidence, 0.5) {
		t.Errorf("projected confidence = %v, want 0.5", m.ProjectedConfidence)
	}
}
