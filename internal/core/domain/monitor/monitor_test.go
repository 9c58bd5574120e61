package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"trading-session-guard/internal/core/domain/jobs"
	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/core/domain/termination"
	"trading-session-guard/internal/core/jobqueue"
	storage "trading-session-guard/internal/infrastructure/persistence/in_memory_storage"
	"trading-session-guard/internal/notifier"

	"github.com/shopspring/decimal"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifier.Notification
}

func (r *recordingNotifier) Emit(ctx context.Context, n notifier.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) count(t notifier.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.Type == t {
			n++
		}
	}
	return n
}

type fakeRefresher struct{ users []int64 }

func (f *fakeRefresher) RefreshAnalyticsCache(ctx context.Context, userID int64) error {
	f.users = append(f.users, userID)
	return nil
}

type harness struct {
	clock     *clock
	sessions  *storage.InMemorySessionStore
	jobStore  *storage.InMemoryJobStore
	scheduler *jobqueue.Scheduler
	monitor   *Monitor
	notifier  *recordingNotifier
	refresher *fakeRefresher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	h := &harness{
		clock:     c,
		sessions:  storage.NewInMemorySessionStore().WithClock(c.Now),
		jobStore:  storage.NewInMemoryJobStore(),
		notifier:  &recordingNotifier{},
		refresher: &fakeRefresher{},
	}
	var err error
	h.scheduler, err = jobqueue.New(h.jobStore, jobqueue.Config{
		Workers:        2,
		PollInterval:   time.Second,
		LeaseTTL:       time.Minute,
		HandlerTimeout: 5 * time.Second,
		MaxAttempts:    3,
		Backoff:        jobs.Backoff{Base: time.Second, Max: 10 * time.Second},
		Owner:          "monitor-test",
	}, jobqueue.WithClock(c.Now))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	coord := termination.NewCoordinator(h.sessions, nil, h.notifier, h.scheduler,
		termination.Config{AnalyticsDelay: time.Minute}, termination.WithClock(c.Now))
	h.monitor = New(h.sessions, h.scheduler, coord, h.notifier, DefaultConfig(),
		WithClock(c.Now), WithAnalytics(h.refresher))
	coord.SetMonitor(h.monitor)
	h.monitor.Register()
	return h
}

func (h *harness) activate(t *testing.T, id string, limit, pnl decimal.Decimal) *sessions.TradingSession {
	t.Helper()
	now := h.clock.Now()
	s := &sessions.TradingSession{
		ID:              id,
		UserID:          42,
		Status:          sessions.StatusActive,
		DurationMinutes: 60,
		LossLimitAmount: limit,
		StartTime:       now,
		EndTime:         now.Add(60 * time.Minute),
		RealizedPnl:     pnl,
	}
	if err := h.sessions.Create(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	if err := h.monitor.StartMonitoring(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	return s
}

func (h *harness) runDue(t *testing.T) {
	t.Helper()
	if _, err := h.scheduler.RunDue(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) status(t *testing.T, id string) sessions.Status {
	t.Helper()
	s, err := h.sessions.GetSession(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return s.Status
}

func TestWarningEmittedOncePerBucket(t *testing.T) {
	h := newHarness(t)
	h.activate(t, "s-1", decimal.NewFromInt(9), decimal.RequireFromString("-7.2"))

	for i := 0; i < 3; i++ {
		h.clock.Advance(DefaultConfig().LossCheckInterval)
		h.runDue(t)
	}

	if got := h.notifier.count(notifier.TypeLossLimitWarning); got != 1 {
		t.Fatalf("warnings = %d, want 1", got)
	}
	job, err := h.scheduler.Get(context.Background(), "warning:s-1:80")
	if err != nil {
		t.Fatalf("warning job keyed by bucket 80: %v", err)
	}
	if job.State != jobs.StateCompleted {
		t.Fatalf("warning state = %s, want completed", job.State)
	}
	if got := h.status(t, "s-1"); got != sessions.StatusActive {
		t.Fatalf("status = %s, want ACTIVE", got)
	}
}

func TestNoWarningAboveCriticalBand(t *testing.T) {
	h := newHarness(t)
	h.activate(t, "s-1", decimal.NewFromInt(100), decimal.NewFromInt(-96))

	h.clock.Advance(DefaultConfig().LossCheckInterval)
	h.runDue(t)

	if got := h.notifier.count(notifier.TypeLossLimitWarning); got != 0 {
		t.Fatalf("warnings = %d, want 0 at 96%%", got)
	}
}

func TestLossBreachStopsSession(t *testing.T) {
	h := newHarness(t)
	h.activate(t, "s-1", decimal.NewFromInt(9), decimal.NewFromInt(-9))

	h.clock.Advance(DefaultConfig().LossCheckInterval)
	h.runDue(t)

	if got := h.status(t, "s-1"); got != sessions.StatusStopped {
		t.Fatalf("status = %s, want STOPPED", got)
	}
	if _, err := h.scheduler.Get(context.Background(), "loss_check:s-1"); err == nil {
		t.Fatal("loss_check job should be cancelled after termination")
	}
	if _, err := h.scheduler.Get(context.Background(), "expiration:s-1"); err == nil {
		t.Fatal("expiration job should be cancelled after termination")
	}
	if _, err := h.scheduler.Get(context.Background(), "performance:s-1"); err != nil {
		t.Fatalf("performance job not scheduled: %v", err)
	}
	if got := h.notifier.count(notifier.TypeSessionTerminated); got != 1 {
		t.Fatalf("terminated notifications = %d, want 1", got)
	}
}

func TestExpirationTerminatesAndRunsPerformance(t *testing.T) {
	h := newHarness(t)
	h.activate(t, "s-1", decimal.NewFromInt(9), decimal.NewFromInt(-1))

	h.clock.Advance(61 * time.Minute)
	h.runDue(t)

	if got := h.status(t, "s-1"); got != sessions.StatusExpired {
		t.Fatalf("status = %s, want EXPIRED", got)
	}

	h.clock.Advance(2 * time.Minute)
	h.runDue(t)

	if len(h.refresher.users) != 1 || h.refresher.users[0] != 42 {
		t.Fatalf("analytics refreshed for %v, want [42]", h.refresher.users)
	}
	if got := h.notifier.count(notifier.TypePerformanceSummary); got != 1 {
		t.Fatalf("performance summaries = %d, want 1", got)
	}
}

func TestStopMonitoringIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.activate(t, "s-1", decimal.NewFromInt(9), decimal.Zero)
	ctx := context.Background()

	if err := h.monitor.StopMonitoring(ctx, "s-1"); err != nil {
		t.Fatal(err)
	}
	if err := h.monitor.StopMonitoring(ctx, "s-1"); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	for _, id := range []string{"expiration:s-1", "loss_check:s-1"} {
		if _, err := h.scheduler.Get(ctx, id); err == nil {
			t.Errorf("%s still scheduled", id)
		}
	}
}

func TestLossCheckCancelsItselfForInactiveSession(t *testing.T) {
	h := newHarness(t)
	h.activate(t, "s-1", decimal.NewFromInt(9), decimal.Zero)
	ctx := context.Background()

	now := h.clock.Now()
	applied, err := h.sessions.AtomicTransition(ctx, "s-1", sessions.StatusActive, sessions.StatusCompleted,
		sessions.TransitionFields{ActualEndTime: &now, TerminationReason: sessions.ReasonUserStopped})
	if err != nil || !applied {
		t.Fatalf("transition: applied=%v err=%v", applied, err)
	}

	h.clock.Advance(DefaultConfig().LossCheckInterval)
	h.runDue(t)

	if _, err := h.scheduler.Get(ctx, "loss_check:s-1"); err == nil {
		t.Fatal("loss_check should remove itself once the session is not active")
	}
}

func TestMalformedPayloadIsDeadLettered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, _, err := h.scheduler.Enqueue(ctx, jobs.TypeExpiration, "s-x", map[string]int{"session_id": 5}, jobs.Options{}); err != nil {
		t.Fatal(err)
	}
	h.runDue(t)

	job, err := h.scheduler.Get(ctx, "expiration:s-x")
	if err != nil {
		t.Fatal(err)
	}
	if job.State != jobs.StateFailed || job.Attempts != 1 {
		t.Fatalf("state=%s attempts=%d, want failed after 1 attempt", job.State, job.Attempts)
	}
}
