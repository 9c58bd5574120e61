package termination

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trading-session-guard/internal/core/domain/jobs"
	"trading-session-guard/internal/core/domain/sessions"
	storage "trading-session-guard/internal/infrastructure/persistence/in_memory_storage"
	"trading-session-guard/internal/notifier"

	"github.com/shopspring/decimal"
)

type fakeOrders struct {
	calls    atomic.Int64
	failures int64
	err      error
}

func (f *fakeOrders) CancelPendingOrders(ctx context.Context, sessionID string) error {
	n := f.calls.Add(1)
	if n <= f.failures {
		return f.err
	}
	return nil
}

type fakeMonitor struct{ calls atomic.Int64 }

func (f *fakeMonitor) StopMonitoring(ctx context.Context, sessionID string) error {
	f.calls.Add(1)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notifier.Notification
}

func (f *fakeNotifier) Emit(ctx context.Context, n notifier.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []jobs.Type
	opts []jobs.Options
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, t jobs.Type, sessionID string, payload interface{}, opts jobs.Options) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, t)
	f.opts = append(f.opts, opts)
	return jobs.Key(t, sessionID), true, nil
}

func activeSession(t *testing.T, store *storage.InMemorySessionStore, id string) {
	t.Helper()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	err := store.Create(context.Background(), &sessions.TradingSession{
		ID:              id,
		UserID:          7,
		Status:          sessions.StatusActive,
		DurationMinutes: 60,
		LossLimitAmount: decimal.NewFromInt(9),
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		RealizedPnl:     decimal.NewFromFloat(-3.5),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func newTestCoordinator(store sessions.Store) (*Coordinator, *fakeOrders, *fakeMonitor, *fakeNotifier, *fakeEnqueuer) {
	orders := &fakeOrders{}
	mon := &fakeMonitor{}
	n := &fakeNotifier{}
	enq := &fakeEnqueuer{}
	cfg := Config{AnalyticsDelay: time.Minute, OrderCancelAttempts: 3, OrderCancelBackoff: time.Millisecond}
	c := NewCoordinator(store, orders, n, enq, cfg)
	c.SetMonitor(mon)
	return c, orders, mon, n, enq
}

func TestTerminateExactlyOnceUnderConcurrency(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	activeSession(t, store, "s-1")
	c, orders, mon, n, enq := newTestCoordinator(store)

	reasons := []sessions.TerminationReason{
		sessions.ReasonTimeExpired,
		sessions.ReasonLossLimitReached,
		sessions.ReasonUserStopped,
		sessions.ReasonEmergencyStop,
	}

	var wg sync.WaitGroup
	var winners atomic.Int64
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(reason sessions.TerminationReason) {
			defer wg.Done()
			applied, err := c.Terminate(context.Background(), "s-1", reason)
			if err != nil {
				t.Errorf("Terminate: %v", err)
			}
			if applied {
				winners.Add(1)
			}
		}(reasons[i%len(reasons)])
	}
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Fatalf("winners = %d, want 1", got)
	}
	if got := orders.calls.Load(); got != 1 {
		t.Errorf("order cancellations = %d, want 1", got)
	}
	if got := mon.calls.Load(); got != 1 {
		t.Errorf("monitoring stops = %d, want 1", got)
	}
	if len(n.sent) != 1 || n.sent[0].Type != notifier.TypeSessionTerminated {
		t.Errorf("notifications = %+v, want one session_terminated", n.sent)
	}
	if len(enq.jobs) != 1 || enq.jobs[0] != jobs.TypePerformance {
		t.Errorf("enqueued = %v, want one performance job", enq.jobs)
	}

	session, err := store.GetSession(context.Background(), "s-1")
	if err != nil {
		t.Fatal(err)
	}
	want, _ := session.TerminationReason.TerminalStatus()
	if session.Status != want {
		t.Errorf("status = %s, want %s for reason %s", session.Status, want, session.TerminationReason)
	}
	if session.ActualEndTime == nil {
		t.Error("actual end time not set")
	}
}

func TestTerminateReasonMapsToStatus(t *testing.T) {
	cases := map[sessions.TerminationReason]sessions.Status{
		sessions.ReasonTimeExpired:      sessions.StatusExpired,
		sessions.ReasonLossLimitReached: sessions.StatusStopped,
		sessions.ReasonUserStopped:      sessions.StatusCompleted,
		sessions.ReasonEmergencyStop:    sessions.StatusEmergencyStopped,
	}
	for reason, want := range cases {
		store := storage.NewInMemorySessionStore()
		activeSession(t, store, "s-1")
		c, _, _, _, _ := newTestCoordinator(store)

		applied, err := c.Terminate(context.Background(), "s-1", reason)
		if err != nil || !applied {
			t.Fatalf("%s: applied=%v err=%v", reason, applied, err)
		}
		got, _ := store.GetSession(context.Background(), "s-1")
		if got.Status != want {
			t.Errorf("%s: status = %s, want %s", reason, got.Status, want)
		}
	}
}

func TestTerminateMissingSessionIsNoop(t *testing.T) {
	c, orders, _, n, _ := newTestCoordinator(storage.NewInMemorySessionStore())

	applied, err := c.Terminate(context.Background(), "missing", sessions.ReasonTimeExpired)
	if err != nil || applied {
		t.Fatalf("applied=%v err=%v, want false/nil", applied, err)
	}
	if orders.calls.Load() != 0 || len(n.sent) != 0 {
		t.Fatal("side effects ran for a missing session")
	}
}

func TestTerminateUnknownReasonIsValidationError(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	activeSession(t, store, "s-1")
	c, _, _, _, _ := newTestCoordinator(store)

	_, err := c.Terminate(context.Background(), "s-1", "bored")
	if !sessions.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestTerminateRetriesTransientOrderFailure(t *testing.T) {
	store := storage.NewInMemorySessionStore()
	activeSession(t, store, "s-1")
	c, orders, _, _, _ := newTestCoordinator(store)
	orders.failures = 2
	orders.err = sessions.Transient("orders", errors.New("503"))

	applied, err := c.Terminate(context.Background(), "s-1", sessions.ReasonUserStopped)
	if err != nil || !applied {
		t.Fatalf("applied=%v err=%v", applied, err)
	}
	if got := orders.calls.Load(); got != 3 {
		t.Fatalf("order cancel calls = %d, want 3", got)
	}
}
