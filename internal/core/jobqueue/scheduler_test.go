package jobqueue

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
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type countingRecorder struct {
	enqueued, succeeded, retried, dead, stalled atomic.Int64
}

func (r *countingRecorder) JobEnqueued(jobs.Type)                 { r.enqueued.Add(1) }
func (r *countingRecorder) JobSucceeded(jobs.Type, time.Duration) { r.succeeded.Add(1) }
func (r *countingRecorder) JobRetried(jobs.Type)                  { r.retried.Add(1) }
func (r *countingRecorder) JobDeadLettered(jobs.Type)             { r.dead.Add(1) }
func (r *countingRecorder) JobStalled(jobs.Type)                  { r.stalled.Add(1) }

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notifier.Notification
}

func (r *recordingNotifier) Emit(_ context.Context, n notifier.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func newTestScheduler(t *testing.T, clock *fakeClock) (*Scheduler, *storage.InMemoryJobStore, *countingRecorder) {
	t.Helper()
	store := storage.NewInMemoryJobStore()
	rec := &countingRecorder{}
	cfg := Config{
		Workers:        4,
		PollInterval:   10 * time.Millisecond,
		LeaseTTL:       time.Minute,
		HandlerTimeout: time.Second,
		MaxAttempts:    3,
		Backoff:        jobs.Backoff{Base: time.Second, Max: 10 * time.Second},
		Owner:          "test-owner",
	}
	s, err := New(store, cfg, WithClock(clock.Now), WithRecorder(rec))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, store, rec
}

func TestEnqueueIsIdempotentByKey(t *testing.T) {
	ctx := context.Background()
	s, store, rec := newTestScheduler(t, newFakeClock())

	id1, inserted1, err := s.Enqueue(ctx, jobs.TypeExpiration, "s-1", jobs.SessionPayload{SessionID: "s-1"}, jobs.Options{Delay: time.Minute})
	if err != nil || !inserted1 {
		t.Fatalf("first enqueue: id=%q inserted=%v err=%v", id1, inserted1, err)
	}
	id2, inserted2, err := s.Enqueue(ctx, jobs.TypeExpiration, "s-1", jobs.SessionPayload{SessionID: "s-1"}, jobs.Options{Delay: time.Hour})
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if inserted2 || id2 != id1 {
		t.Fatalf("second enqueue should be a no-op, got id=%q inserted=%v", id2, inserted2)
	}
	if id1 != "expiration:s-1" {
		t.Fatalf("job id = %q, want expiration:s-1", id1)
	}
	if n, _ := store.CountByState(ctx, jobs.StatePending); n != 1 {
		t.Fatalf("pending jobs = %d, want 1", n)
	}
	if rec.enqueued.Load() != 1 {
		t.Fatalf("enqueued counter = %d, want 1", rec.enqueued.Load())
	}
}

func TestEnqueueRejectsUnknownType(t *testing.T) {
	s, _, _ := newTestScheduler(t, newFakeClock())
	_, _, err := s.Enqueue(context.Background(), jobs.Type("bogus"), "s-1", nil, jobs.Options{})
	if !sessions.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRetryWithBackoffThenSuccess(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s, _, rec := newTestScheduler(t, clock)

	var calls atomic.Int64
	s.Register(jobs.TypePerformance, func(ctx context.Context, job *jobs.Job) error {
		if calls.Add(1) < 3 {
			return sessions.Transient("test", errors.New("db down"))
		}
		return nil
	})

	id, _, err := s.Enqueue(ctx, jobs.TypePerformance, "s-1", jobs.PerformancePayload{SessionID: "s-1"}, jobs.Options{})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if n, _ := s.RunDue(ctx); n != 1 {
		t.Fatalf("first run executed %d jobs, want 1", n)
	}
	job, _ := s.Get(ctx, id)
	if job.State != jobs.StatePending || job.Attempts != 1 {
		t.Fatalf("after first failure: state=%s attempts=%d", job.State, job.Attempts)
	}
	if want := clock.Now().Add(time.Second); !job.RunAt.Equal(want) {
		t.Fatalf("retry at %v, want %v", job.RunAt, want)
	}

	// до истечения задержки задача не готова
	if n, _ := s.RunDue(ctx); n != 0 {
		t.Fatalf("job ran before backoff elapsed")
	}

	clock.Advance(time.Second)
	s.RunDue(ctx)
	job, _ = s.Get(ctx, id)
	if want := clock.Now().Add(2 * time.Second); !job.RunAt.Equal(want) {
		t.Fatalf("second retry at %v, want %v", job.RunAt, want)
	}

	clock.Advance(2 * time.Second)
	s.RunDue(ctx)
	job, _ = s.Get(ctx, id)
	if job.State != jobs.StateCompleted {
		t.Fatalf("state = %s, want completed", job.State)
	}
	if rec.retried.Load() != 2 || rec.succeeded.Load() != 1 {
		t.Fatalf("retried=%d succeeded=%d", rec.retried.Load(), rec.succeeded.Load())
	}
}

func TestDeadLetterAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s, _, rec := newTestScheduler(t, clock)

	s.Register(jobs.TypePerformance, func(ctx context.Context, job *jobs.Job) error {
		return sessions.Transient("test", errors.New("still down"))
	})
	id, _, _ := s.Enqueue(ctx, jobs.TypePerformance, "s-1", nil, jobs.Options{})

	for i := 0; i < 5; i++ {
		s.RunDue(ctx)
		clock.Advance(time.Minute)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.State != jobs.StateFailed || job.Attempts != 3 {
		t.Fatalf("state=%s attempts=%d, want failed after 3", job.State, job.Attempts)
	}
	if rec.dead.Load() != 1 {
		t.Fatalf("dead-letter counter = %d, want 1", rec.dead.Load())
	}

	dead, _ := s.DeadLetters(ctx, 10)
	if len(dead) != 1 || dead[0].ID != id {
		t.Fatalf("DeadLetters() = %v", dead)
	}

	ok, err := s.Requeue(ctx, id)
	if err != nil || !ok {
		t.Fatalf("requeue: ok=%v err=%v", ok, err)
	}
	job, _ = s.Get(ctx, id)
	if job.State != jobs.StatePending || job.Attempts != 0 {
		t.Fatalf("after requeue: state=%s attempts=%d", job.State, job.Attempts)
	}
}

func TestNewRejectsLeaseShorterThanHandlerTimeout(t *testing.T) {
	_, err := New(storage.NewInMemoryJobStore(), Config{
		Workers:        1,
		PollInterval:   time.Second,
		LeaseTTL:       time.Second,
		HandlerTimeout: time.Minute,
	})
	if err == nil {
		t.Fatal("expected error for lease shorter than handler timeout")
	}
}

func TestDeadLetterNotifiesOperators(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rn := &recordingNotifier{}
	s, err := New(storage.NewInMemoryJobStore(), Config{
		Workers:        1,
		PollInterval:   10 * time.Millisecond,
		LeaseTTL:       time.Minute,
		HandlerTimeout: time.Second,
		MaxAttempts:    1,
		Owner:          "test-owner",
	}, WithClock(clock.Now), WithNotifier(rn))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	s.Register(jobs.TypeLossCheck, func(ctx context.Context, job *jobs.Job) error {
		return errors.New("market data unavailable")
	})
	id, _, _ := s.Enqueue(ctx, jobs.TypeLossCheck, "s-9", jobs.SessionPayload{SessionID: "s-9"}, jobs.Options{})
	s.RunDue(ctx)

	rn.mu.Lock()
	defer rn.mu.Unlock()
	if len(rn.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(rn.sent))
	}
	n := rn.sent[0]
	if n.Type != notifier.TypeJobDeadLettered || n.SessionID != "s-9" {
		t.Fatalf("notification = %+v", n)
	}
	if n.Payload["job_id"] != id || n.Payload["job_type"] != string(jobs.TypeLossCheck) {
		t.Fatalf("payload = %v", n.Payload)
	}
}

func TestRequeueAtKeepsFutureRunTime(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s, _, _ := newTestScheduler(t, clock)

	s.Register(jobs.TypeExpiration, func(ctx context.Context, job *jobs.Job) error {
		return &sessions.ValidationError{Field: "payload", Reason: "broken"}
	})
	id, _, _ := s.Enqueue(ctx, jobs.TypeExpiration, "s-1", jobs.SessionPayload{SessionID: "s-1"}, jobs.Options{})
	s.RunDue(ctx)

	runAt := clock.Now().Add(30 * time.Minute)
	if ok, err := s.RequeueAt(ctx, id, runAt); err != nil || !ok {
		t.Fatalf("requeue: ok=%v err=%v", ok, err)
	}
	job, _ := s.Get(ctx, id)
	if job.State != jobs.StatePending || !job.RunAt.Equal(runAt) {
		t.Fatalf("state=%s runAt=%v, want pending at %v", job.State, job.RunAt, runAt)
	}
	if n, _ := s.RunDue(ctx); n != 0 {
		t.Fatalf("RunDue() ran %d jobs before run time", n)
	}
}

func TestValidationErrorDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, newFakeClock())

	var calls atomic.Int64
	s.Register(jobs.TypeExpiration, func(ctx context.Context, job *jobs.Job) error {
		calls.Add(1)
		_, err := jobs.DecodeSessionID(job)
		return err
	})
	id, _, _ := s.Enqueue(ctx, jobs.TypeExpiration, "s-1", map[string]int{"unexpected": 1}, jobs.Options{})

	s.RunDue(ctx)

	job, _ := s.Get(ctx, id)
	if job.State != jobs.StateFailed || job.Attempts != 1 || calls.Load() != 1 {
		t.Fatalf("state=%s attempts=%d calls=%d", job.State, job.Attempts, calls.Load())
	}
}

func TestRepeatingJobReschedulesWithResetAttempts(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s, _, _ := newTestScheduler(t, clock)

	var calls atomic.Int64
	s.Register(jobs.TypeLossCheck, func(ctx context.Context, job *jobs.Job) error {
		calls.Add(1)
		return nil
	})
	id, _, _ := s.Enqueue(ctx, jobs.TypeLossCheck, "s-1", jobs.SessionPayload{SessionID: "s-1"},
		jobs.Options{Interval: 30 * time.Second})

	s.RunDue(ctx)
	job, _ := s.Get(ctx, id)
	if job.State != jobs.StatePending || job.Attempts != 0 {
		t.Fatalf("state=%s attempts=%d", job.State, job.Attempts)
	}
	if want := clock.Now().Add(30 * time.Second); !job.RunAt.Equal(want) {
		t.Fatalf("next run %v, want %v", job.RunAt, want)
	}

	clock.Advance(30 * time.Second)
	s.RunDue(ctx)
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestCancelDuringExecutionPreventsReschedule(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestScheduler(t, newFakeClock())

	s.Register(jobs.TypeLossCheck, func(ctx context.Context, job *jobs.Job) error {
		_, err := s.Cancel(ctx, jobs.TypeLossCheck, job.SessionID)
		return err
	})
	id, _, _ := s.Enqueue(ctx, jobs.TypeLossCheck, "s-1", jobs.SessionPayload{SessionID: "s-1"},
		jobs.Options{Interval: time.Second})

	s.RunDue(ctx)

	if _, err := s.Get(ctx, id); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("cancelled repeating job resurrected: %v", err)
	}

	ok, err := s.Cancel(ctx, jobs.TypeLossCheck, "s-1")
	if err != nil || ok {
		t.Fatalf("second cancel should be a no-op, ok=%v err=%v", ok, err)
	}
}

func TestStalledHandlerIsRetried(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := storage.NewInMemoryJobStore()
	rec := &countingRecorder{}
	s, err := New(store, Config{
		Workers:        1,
		LeaseTTL:       time.Minute,
		HandlerTimeout: 20 * time.Millisecond,
		MaxAttempts:    3,
		Backoff:        jobs.Backoff{Base: time.Second, Max: time.Second},
		Owner:          "test-owner",
	}, WithClock(clock.Now), WithRecorder(rec))
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	release := make(chan struct{})
	defer close(release)
	s.Register(jobs.TypePerformance, func(ctx context.Context, job *jobs.Job) error {
		<-release
		return nil
	})
	id, _, _ := s.Enqueue(ctx, jobs.TypePerformance, "s-1", nil, jobs.Options{})

	s.RunDue(ctx)

	job, _ := s.Get(ctx, id)
	if job.State != jobs.StatePending || job.Attempts != 1 {
		t.Fatalf("state=%s attempts=%d", job.State, job.Attempts)
	}
	if rec.stalled.Load() != 1 {
		t.Fatalf("stalled counter = %d, want 1", rec.stalled.Load())
	}
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	s, store, _ := newTestScheduler(t, clock)

	var calls atomic.Int64
	s.Register(jobs.TypeExpiration, func(ctx context.Context, job *jobs.Job) error {
		calls.Add(1)
		return nil
	})
	id, _, _ := s.Enqueue(ctx, jobs.TypeExpiration, "s-1", jobs.SessionPayload{SessionID: "s-1"}, jobs.Options{})

	// другой экземпляр захватил задачу и упал
	claimed, err := store.Claim(ctx, "crashed-worker", clock.Now(), time.Minute, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim: %v %v", claimed, err)
	}

	if n, _ := s.RunDue(ctx); n != 0 {
		t.Fatalf("job with live lease must not be reclaimed")
	}

	clock.Advance(2 * time.Minute)
	s.RunDue(ctx)

	job, _ := s.Get(ctx, id)
	if job.State != jobs.StateCompleted || calls.Load() != 1 {
		t.Fatalf("state=%s calls=%d", job.State, calls.Load())
	}
}

func TestStartStopProcessesJobs(t *testing.T) {
	ctx := context.Background()
	store := storage.NewInMemoryJobStore()
	s, err := New(store, Config{Workers: 2, PollInterval: 5 * time.Millisecond, LeaseTTL: time.Minute, HandlerTimeout: time.Second})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	done := make(chan string, 1)
	s.Register(jobs.TypeExpiration, func(ctx context.Context, job *jobs.Job) error {
		done <- job.SessionID
		return nil
	})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := s.Enqueue(ctx, jobs.TypeExpiration, "s-42", jobs.SessionPayload{SessionID: "s-42"}, jobs.Options{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case got := <-done:
		if got != "s-42" {
			t.Fatalf("handled session %q, want s-42", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not executed")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if s.IsRunning() {
		t.Fatal("scheduler still running after Stop")
	}
}
