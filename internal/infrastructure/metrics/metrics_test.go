package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trading-session-guard/internal/core/domain/jobs"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounters(t *testing.T) {
	m := New()

	m.JobEnqueued(jobs.TypeExpiration)
	m.JobSucceeded(jobs.TypeExpiration, 10*time.Millisecond)
	m.JobDeadLettered(jobs.TypeLossCheck)
	m.JobDeadLettered(jobs.TypeLossCheck)
	m.SessionTerminated("time_expired")
	m.TerminationSkipped()

	if got := testutil.ToFloat64(m.JobsDeadLettered.WithLabelValues("loss_check")); got != 2 {
		t.Fatalf("dead-lettered = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.SessionsTerminated.WithLabelValues("time_expired")); got != 1 {
		t.Fatalf("terminated = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.TerminationRaceLost); got != 1 {
		t.Fatalf("race lost = %v, want 1", got)
	}

	m.SweepCompleted(1, 3, 0)
	if got := testutil.ToFloat64(m.DeadLetterBacklog); got != 0 {
		t.Fatalf("dead-letter backlog after sweep = %v, want 0", got)
	}
}

func TestServerEndpoints(t *testing.T) {
	m := New()
	m.JobDeadLettered(jobs.TypeCleanup)

	srv := NewServer(0, m, map[string]HealthFunc{
		"store": func(context.Context) error { return nil },
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "session_guard_jobs_dead_lettered_total") {
		t.Fatalf("metrics output missing dead-letter counter")
	}

	resp, err = http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestHealthzReportsFailures(t *testing.T) {
	srv := NewServer(0, New(), map[string]HealthFunc{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}
