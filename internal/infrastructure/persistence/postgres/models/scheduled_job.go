// internal/infrastructure/persistence/postgres/models/scheduled_job.go
package models

import (
	"encoding/json"
	"time"

	"trading-session-guard/internal/core/domain/jobs"
)

// ScheduledJob строка таблицы scheduled_jobs
type ScheduledJob struct {
	ID          string `db:"id"`
	Type        string `db:"job_type"`
	SessionID   string `db:"session_id"`
	Payload     string `db:"payload"`
	RunAt       int64  `db:"run_at"`
	IntervalMs  int64  `db:"interval_ms"`
	Attempts    int    `db:"attempts"`
	MaxAttempts int    `db:"max_attempts"`
	State       string `db:"state"`
	LastError   string `db:"last_error"`
	LeaseOwner  string `db:"lease_owner"`
	LeaseUntil  int64  `db:"lease_until"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

// ScheduledJobColumns список колонок в порядке полей
const ScheduledJobColumns = `id, job_type, session_id, payload, run_at, interval_ms, attempts, max_attempts,
	state, last_error, lease_owner, lease_until, created_at, updated_at`

// NewScheduledJob строит строку из задачи очереди
func NewScheduledJob(j *jobs.Job) *ScheduledJob {
	payload := string(j.Payload)
	if payload == "" {
		payload = "{}"
	}
	return &ScheduledJob{
		ID:          j.ID,
		Type:        string(j.Type),
		SessionID:   j.SessionID,
		Payload:     payload,
		RunAt:       ToMillis(j.RunAt),
		IntervalMs:  j.Interval.Milliseconds(),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		State:       string(j.State),
		LastError:   j.LastError,
		LeaseOwner:  j.LeaseOwner,
		LeaseUntil:  ToMillis(j.LeaseUntil),
		CreatedAt:   ToMillis(j.CreatedAt),
		UpdatedAt:   ToMillis(j.UpdatedAt),
	}
}

// ToDomain конвертирует строку в задачу очереди
func (r *ScheduledJob) ToDomain() *jobs.Job {
	return &jobs.Job{
		ID:          r.ID,
		Type:        jobs.Type(r.Type),
		SessionID:   r.SessionID,
		Payload:     json.RawMessage(r.Payload),
		RunAt:       FromMillis(r.RunAt),
		Interval:    time.Duration(r.IntervalMs) * time.Millisecond,
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		State:       jobs.State(r.State),
		LastError:   r.LastError,
		LeaseOwner:  r.LeaseOwner,
		LeaseUntil:  FromMillis(r.LeaseUntil),
		CreatedAt:   FromMillis(r.CreatedAt),
		UpdatedAt:   FromMillis(r.UpdatedAt),
	}
}
