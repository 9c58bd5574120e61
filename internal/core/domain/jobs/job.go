// internal/core/domain/jobs/job.go
package jobs

import (
	"encoding/json"
	"strings"
	"time"
)

// Type тип фоновой задачи
type Type string

const (
	TypeExpiration  Type = "expiration"
	TypeLossCheck   Type = "loss_check"
	TypeWarning     Type = "warning"
	TypePerformance Type = "performance"
	TypeCleanup     Type = "cleanup"
)

// Valid проверяет, что тип известен
func (t Type) Valid() bool {
	switch t {
	case TypeExpiration, TypeLossCheck, TypeWarning, TypePerformance, TypeCleanup:
		return true
	}
	return false
}

// State состояние задачи в очереди
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Job запись долговременной очереди задач
type Job struct {
	ID          string          `json:"job_id"`
	Type        Type            `json:"job_type"`
	SessionID   string          `json:"session_id"`
	Payload     json.RawMessage `json:"payload"`
	RunAt       time.Time       `json:"execute_at"`
	Interval    time.Duration   `json:"interval"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	State       State           `json:"state"`
	LastError   string          `json:"last_error,omitempty"`
	LeaseOwner  string          `json:"lease_owner,omitempty"`
	LeaseUntil  time.Time       `json:"lease_until"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Repeating true для периодических задач
func (j *Job) Repeating() bool {
	return j.Interval > 0
}

// AttemptsRemaining сколько попыток ещё осталось
func (j *Job) AttemptsRemaining() int {
	if n := j.MaxAttempts - j.Attempts; n > 0 {
		return n
	}
	return 0
}

// Clone возвращает независимую копию
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	return &c
}

// Key строит детерминированный ключ задачи <type>:<sessionId>[:<suffix>]
func Key(t Type, sessionID string, suffix ...string) string {
	parts := make([]string, 0, 2+len(suffix))
	parts = append(parts, string(t), sessionID)
	for _, s := range suffix {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":")
}

// Options параметры постановки задачи
type Options struct {
	Delay       time.Duration
	RunAt       time.Time // если задан, имеет приоритет над Delay
	Interval    time.Duration
	MaxAttempts int
	KeySuffix   string
}
