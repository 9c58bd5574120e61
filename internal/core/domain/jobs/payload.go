// internal/core/domain/jobs/payload.go
package jobs

import (
	"encoding/json"
	"fmt"

	"trading-session-guard/internal/core/domain/sessions"
)

// SessionPayload payload задач expiration и loss_check
type SessionPayload struct {
	SessionID string `json:"session_id"`
}

// WarningPayload payload предупреждения о приближении к лимиту убытка
type WarningPayload struct {
	SessionID      string `json:"session_id"`
	UserID         int64  `json:"user_id"`
	LossPercentage string `json:"loss_percentage"`
	Bucket         int    `json:"bucket"`
	CurrentLoss    string `json:"current_loss"`
	LossLimit      string `json:"loss_limit"`
}

// PerformancePayload payload отложенного расчёта аналитики после завершения
type PerformancePayload struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	Reason    string `json:"reason"`
}

// CleanupPayload payload суточной очистки
type CleanupPayload struct {
	Date string `json:"date"`
}

// Encode сериализует payload; nil даёт пустой объект
func Encode(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &sessions.ValidationError{Field: "payload", Reason: err.Error()}
	}
	return data, nil
}

// Decode разбирает payload задачи; ошибка всегда ValidationError
func Decode(job *Job, v interface{}) error {
	if len(job.Payload) == 0 {
		return &sessions.ValidationError{Field: "payload", Reason: fmt.Sprintf("пустой payload задачи %s", job.ID)}
	}
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return &sessions.ValidationError{Field: "payload", Reason: fmt.Sprintf("задача %s: %v", job.ID, err)}
	}
	return nil
}

// DecodeSessionID извлекает session_id и сверяет его с полем задачи
func DecodeSessionID(job *Job) (string, error) {
	var p SessionPayload
	if err := Decode(job, &p); err != nil {
		return "", err
	}
	if p.SessionID == "" {
		return "", &sessions.ValidationError{Field: "session_id", Reason: fmt.Sprintf("задача %s без session_id", job.ID)}
	}
	if job.SessionID != "" && job.SessionID != p.SessionID {
		return "", &sessions.ValidationError{
			Field:  "session_id",
			Reason: fmt.Sprintf("задача %s: session_id %q не совпадает с %q", job.ID, p.SessionID, job.SessionID),
		}
	}
	return p.SessionID, nil
}
