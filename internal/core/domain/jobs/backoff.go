// internal/core/domain/jobs/backoff.go
package jobs

import "time"

// Backoff экспоненциальная задержка base * 2^(attempt-1), не больше Max
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay задержка перед повтором после попытки attempt (нумерация с 1)
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := b.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
		if delay <= 0 { // переполнение
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}
