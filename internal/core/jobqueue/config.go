// internal/core/jobqueue/config.go
package jobqueue

import (
	"fmt"
	"time"

	"trading-session-guard/internal/core/domain/jobs"

	"github.com/google/uuid"
)

// Config параметры очереди
type Config struct {
	Workers        int
	PollInterval   time.Duration
	LeaseTTL       time.Duration
	HandlerTimeout time.Duration
	MaxAttempts    int
	Backoff        jobs.Backoff
	// Owner идентификатор экземпляра в аренде; пустой: случайный UUID
	Owner string
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		Workers:        8,
		PollInterval:   time.Second,
		LeaseTTL:       2 * time.Minute,
		HandlerTimeout: 30 * time.Second,
		MaxAttempts:    5,
		Backoff:        jobs.Backoff{Base: 2 * time.Second, Max: 5 * time.Minute},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = def.HandlerTimeout
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = def.LeaseTTL
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.Backoff.Base <= 0 {
		c.Backoff = def.Backoff
	}
	if c.Owner == "" {
		c.Owner = "worker-" + uuid.NewString()
	}
	return c
}

// Validate аренда должна переживать бюджет обработчика
func (c Config) Validate() error {
	if c.LeaseTTL <= c.HandlerTimeout {
		return fmt.Errorf("lease TTL (%v) должен быть больше таймаута обработчика (%v)", c.LeaseTTL, c.HandlerTimeout)
	}
	return nil
}
