// application/scheduler/cleanup.go
package scheduler

import (
	"context"
	"time"

	"trading-session-guard/internal/core/domain/cleanup"
	"trading-session-guard/internal/core/domain/jobs"
	"trading-session-guard/pkg/logger"
)

// Enqueuer постановка задачи в долговременную очередь
type Enqueuer interface {
	Enqueue(ctx context.Context, t jobs.Type, sessionID string, payload interface{}, opts jobs.Options) (string, bool, error)
}

// CleanupJob суточная задача: ставит в очередь cleanup:global:<дата>.
// Ключ с датой дедуплицирует постановку между рестартами и репликами.
func CleanupJob(enqueuer Enqueuer, at Schedule, now func() time.Time) *Job {
	if now == nil {
		now = time.Now
	}
	return &Job{
		Name:        "daily_cleanup",
		Description: "Ежедневная очистка просроченных сессий и старых задач",
		Schedule:    at,
		Timeout:     30 * time.Second,
		Handler: func(ctx context.Context) error {
			return EnqueueCleanup(ctx, enqueuer, now())
		},
	}
}

// EnqueueCleanup ставит очистку за день t; повтор в тот же день ничего не добавляет
func EnqueueCleanup(ctx context.Context, enqueuer Enqueuer, t time.Time) error {
	day := cleanup.DailyKey(t)
	id, inserted, err := enqueuer.Enqueue(ctx, jobs.TypeCleanup, cleanup.GlobalKey,
		jobs.CleanupPayload{Date: day}, jobs.Options{KeySuffix: day})
	if err != nil {
		return err
	}
	if inserted {
		logger.Info("🧹 [Scheduler] Очистка поставлена в очередь: %s", id)
	} else {
		logger.Debug("🧹 [Scheduler] Очистка за %s уже в очереди", day)
	}
	return nil
}
