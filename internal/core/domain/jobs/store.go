// internal/core/domain/jobs/store.go
package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound задача с таким ключом отсутствует
var ErrJobNotFound = errors.New("задача не найдена")

// Store долговременное хранилище очереди задач.
// Методы с owner применяются только пока аренда принадлежит этому владельцу:
// удалённая (отменённая) задача не воскрешается завершившимся обработчиком.
type Store interface {
	// Insert вставляет задачу, если ключа ещё нет; inserted=false для дубликата
	Insert(ctx context.Context, job *Job) (inserted bool, err error)
	// Claim захватывает до limit готовых задач (pending с run_at <= now или active с истёкшей арендой),
	// увеличивая attempts на единицу
	Claim(ctx context.Context, owner string, now time.Time, leaseTTL time.Duration, limit int) ([]*Job, error)
	// Complete переводит разовую задачу в completed
	Complete(ctx context.Context, id, owner string, now time.Time) (bool, error)
	// Reschedule возвращает задачу в pending с новым run_at
	Reschedule(ctx context.Context, id, owner string, runAt time.Time, attempts int, lastErr string, now time.Time) (bool, error)
	// Fail переводит задачу в failed (dead-letter)
	Fail(ctx context.Context, id, owner, lastErr string, now time.Time) (bool, error)
	// Delete удаляет незавершённую задачу
	Delete(ctx context.Context, id string) (bool, error)
	// DeleteBySession удаляет незавершённые задачи сессии указанных типов
	DeleteBySession(ctx context.Context, sessionID string, types []Type) (int64, error)
	// Get возвращает задачу или ErrJobNotFound
	Get(ctx context.Context, id string) (*Job, error)
	// ListByState задачи в состоянии state, самые старые первыми
	ListByState(ctx context.Context, state State, limit int) ([]*Job, error)
	// CountByState количество задач в состоянии state
	CountByState(ctx context.Context, state State) (int64, error)
	// Requeue возвращает failed задачу в pending со сброшенными попытками, запуск в runAt
	Requeue(ctx context.Context, id string, runAt, now time.Time) (bool, error)
	// PruneFinished удаляет completed/failed задачи, обновлённые раньше cutoff
	PruneFinished(ctx context.Context, cutoff time.Time) (int64, error)
}
