// internal/infrastructure/persistence/postgres/repository/scheduled_job/repository.go
package scheduled_job_repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"trading-session-guard/internal/core/domain/jobs"
	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/infrastructure/persistence/postgres/models"

	"github.com/jmoiron/sqlx"
)

var _ jobs.Store = (*ScheduledJobRepository)(nil)

// ScheduledJobRepository долговременная очередь задач в таблице scheduled_jobs
type ScheduledJobRepository struct {
	db *sqlx.DB
}

// NewScheduledJobRepository создаёт репозиторий
func NewScheduledJobRepository(db *sqlx.DB) *ScheduledJobRepository {
	return &ScheduledJobRepository{db: db}
}

// Insert вставляет задачу, если ключа ещё нет
func (r *ScheduledJobRepository) Insert(ctx context.Context, job *jobs.Job) (bool, error) {
	query := `
		INSERT INTO scheduled_jobs (` + models.ScheduledJobColumns + `)
		VALUES (:id, :job_type, :session_id, :payload, :run_at, :interval_ms, :attempts, :max_attempts,
			:state, :last_error, :lease_owner, :lease_until, :created_at, :updated_at)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := r.db.NamedExecContext(ctx, query, models.NewScheduledJob(job))
	if err != nil {
		return false, sessions.Transient("ScheduledJobRepo.Insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, sessions.Transient("ScheduledJobRepo.Insert", err)
	}
	return n == 1, nil
}

// Claim выбирает кандидатов и захватывает каждого условным UPDATE;
// задачу, которую успел захватить другой воркер, пропускает
func (r *ScheduledJobRepository) Claim(ctx context.Context, owner string, now time.Time, leaseTTL time.Duration, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	nowMs := now.UnixMilli()

	candidates := r.db.Rebind(`
		SELECT id FROM scheduled_jobs
		WHERE (state = ? AND run_at <= ?) OR (state = ? AND lease_until < ?)
		ORDER BY run_at, id
		LIMIT ?
	`)
	var ids []string
	err := r.db.SelectContext(ctx, &ids, candidates,
		string(jobs.StatePending), nowMs, string(jobs.StateActive), nowMs, limit)
	if err != nil {
		return nil, sessions.Transient("ScheduledJobRepo.Claim", err)
	}

	claim := r.db.Rebind(`
		UPDATE scheduled_jobs
		SET state = ?, lease_owner = ?, lease_until = ?, attempts = attempts + 1, updated_at = ?
		WHERE id = ? AND ((state = ? AND run_at <= ?) OR (state = ? AND lease_until < ?))
		RETURNING ` + models.ScheduledJobColumns)

	claimed := make([]*jobs.Job, 0, len(ids))
	for _, id := range ids {
		var row models.ScheduledJob
		err := r.db.GetContext(ctx, &row, claim,
			string(jobs.StateActive), owner, now.Add(leaseTTL).UnixMilli(), nowMs,
			id, string(jobs.StatePending), nowMs, string(jobs.StateActive), nowMs)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return claimed, sessions.Transient("ScheduledJobRepo.Claim", err)
		}
		claimed = append(claimed, row.ToDomain())
	}
	return claimed, nil
}

// Complete завершает задачу владельца аренды
func (r *ScheduledJobRepository) Complete(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	return r.leased(ctx, "ScheduledJobRepo.Complete", `
		UPDATE scheduled_jobs
		SET state = ?, lease_owner = '', lease_until = 0, updated_at = ?
		WHERE id = ? AND state = ? AND lease_owner = ?
	`, string(jobs.StateCompleted), now.UnixMilli(), id, string(jobs.StateActive), owner)
}

// Reschedule возвращает задачу в pending с новым run_at
func (r *ScheduledJobRepository) Reschedule(ctx context.Context, id, owner string, runAt time.Time, attempts int, lastErr string, now time.Time) (bool, error) {
	return r.leased(ctx, "ScheduledJobRepo.Reschedule", `
		UPDATE scheduled_jobs
		SET state = ?, run_at = ?, attempts = ?, last_error = ?, lease_owner = '', lease_until = 0, updated_at = ?
		WHERE id = ? AND state = ? AND lease_owner = ?
	`, string(jobs.StatePending), runAt.UnixMilli(), attempts, lastErr, now.UnixMilli(),
		id, string(jobs.StateActive), owner)
}

// Fail переводит задачу в dead-letter
func (r *ScheduledJobRepository) Fail(ctx context.Context, id, owner, lastErr string, now time.Time) (bool, error) {
	return r.leased(ctx, "ScheduledJobRepo.Fail", `
		UPDATE scheduled_jobs
		SET state = ?, last_error = ?, lease_owner = '', lease_until = 0, updated_at = ?
		WHERE id = ? AND state = ? AND lease_owner = ?
	`, string(jobs.StateFailed), lastErr, now.UnixMilli(), id, string(jobs.StateActive), owner)
}

// Delete удаляет незавершённую задачу
func (r *ScheduledJobRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.leased(ctx, "ScheduledJobRepo.Delete", `
		DELETE FROM scheduled_jobs WHERE id = ? AND state IN (?, ?)
	`, id, string(jobs.StatePending), string(jobs.StateActive))
}

// DeleteBySession удаляет незавершённые задачи сессии; пустой types означает все типы
func (r *ScheduledJobRepository) DeleteBySession(ctx context.Context, sessionID string, types []jobs.Type) (int64, error) {
	query := `DELETE FROM scheduled_jobs WHERE session_id = ? AND state IN (?)`
	args := []interface{}{sessionID, []string{string(jobs.StatePending), string(jobs.StateActive)}}
	if len(types) > 0 {
		names := make([]string, 0, len(types))
		for _, t := range types {
			names = append(names, string(t))
		}
		query += ` AND job_type IN (?)`
		args = append(args, names)
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, sessions.Transient("ScheduledJobRepo.DeleteBySession", err)
	}
	return res.RowsAffected()
}

// Get возвращает задачу по ключу
func (r *ScheduledJobRepository) Get(ctx context.Context, id string) (*jobs.Job, error) {
	query := r.db.Rebind(`SELECT ` + models.ScheduledJobColumns + ` FROM scheduled_jobs WHERE id = ?`)
	var row models.ScheduledJob
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrJobNotFound
		}
		return nil, sessions.Transient("ScheduledJobRepo.Get", err)
	}
	return row.ToDomain(), nil
}

// ListByState задачи в состоянии state, самые старые первыми
func (r *ScheduledJobRepository) ListByState(ctx context.Context, state jobs.State, limit int) ([]*jobs.Job, error) {
	query := `SELECT ` + models.ScheduledJobColumns + ` FROM scheduled_jobs WHERE state = ? ORDER BY updated_at, id`
	args := []interface{}{string(state)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []models.ScheduledJob
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, sessions.Transient("ScheduledJobRepo.ListByState", err)
	}
	result := make([]*jobs.Job, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].ToDomain())
	}
	return result, nil
}

// CountByState количество задач в состоянии state
func (r *ScheduledJobRepository) CountByState(ctx context.Context, state jobs.State) (int64, error) {
	var n int64
	query := r.db.Rebind(`SELECT COUNT(*) FROM scheduled_jobs WHERE state = ?`)
	if err := r.db.GetContext(ctx, &n, query, string(state)); err != nil {
		return 0, sessions.Transient("ScheduledJobRepo.CountByState", err)
	}
	return n, nil
}

// Requeue возвращает failed задачу в pending со сброшенными попытками
func (r *ScheduledJobRepository) Requeue(ctx context.Context, id string, runAt, now time.Time) (bool, error) {
	return r.leased(ctx, "ScheduledJobRepo.Requeue", `
		UPDATE scheduled_jobs
		SET state = ?, attempts = 0, run_at = ?, last_error = '', updated_at = ?
		WHERE id = ? AND state = ?
	`, string(jobs.StatePending), runAt.UnixMilli(), now.UnixMilli(), id, string(jobs.StateFailed))
}

// PruneFinished удаляет completed/failed задачи старше cutoff
func (r *ScheduledJobRepository) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	query := r.db.Rebind(`DELETE FROM scheduled_jobs WHERE state IN (?, ?) AND updated_at < ?`)
	res, err := r.db.ExecContext(ctx, query, string(jobs.StateCompleted), string(jobs.StateFailed), cutoff.UnixMilli())
	if err != nil {
		return 0, sessions.Transient("ScheduledJobRepo.PruneFinished", err)
	}
	return res.RowsAffected()
}

// leased выполняет условный UPDATE/DELETE и сообщает, затронута ли строка
func (r *ScheduledJobRepository) leased(ctx context.Context, op, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return false, sessions.Transient(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, sessions.Transient(op, err)
	}
	return n > 0, nil
}
