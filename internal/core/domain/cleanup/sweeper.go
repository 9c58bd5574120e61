// internal/core/domain/cleanup/sweeper.go
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-session-guard/internal/core/domain/jobs"
	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/pkg/logger"
)

// GlobalKey session_id суточной задачи очистки
const GlobalKey = "global"

// recoverBatch сколько dead-letter задач просматривается за проход
const recoverBatch = 500

// Terminator завершение сессий
type Terminator interface {
	Terminate(ctx context.Context, sessionID string, reason sessions.TerminationReason) (bool, error)
}

// JobMaintenance обслуживание очереди задач
type JobMaintenance interface {
	PruneFinished(ctx context.Context, cutoff time.Time) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
	DeadLetters(ctx context.Context, limit int) ([]*jobs.Job, error)
	RequeueAt(ctx context.Context, id string, runAt time.Time) (bool, error)
}

// Recorder метрики очистки
type Recorder interface {
	SweepCompleted(expired, deleted int, deadLetters int64)
}

type nopRecorder struct{}

func (nopRecorder) SweepCompleted(int, int, int64) {}

// Config сроки хранения
type Config struct {
	SessionRetention time.Duration
	JobRetention     time.Duration
}

// DefaultConfig 30 дней для сессий, 7 дней для задач
func DefaultConfig() Config {
	return Config{
		SessionRetention: 30 * 24 * time.Hour,
		JobRetention:     7 * 24 * time.Hour,
	}
}

// Report итог одного прохода
type Report struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
	Expired         int           `json:"expired"`
	AlreadyResolved int           `json:"already_resolved"`
	LossStopped     int           `json:"loss_stopped"`
	JobsRequeued    int           `json:"jobs_requeued"`
	SessionsDeleted int64         `json:"sessions_deleted"`
	JobsPruned      int64         `json:"jobs_pruned"`
	DeadLetters     int64         `json:"dead_letters"`
	Errors          []string      `json:"errors,omitempty"`
}

// Sweeper страховочная очистка: завершает просроченные сессии и сессии
// с превышенным лимитом убытка, которые пропустили свои задачи, возвращает
// в очередь упавшие задачи мониторинга активных сессий и удаляет старые данные
type Sweeper struct {
	store      sessions.Store
	terminator Terminator
	jobs       JobMaintenance
	recorder   Recorder
	config     Config
	now        func() time.Time
}

// Option опция очистки
type Option func(*Sweeper)

// WithClock подменяет часы
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// WithRecorder подключает метрики
func WithRecorder(r Recorder) Option {
	return func(s *Sweeper) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewSweeper создает очистку
func NewSweeper(store sessions.Store, terminator Terminator, maintenance JobMaintenance, config Config, opts ...Option) *Sweeper {
	defaults := DefaultConfig()
	if config.SessionRetention <= 0 {
		config.SessionRetention = defaults.SessionRetention
	}
	if config.JobRetention <= 0 {
		config.JobRetention = defaults.JobRetention
	}
	s := &Sweeper{
		store:      store,
		terminator: terminator,
		jobs:       maintenance,
		recorder:   nopRecorder{},
		config:     config,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run выполняет один проход. Ошибки отдельных шагов не прерывают остальные.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	now := s.now()
	report := Report{StartedAt: now}
	var errs []error

	fail := func(step string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", step, err))
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", step, err))
	}

	ids, err := s.store.FindActiveSessionsPastEndTime(ctx, now)
	if err != nil {
		fail("find_expired", err)
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			fail("expire", ctx.Err())
			break
		}
		applied, err := s.terminator.Terminate(ctx, id, sessions.ReasonTimeExpired)
		switch {
		case err != nil:
			fail("expire "+id, err)
		case applied:
			report.Expired++
		default:
			report.AlreadyResolved++
		}
	}

	s.stopBreached(ctx, &report, fail)
	if s.jobs != nil {
		s.requeueMonitoring(ctx, &report, fail)
	}

	deleted, err := s.store.DeleteOlderThan(ctx, now.Add(-s.config.SessionRetention))
	if err != nil {
		fail("delete_sessions", err)
	}
	report.SessionsDeleted = deleted

	if s.jobs != nil {
		pruned, err := s.jobs.PruneFinished(ctx, now.Add(-s.config.JobRetention))
		if err != nil {
			fail("prune_jobs", err)
		}
		report.JobsPruned = pruned

		dead, err := s.jobs.DeadLetterCount(ctx)
		if err != nil {
			fail("dead_letters", err)
		}
		report.DeadLetters = dead
	}

	report.Duration = s.now().Sub(now)
	s.recorder.SweepCompleted(report.Expired, int(report.SessionsDeleted), report.DeadLetters)

	if report.Expired > 0 {
		logger.Warn("⏰ [Cleanup] Завершено просроченных сессий, пропущенных задачами: %d", report.Expired)
	}
	if report.LossStopped > 0 {
		logger.Warn("🛑 [Cleanup] Остановлено сессий с превышенным лимитом убытка: %d", report.LossStopped)
	}
	if report.DeadLetters > 0 {
		logger.Warn("💀 [Cleanup] Задач в dead-letter: %d", report.DeadLetters)
	}
	logger.Info("🧹 [Cleanup] Очистка: истекло=%d, по убытку=%d, уже решено=%d, задач возвращено=%d, удалено сессий=%d, удалено задач=%d",
		report.Expired, report.LossStopped, report.AlreadyResolved, report.JobsRequeued, report.SessionsDeleted, report.JobsPruned)

	return report, errors.Join(errs...)
}

// stopBreached останавливает активные сессии, чей убыток уже достиг лимита,
// если задача loss_check до них не добралась
func (s *Sweeper) stopBreached(ctx context.Context, report *Report, fail func(string, error)) {
	active, err := s.store.ListActiveByUser(ctx, 0)
	if err != nil {
		fail("list_active", err)
		return
	}
	for _, session := range active {
		if ctx.Err() != nil {
			fail("loss_stop", ctx.Err())
			return
		}
		if !session.LossLimitBreached() {
			continue
		}
		applied, err := s.terminator.Terminate(ctx, session.ID, sessions.ReasonLossLimitReached)
		switch {
		case err != nil:
			fail("loss_stop "+session.ID, err)
		case applied:
			report.LossStopped++
		default:
			report.AlreadyResolved++
		}
	}
}

// requeueMonitoring возвращает в очередь упавшие expiration/loss_check задачи
// сессий, которые всё ещё ACTIVE. Истечение ставится на EndTime сессии.
func (s *Sweeper) requeueMonitoring(ctx context.Context, report *Report, fail func(string, error)) {
	dead, err := s.jobs.DeadLetters(ctx, recoverBatch)
	if err != nil {
		fail("list_dead_letters", err)
		return
	}
	now := s.now()
	for _, job := range dead {
		if job.Type != jobs.TypeExpiration && job.Type != jobs.TypeLossCheck {
			continue
		}
		session, err := s.store.GetSession(ctx, job.SessionID)
		if errors.Is(err, sessions.ErrNotFound) {
			continue
		}
		if err != nil {
			fail("requeue "+job.ID, err)
			continue
		}
		if !session.IsActive() {
			continue
		}

		runAt := now
		if job.Type == jobs.TypeExpiration {
			runAt = session.EndTime
		}
		ok, err := s.jobs.RequeueAt(ctx, job.ID, runAt)
		if err != nil {
			fail("requeue "+job.ID, err)
			continue
		}
		if ok {
			report.JobsRequeued++
			logger.Info("♻️ [Cleanup] Задача %s сессии %s возвращена в очередь", job.ID, session.ID)
		}
	}
}

// HandleJob обработчик задачи cleanup; при частичной ошибке задача повторяется
func (s *Sweeper) HandleJob(ctx context.Context, job *jobs.Job) error {
	var p jobs.CleanupPayload
	if err := jobs.Decode(job, &p); err != nil {
		return err
	}
	logger.Debug("🧹 [Cleanup] Суточная очистка за %s", p.Date)

	_, err := s.Run(ctx)
	return err
}

// DailyKey суффикс ключа задачи очистки за дату (UTC)
func DailyKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
