// internal/core/jobqueue/scheduler.go
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"trading-session-guard/internal/core/domain/jobs"
	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/notifier"
	"trading-session-guard/pkg/logger"

	"github.com/alitto/pond/v2"
)

// Handler обработчик задачи одного типа
type Handler func(ctx context.Context, job *jobs.Job) error

// Recorder приёмник метрик очереди
type Recorder interface {
	JobEnqueued(t jobs.Type)
	JobSucceeded(t jobs.Type, d time.Duration)
	JobRetried(t jobs.Type)
	JobDeadLettered(t jobs.Type)
	JobStalled(t jobs.Type)
}

type nopRecorder struct{}

func (nopRecorder) JobEnqueued(jobs.Type)                 {}
func (nopRecorder) JobSucceeded(jobs.Type, time.Duration) {}
func (nopRecorder) JobRetried(jobs.Type)                  {}
func (nopRecorder) JobDeadLettered(jobs.Type)             {}
func (nopRecorder) JobStalled(jobs.Type)                  {}

// Notifier оповещение операторов о задачах в dead-letter
type Notifier interface {
	Emit(ctx context.Context, n notifier.Notification) error
}

// ErrStalled обработчик не уложился в бюджет времени
var ErrStalled = errors.New("обработчик превысил бюджет времени")

// Option функциональная опция планировщика
type Option func(*Scheduler)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithRecorder подключает метрики
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithNotifier оповещает о каждой задаче, ушедшей в dead-letter
func WithNotifier(n Notifier) Option {
	return func(s *Scheduler) { s.notifier = n }
}

// Scheduler долговременная очередь задач с пулом воркеров.
// Дедупликация по ключу задачи и CAS захват аренды гарантируют, что в каждый
// момент выполняется не более одного экземпляра задачи с данным ключом.
type Scheduler struct {
	store    jobs.Store
	config   Config
	recorder Recorder
	notifier Notifier
	now      func() time.Time

	mu       sync.RWMutex
	handlers map[jobs.Type]Handler

	pool     pond.Pool
	inflight atomic.Int64
	running  atomic.Bool
	wake     chan struct{}
	stopCh   chan struct{}
	loopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
}

// New создает планировщик; воркеры запускаются в Start
func New(store jobs.Store, config Config, opts ...Option) (*Scheduler, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("jobqueue.New: %w", err)
	}
	s := &Scheduler{
		store:    store,
		config:   config,
		recorder: nopRecorder{},
		now:      time.Now,
		handlers: make(map[jobs.Type]Handler),
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Owner идентификатор экземпляра
func (s *Scheduler) Owner() string {
	return s.config.Owner
}

// Register регистрирует обработчик для типа задач
func (s *Scheduler) Register(t jobs.Type, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[t] = h
	logger.Debug("📝 [Scheduler] Зарегистрирован обработчик %s", t)
}

func (s *Scheduler) handler(t jobs.Type) (Handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handlers[t]
	return h, ok
}

// Enqueue ставит задачу в очередь. Повторная постановка с тем же ключом ничего не меняет
// и возвращает существующий ключ с inserted=false.
func (s *Scheduler) Enqueue(ctx context.Context, t jobs.Type, sessionID string, payload interface{}, opts jobs.Options) (string, bool, error) {
	if !t.Valid() {
		return "", false, &sessions.ValidationError{Field: "job_type", Reason: fmt.Sprintf("неизвестный тип задачи %q", string(t))}
	}
	if sessionID == "" {
		return "", false, &sessions.ValidationError{Field: "session_id", Reason: "пустой session_id"}
	}

	raw, err := jobs.Encode(payload)
	if err != nil {
		return "", false, err
	}

	now := s.now()
	runAt := now.Add(opts.Delay)
	if !opts.RunAt.IsZero() {
		runAt = opts.RunAt
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.config.MaxAttempts
	}

	job := &jobs.Job{
		ID:          jobs.Key(t, sessionID, opts.KeySuffix),
		Type:        t,
		SessionID:   sessionID,
		Payload:     raw,
		RunAt:       runAt,
		Interval:    opts.Interval,
		MaxAttempts: maxAttempts,
		State:       jobs.StatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	inserted, err := s.store.Insert(ctx, job)
	if err != nil {
		return "", false, fmt.Errorf("Scheduler.Enqueue %s: %w", job.ID, err)
	}
	if !inserted {
		logger.Debug("🔁 [Scheduler] Задача %s уже в очереди", job.ID)
		return job.ID, false, nil
	}

	s.recorder.JobEnqueued(t)
	logger.Debug("📥 [Scheduler] Задача %s запланирована на %s", job.ID, runAt.Format(time.RFC3339))
	if !runAt.After(now) {
		s.notify()
	}
	return job.ID, true, nil
}

// Cancel отменяет будущие запуски задачи. Выполняющийся экземпляр доработает,
// но не сможет перепланировать себя: строки больше нет.
func (s *Scheduler) Cancel(ctx context.Context, t jobs.Type, sessionID string, suffix ...string) (bool, error) {
	id := jobs.Key(t, sessionID, suffix...)
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("Scheduler.Cancel %s: %w", id, err)
	}
	if deleted {
		logger.Debug("🗑️ [Scheduler] Задача %s отменена", id)
	}
	return deleted, nil
}

// CancelSession отменяет незавершённые задачи сессии указанных типов (все типы, если не указаны)
func (s *Scheduler) CancelSession(ctx context.Context, sessionID string, types ...jobs.Type) (int64, error) {
	n, err := s.store.DeleteBySession(ctx, sessionID, types)
	if err != nil {
		return 0, fmt.Errorf("Scheduler.CancelSession %s: %w", sessionID, err)
	}
	return n, nil
}

// Get возвращает задачу по ключу
func (s *Scheduler) Get(ctx context.Context, id string) (*jobs.Job, error) {
	return s.store.Get(ctx, id)
}

// DeadLetters задачи, исчерпавшие попытки
func (s *Scheduler) DeadLetters(ctx context.Context, limit int) ([]*jobs.Job, error) {
	return s.store.ListByState(ctx, jobs.StateFailed, limit)
}

// DeadLetterCount количество задач в dead-letter
func (s *Scheduler) DeadLetterCount(ctx context.Context) (int64, error) {
	return s.store.CountByState(ctx, jobs.StateFailed)
}

// Requeue возвращает dead-letter задачу в очередь с немедленным запуском
func (s *Scheduler) Requeue(ctx context.Context, id string) (bool, error) {
	return s.RequeueAt(ctx, id, s.now())
}

// RequeueAt возвращает dead-letter задачу в очередь с запуском не раньше runAt
func (s *Scheduler) RequeueAt(ctx context.Context, id string, runAt time.Time) (bool, error) {
	now := s.now()
	if runAt.Before(now) {
		runAt = now
	}
	ok, err := s.store.Requeue(ctx, id, runAt, now)
	if err != nil {
		return false, fmt.Errorf("Scheduler.Requeue %s: %w", id, err)
	}
	if ok {
		logger.Info("♻️ [Scheduler] Задача %s возвращена в очередь", id)
		s.notify()
	}
	return ok, nil
}

// PruneFinished удаляет завершённые и dead-letter задачи старше cutoff
func (s *Scheduler) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := s.store.PruneFinished(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("Scheduler.PruneFinished: %w", err)
	}
	return n, nil
}

// Start запускает цикл опроса и пул воркеров
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("планировщик уже запущен")
	}

	s.runCtx, s.runCancel = context.WithCancel(context.Background())
	s.pool = pond.NewPool(s.config.Workers)
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})

	go s.loop()

	logger.Info("🚀 [Scheduler] Запущен: воркеров=%d, опрос=%v, аренда=%v, владелец=%s",
		s.config.Workers, s.config.PollInterval, s.config.LeaseTTL, s.config.Owner)
	return nil
}

// Stop прекращает захват новых задач и ждёт выполняющиеся.
// Если ctx истекает раньше, контекст обработчиков отменяется.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	close(s.stopCh)
	<-s.loopDone

	done := make(chan struct{})
	go func() {
		s.pool.StopAndWait()
		close(done)
	}()

	select {
	case <-done:
		s.runCancel()
		logger.Info("🛑 [Scheduler] Остановлен")
		return nil
	case <-ctx.Done():
		s.runCancel()
		logger.Warn("⚠️ [Scheduler] Остановка по таймауту, в работе %d задач", s.inflight.Load())
		return ctx.Err()
	}
}

// IsRunning запущен ли цикл опроса
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// RunDue синхронно выполняет все готовые задачи в текущей горутине.
// Используется при старте и в тестах.
func (s *Scheduler) RunDue(ctx context.Context) (int, error) {
	total := 0
	for {
		claimed, err := s.store.Claim(ctx, s.config.Owner, s.now(), s.config.LeaseTTL, s.config.Workers)
		if err != nil {
			return total, fmt.Errorf("Scheduler.RunDue: %w", err)
		}
		if len(claimed) == 0 {
			return total, nil
		}
		for _, job := range claimed {
			s.execute(ctx, job)
			total++
		}
	}
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.poll()
		case <-s.wake:
			s.poll()
		}
	}
}

func (s *Scheduler) poll() {
	free := int64(s.config.Workers) - s.inflight.Load()
	if free <= 0 {
		return
	}

	claimed, err := s.store.Claim(s.runCtx, s.config.Owner, s.now(), s.config.LeaseTTL, int(free))
	if err != nil {
		logger.Warn("⚠️ [Scheduler] Ошибка захвата задач: %v", err)
		return
	}

	for _, job := range claimed {
		s.inflight.Add(1)
		s.pool.Submit(func() {
			defer s.inflight.Add(-1)
			s.execute(s.runCtx, job)
		})
	}
}

func (s *Scheduler) execute(ctx context.Context, job *jobs.Job) {
	h, ok := s.handler(job.Type)
	if !ok {
		s.deadLetter(ctx, job, &sessions.ValidationError{Field: "job_type", Reason: fmt.Sprintf("нет обработчика для %s", job.Type)})
		return
	}

	started := s.now()
	err := s.invoke(ctx, h, job)
	if err == nil {
		s.recorder.JobSucceeded(job.Type, s.now().Sub(started))
		s.succeed(ctx, job)
		return
	}

	if sessions.IsValidation(err) {
		s.deadLetter(ctx, job, err)
		return
	}
	if errors.Is(err, ErrStalled) {
		s.recorder.JobStalled(job.Type)
	}
	if job.Attempts >= job.MaxAttempts {
		s.deadLetter(ctx, job, err)
		return
	}
	s.retry(ctx, job, err)
}

func (s *Scheduler) invoke(ctx context.Context, h Handler, job *jobs.Job) (err error) {
	hctx, cancel := context.WithTimeout(ctx, s.config.HandlerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("паника в обработчике %s: %v", job.Type, r)
			}
		}()
		done <- h(hctx, job)
	}()

	select {
	case err = <-done:
		return err
	case <-hctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s (%v)", ErrStalled, job.ID, s.config.HandlerTimeout)
	}
}

func (s *Scheduler) succeed(ctx context.Context, job *jobs.Job) {
	now := s.now()
	var (
		applied bool
		err     error
	)
	if job.Repeating() {
		applied, err = s.store.Reschedule(ctx, job.ID, s.config.Owner, now.Add(job.Interval), 0, "", now)
	} else {
		applied, err = s.store.Complete(ctx, job.ID, s.config.Owner, now)
	}

	switch {
	case err != nil:
		logger.Warn("⚠️ [Scheduler] Не удалось зафиксировать задачу %s: %v", job.ID, err)
	case !applied:
		logger.Debug("🔕 [Scheduler] Задача %s отменена во время выполнения", job.ID)
	}
}

func (s *Scheduler) retry(ctx context.Context, job *jobs.Job, cause error) {
	delay := s.config.Backoff.Delay(job.Attempts)
	now := s.now()

	applied, err := s.store.Reschedule(ctx, job.ID, s.config.Owner, now.Add(delay), job.Attempts, cause.Error(), now)
	if err != nil {
		logger.Warn("⚠️ [Scheduler] Не удалось перепланировать %s: %v", job.ID, err)
		return
	}
	if !applied {
		return
	}

	s.recorder.JobRetried(job.Type)
	logger.Warn("🔄 [Scheduler] Задача %s: попытка %d/%d не удалась (%v), повтор через %v",
		job.ID, job.Attempts, job.MaxAttempts, cause, delay)
}

func (s *Scheduler) deadLetter(ctx context.Context, job *jobs.Job, cause error) {
	applied, err := s.store.Fail(ctx, job.ID, s.config.Owner, cause.Error(), s.now())
	if err != nil {
		logger.Warn("⚠️ [Scheduler] Не удалось перевести %s в dead-letter: %v", job.ID, err)
		return
	}
	if !applied {
		return
	}

	s.recorder.JobDeadLettered(job.Type)
	logger.Error("💀 [Scheduler] Задача %s в dead-letter после %d попыток: %v", job.ID, job.Attempts, cause)

	if s.notifier == nil {
		return
	}
	n := notifier.Notification{
		SessionID: job.SessionID,
		Type:      notifier.TypeJobDeadLettered,
		Payload: map[string]interface{}{
			"job_id":     job.ID,
			"job_type":   string(job.Type),
			"attempts":   job.Attempts,
			"last_error": cause.Error(),
		},
		CreatedAt: s.now(),
	}
	if err := s.notifier.Emit(ctx, n); err != nil {
		logger.Warn("⚠️ [Scheduler] Оповещение о dead-letter %s не отправлено: %v", job.ID, err)
	}
}
