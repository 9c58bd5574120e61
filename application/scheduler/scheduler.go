// application/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"trading-session-guard/pkg/logger"
)

// Schedule определяет расписание задачи
type Schedule struct {
	kind     scheduleKind
	hour     int
	minute   int
	interval time.Duration
}

type scheduleKind int

const (
	kindDaily    scheduleKind = iota // раз в сутки в HH:MM UTC
	kindInterval                     // каждые N единиц времени
)

// DailyAt создает расписание "каждый день в HH:MM UTC"
func DailyAt(hour, minute int) Schedule {
	return Schedule{kind: kindDaily, hour: hour, minute: minute}
}

// Every создает расписание "каждые N времени"
func Every(d time.Duration) Schedule {
	return Schedule{kind: kindInterval, interval: d}
}

// Next вычисляет время следующего запуска строго после now
func (s Schedule) Next(now time.Time) time.Time {
	now = now.UTC()
	switch s.kind {
	case kindDaily:
		next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.Add(24 * time.Hour)
		}
		return next
	case kindInterval:
		return now.Add(s.interval)
	default:
		return now.Add(24 * time.Hour)
	}
}

// Job описывает одну планируемую задачу
type Job struct {
	Name        string
	Description string
	Schedule    Schedule
	Handler     func(ctx context.Context) error
	Timeout     time.Duration // 0: 5 минут

	mu      sync.Mutex
	nextRun time.Time
	lastRun time.Time
	lastErr error
	runs    int
	running bool
}

// Status возвращает текущее состояние задачи
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return JobStatus{
		Name:        j.Name,
		Description: j.Description,
		NextRun:     j.nextRun,
		LastRun:     j.lastRun,
		LastErr:     j.lastErr,
		Runs:        j.runs,
	}
}

// JobStatus снапшот состояния задачи
type JobStatus struct {
	Name        string
	Description string
	NextRun     time.Time
	LastRun     time.Time
	LastErr     error
	Runs        int
}

// Scheduler запускает периодические задачи процесса.
// Сам ничего не хранит: задачи, которые должны пережить рестарт, только ставят запись в очередь.
type Scheduler struct {
	jobs     []*Job
	mu       sync.RWMutex
	tick     time.Duration
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New создает планировщик, проверяющий расписание каждые tick (0: 30 секунд)
func New(tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &Scheduler{
		tick:     tick,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// WithClock подменяет источник времени
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Register добавляет задачу в планировщик.
// Должен вызываться до Start().
func (s *Scheduler) Register(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.nextRun = job.Schedule.Next(s.now())
	s.jobs = append(s.jobs, job)

	logger.Info("📋 [Scheduler] Зарегистрирована задача %q, первый запуск в %s",
		job.Name, job.nextRun.Format("2006-01-02 15:04:05 UTC"))
}

// Start запускает цикл планировщика в фоновой горутине; отмена ctx останавливает цикл
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx)
	}()
	logger.Info("✅ [Scheduler] Запущен (%d задач)", len(s.Jobs()))
}

// Stop останавливает планировщик и ждёт завершения текущих задач
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	logger.Info("🛑 [Scheduler] Остановлен")
}

// Jobs возвращает статус всех задач
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.RLock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	statuses := make([]JobStatus, len(jobs))
	for i, j := range jobs {
		statuses[i] = j.Status()
	}
	return statuses
}

// RunDue синхронно выполняет задачи, у которых наступило время; возвращает число запусков
func (s *Scheduler) RunDue(ctx context.Context) int {
	due := s.claimDue()
	for _, job := range due {
		s.run(ctx, job)
	}
	return len(due)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.dispatch(ctx)

	for {
		select {
		case <-ticker.C:
			s.dispatch(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// dispatch запускает наступившие задачи в отдельных горутинах
func (s *Scheduler) dispatch(ctx context.Context) {
	for _, job := range s.claimDue() {
		s.wg.Add(1)
		go func(job *Job) {
			defer s.wg.Done()
			s.run(ctx, job)
		}(job)
	}
}

// claimDue помечает наступившие задачи как выполняющиеся; задача не запускается повторно, пока идёт прошлый запуск
func (s *Scheduler) claimDue() []*Job {
	now := s.now().UTC()

	s.mu.RLock()
	jobs := make([]*Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.RUnlock()

	var due []*Job
	for _, job := range jobs {
		job.mu.Lock()
		if !job.running && !now.Before(job.nextRun) {
			job.running = true
			due = append(due, job)
		}
		job.mu.Unlock()
	}
	return due
}

// run выполняет одну задачу и обновляет её состояние
func (s *Scheduler) run(ctx context.Context, job *Job) {
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger.Info("▶️  [Scheduler] Запуск задачи %q", job.Name)
	start := s.now()

	err := job.Handler(runCtx)

	elapsed := s.now().Sub(start)

	job.mu.Lock()
	job.lastRun = start
	job.lastErr = err
	job.runs++
	job.running = false
	job.nextRun = job.Schedule.Next(s.now())
	nextRun := job.nextRun
	job.mu.Unlock()

	if err != nil {
		logger.Error("❌ [Scheduler] Задача %q завершилась с ошибкой за %v: %v", job.Name, elapsed, err)
	} else {
		logger.Info("✅ [Scheduler] Задача %q выполнена за %v. Следующий запуск: %s",
			job.Name, elapsed, nextRun.Format("2006-01-02 15:04:05 UTC"))
	}
}
