// application/bootstrap/builder.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trading-session-guard/application/scheduler"
	"trading-session-guard/internal/core/domain/analytics"
	"trading-session-guard/internal/core/domain/cleanup"
	"trading-session-guard/internal/core/domain/jobs"
	"trading-session-guard/internal/core/domain/monitor"
	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/core/domain/termination"
	"trading-session-guard/internal/core/jobqueue"
	"trading-session-guard/internal/infrastructure/api/orders"
	"trading-session-guard/internal/infrastructure/cache/memory"
	rediscache "trading-session-guard/internal/infrastructure/cache/redis"
	"trading-session-guard/internal/infrastructure/config"
	"trading-session-guard/internal/infrastructure/metrics"
	storage "trading-session-guard/internal/infrastructure/persistence/in_memory_storage"
	"trading-session-guard/internal/infrastructure/persistence/postgres/database"
	scheduled_job_repo "trading-session-guard/internal/infrastructure/persistence/postgres/repository/scheduled_job"
	trading_session_repo "trading-session-guard/internal/infrastructure/persistence/postgres/repository/trading_session"
	events "trading-session-guard/internal/infrastructure/transport/event_bus"
	"trading-session-guard/internal/notifier"
	"trading-session-guard/pkg/logger"
)

// AppBuilder строитель приложения
type AppBuilder struct {
	config   *config.Config
	now      func() time.Time
	canceler termination.OrderCanceller
}

// NewAppBuilder создает новый строитель приложений
func NewAppBuilder() *AppBuilder {
	return &AppBuilder{now: time.Now}
}

// WithConfig устанавливает конфигурацию
func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	b.config = cfg
	return b
}

// WithClock подменяет источник времени во всех компонентах
func (b *AppBuilder) WithClock(now func() time.Time) *AppBuilder {
	b.now = now
	return b
}

// WithOrderCanceller подменяет клиента подсистемы ордеров
func (b *AppBuilder) WithOrderCanceller(c termination.OrderCanceller) *AppBuilder {
	b.canceler = c
	return b
}

// Build подключает хранилища и собирает граф компонентов. Фоновые циклы не запускаются до Run.
func (b *AppBuilder) Build(ctx context.Context) (*Application, error) {
	if b.config == nil {
		return nil, errors.New("конфигурация не задана")
	}
	cfg := b.config

	app := &Application{
		config:  cfg,
		metrics: metrics.New(),
	}

	// 1. Хранилища сессий и задач
	var (
		sessionStore sessions.Store
		jobStore     jobs.Store
	)
	if cfg.Database.Enabled {
		app.db = database.NewDatabaseService(cfg.Database)
		if err := app.db.Start(ctx); err != nil {
			return nil, fmt.Errorf("запуск базы данных: %w", err)
		}
		sessionStore = trading_session_repo.NewTradingSessionRepository(app.db.GetDB()).WithClock(b.now)
		jobStore = scheduled_job_repo.NewScheduledJobRepository(app.db.GetDB())
	} else {
		logger.Warn("⚠️ [Bootstrap] База данных отключена, сессии и задачи хранятся в памяти процесса")
		sessionStore = storage.NewInMemorySessionStore().WithClock(b.now)
		jobStore = storage.NewInMemoryJobStore()
	}
	app.sessionStore = sessionStore

	// 2. Redis: кэш аналитики и канал уведомлений
	var cache analytics.Cache = memory.NewCache().WithClock(b.now)
	if cfg.Redis.Enabled {
		rs := rediscache.NewRedisService(cfg.Redis)
		if err := rs.Start(ctx); err != nil {
			logger.Warn("⚠️ [Bootstrap] Redis недоступен, кэш аналитики в памяти: %v", err)
		} else {
			app.redis = rs
			cache = rs.GetCache()
		}
	}

	// 3. Шина событий и подписчики уведомлений
	app.bus = events.NewEventBus(events.EventBusConfig{
		BufferSize:      cfg.EventBus.BufferSize,
		WorkerCount:     cfg.EventBus.WorkerCount,
		MetricsInterval: cfg.EventBus.MetricsInterval,
		EnableLogging:   true,
	})
	app.bus.AddMiddleware(&events.ValidationMiddleware{})
	app.bus.SubscribeAll(notifier.NewConsoleNotifier(!cfg.IsDev()))
	if app.redis != nil {
		app.bus.SubscribeAll(notifier.NewRedisNotifier(app.redis.GetClient(), cfg.Redis.NotificationChannel))
	}
	app.bus.Start()
	app.dispatcher = notifier.NewDispatcher(app.bus, false)

	// 4. Очередь задач
	queue, err := jobqueue.New(jobStore, jobqueue.Config{
		Workers:        cfg.Scheduler.Workers,
		PollInterval:   cfg.Scheduler.PollInterval,
		LeaseTTL:       cfg.Scheduler.LeaseTTL,
		HandlerTimeout: cfg.Scheduler.HandlerTimeout,
		MaxAttempts:    cfg.Scheduler.MaxAttempts,
		Backoff:        jobs.Backoff{Base: cfg.Scheduler.BackoffBase, Max: cfg.Scheduler.BackoffMax},
	}, jobqueue.WithClock(b.now), jobqueue.WithRecorder(app.metrics), jobqueue.WithNotifier(app.dispatcher))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("очередь задач: %w", err)
	}
	app.queue = queue

	// 5. Доменные сервисы
	app.analytics = analytics.NewEngine(sessionStore, cache, analyticsConfig(cfg.Analytics),
		analytics.WithClock(b.now), analytics.WithRecorder(app.metrics))

	canceler := b.canceler
	if canceler == nil {
		canceler = orders.NewFromConfig(cfg.Orders)
	}
	termCfg := termination.DefaultConfig()
	termCfg.AnalyticsDelay = cfg.Monitor.AnalyticsDelay
	app.coordinator = termination.NewCoordinator(sessionStore, canceler, app.dispatcher, app.queue, termCfg,
		termination.WithClock(b.now), termination.WithRecorder(app.metrics))

	app.monitor = monitor.New(sessionStore, app.queue, app.coordinator, app.dispatcher, monitor.Config{
		LossCheckInterval: cfg.Monitor.LossCheckInterval,
		WarningThreshold:  cfg.Monitor.WarningThreshold,
		CriticalThreshold: cfg.Monitor.CriticalThreshold,
	}, monitor.WithClock(b.now), monitor.WithRecorder(app.metrics), monitor.WithAnalytics(app.analytics))
	app.monitor.Register()
	app.coordinator.SetMonitor(app.monitor)

	app.sessions = sessions.NewService(sessionStore, app.monitor, app.coordinator).WithClock(b.now)

	app.sweeper = cleanup.NewSweeper(sessionStore, app.coordinator, app.queue, cleanup.Config{
		SessionRetention: cfg.Cleanup.SessionRetention,
		JobRetention:     cfg.Cleanup.JobRetention,
	}, cleanup.WithClock(b.now), cleanup.WithRecorder(app.metrics))
	app.queue.Register(jobs.TypeCleanup, app.sweeper.HandleJob)

	// 6. Суточный cron ставит очистку в очередь
	app.cron = scheduler.New(30 * time.Second).WithClock(b.now)
	app.cron.Register(scheduler.CleanupJob(app.queue,
		scheduler.DailyAt(cfg.Cleanup.DailyHour, cfg.Cleanup.DailyMinute), b.now))

	// 7. HTTP: /metrics и /healthz
	if cfg.Logging.HTTPEnabled {
		app.httpServer = metrics.NewServer(cfg.Logging.HTTPPort, app.metrics, app.healthChecks())
	}

	logger.Info("🏗️ [Bootstrap] Приложение собрано")
	return app, nil
}

func (app *Application) healthChecks() map[string]metrics.HealthFunc {
	checks := map[string]metrics.HealthFunc{
		"scheduler": func(ctx context.Context) error {
			if !app.queue.IsRunning() {
				return errors.New("очередь задач не запущена")
			}
			return nil
		},
	}
	if app.db != nil {
		checks["database"] = app.db.HealthCheck
	}
	if app.redis != nil {
		checks["redis"] = app.redis.HealthCheck
	}
	return checks
}

func analyticsConfig(c config.AnalyticsConfig) analytics.Config {
	return analytics.Config{
		CacheTTL:                c.CacheTTL,
		RiskFreeRate:            c.RiskFreeRate,
		MinTimingSessions:       c.MinTimingSessions,
		MinPredictionMatches:    c.MinPredictionMatches,
		PredictionWindow:        c.PredictionWindow,
		FallbackConfidence:      c.FallbackConfidence,
		MaxConfidence:           c.MaxConfidence,
		ConfidenceSampleScale:   c.ConfidenceSampleScale,
		VelocityMediumThreshold: c.VelocityMediumThreshold,
		VelocityHighThreshold:   c.VelocityHighThreshold,
		LossUsageMedium:         c.LossUsageMedium,
		LossUsageHigh:           c.LossUsageHigh,
		TradeConfidenceScale:    c.TradeConfidenceScale,
	}
}
