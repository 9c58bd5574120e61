// application/bootstrap/app.go
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"trading-session-guard/application/scheduler"
	"trading-session-guard/internal/core/domain/analytics"
	"trading-session-guard/internal/core/domain/cleanup"
	"trading-session-guard/internal/core/domain/monitor"
	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/core/domain/termination"
	"trading-session-guard/internal/core/jobqueue"
	rediscache "trading-session-guard/internal/infrastructure/cache/redis"
	"trading-session-guard/internal/infrastructure/config"
	"trading-session-guard/internal/infrastructure/metrics"
	"trading-session-guard/internal/infrastructure/persistence/postgres/database"
	events "trading-session-guard/internal/infrastructure/transport/event_bus"
	"trading-session-guard/internal/notifier"
	"trading-session-guard/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Application главное приложение
type Application struct {
	config  *config.Config
	metrics *metrics.Metrics

	db    *database.DatabaseService
	redis *rediscache.RedisService
	bus   *events.EventBus

	sessionStore sessions.Store
	dispatcher   *notifier.Dispatcher
	queue        *jobqueue.Scheduler
	cron         *scheduler.Scheduler
	coordinator  *termination.Coordinator
	monitor      *monitor.Monitor
	sessions     *sessions.Service
	sweeper      *cleanup.Sweeper
	analytics    *analytics.Engine
	httpServer   *metrics.Server

	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// Run запускает фоновые циклы и блокируется до отмены ctx, затем останавливает все компоненты
func (app *Application) Run(ctx context.Context) error {
	app.mu.Lock()
	if app.running {
		app.mu.Unlock()
		return errors.New("приложение уже запущено")
	}
	app.running = true
	app.startTime = time.Now()
	app.mu.Unlock()

	logger.Info("🚀 [App] Запуск приложения (%s)", app.config.Environment)

	if err := app.queue.Start(ctx); err != nil {
		app.shutdown()
		return fmt.Errorf("запуск очереди задач: %w", err)
	}
	app.cron.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if app.httpServer != nil {
		g.Go(app.httpServer.Start)
	}

	if app.config.Cleanup.RunOnStartup {
		g.Go(func() error {
			if _, err := app.sweeper.Run(gctx); err != nil {
				logger.Warn("⚠️ [App] Стартовая очистка не удалась: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("🛑 [App] Получен сигнал завершения")
		app.shutdownWithTimeout(app.config.ShutdownTimeout)
		return nil
	})

	err := g.Wait()
	if err != nil {
		logger.Error("❌ [App] Приложение остановлено с ошибкой: %v", err)
	}
	return err
}

// shutdownWithTimeout останавливает компоненты, не дольше timeout
func (app *Application) shutdownWithTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger.Info("⏳ [App] Graceful shutdown (таймаут: %v)", timeout)

	done := make(chan struct{})
	go func() {
		app.shutdown()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("✅ [App] Graceful shutdown завершен")
	case <-time.After(timeout):
		logger.Warn("⚠️ [App] Таймаут graceful shutdown, принудительное завершение")
	}
}

// shutdown останавливает приложение в обратном порядке запуска
func (app *Application) shutdown() {
	app.mu.Lock()
	defer app.mu.Unlock()

	if !app.running {
		return
	}

	timeout := app.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	app.cron.Stop()
	if err := app.queue.Stop(ctx); err != nil {
		logger.Warn("⚠️ [App] Очередь задач остановлена с ошибкой: %v", err)
	}
	if app.httpServer != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			logger.Warn("⚠️ [App] Ошибка остановки HTTP сервера: %v", err)
		}
	}
	app.bus.Stop()
	if app.redis != nil {
		if err := app.redis.Stop(); err != nil {
			logger.Warn("⚠️ [App] Ошибка остановки Redis: %v", err)
		}
	}
	if app.db != nil {
		if err := app.db.Stop(); err != nil {
			logger.Warn("⚠️ [App] Ошибка остановки базы данных: %v", err)
		}
	}

	app.running = false
	logger.Info("✅ [App] Приложение остановлено. Время работы: %v", time.Since(app.startTime))
}

// Close освобождает ресурсы собранного, но не запущенного приложения
func (app *Application) Close() {
	app.mu.RLock()
	running := app.running
	app.mu.RUnlock()
	if running {
		return
	}
	app.bus.Stop()
	if app.redis != nil {
		_ = app.redis.Stop()
	}
	if app.db != nil {
		_ = app.db.Stop()
	}
}

// SweepNow синхронно выполняет очистку
func (app *Application) SweepNow(ctx context.Context) (cleanup.Report, error) {
	return app.sweeper.Run(ctx)
}

// Status возвращает статус приложения
func (app *Application) Status() map[string]interface{} {
	app.mu.RLock()
	defer app.mu.RUnlock()

	status := map[string]interface{}{
		"running":   app.running,
		"uptime":    time.Since(app.startTime).String(),
		"startTime": app.startTime.Format(time.RFC3339),
		"queue":     app.queue.IsRunning(),
		"cron":      app.cron.Jobs(),
		"event_bus": app.bus.GetMetrics(),
		"config": map[string]interface{}{
			"environment":      app.config.Environment,
			"database_enabled": app.db != nil,
			"redis_enabled":    app.redis != nil,
			"http_enabled":     app.httpServer != nil,
		},
	}
	if app.db != nil {
		status["database"] = app.db.GetStats()
	}
	if app.redis != nil {
		status["redis"] = app.redis.GetStats()
	}
	return status
}

// Sessions сервис жизненного цикла сессий
func (app *Application) Sessions() *sessions.Service { return app.sessions }

// Analytics движок аналитики
func (app *Application) Analytics() *analytics.Engine { return app.analytics }

// Queue очередь отложенных задач
func (app *Application) Queue() *jobqueue.Scheduler { return app.queue }

// Monitor монитор активных сессий
func (app *Application) Monitor() *monitor.Monitor { return app.monitor }
