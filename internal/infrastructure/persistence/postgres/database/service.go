// internal/infrastructure/persistence/postgres/database/service.go
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trading-session-guard/internal/infrastructure/config"
	"trading-session-guard/internal/infrastructure/persistence/postgres"
	"trading-session-guard/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// DatabaseService сервис для работы с базой данных
type DatabaseService struct {
	config   config.DatabaseConfig
	db       *sqlx.DB
	mu       sync.RWMutex
	state    ServiceState
	migrator *postgres.Migrator
}

// ServiceState состояние сервиса
type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateStopping ServiceState = "stopping"
	StateError    ServiceState = "error"
)

// NewDatabaseService создает новый сервис базы данных
func NewDatabaseService(cfg config.DatabaseConfig) *DatabaseService {
	return &DatabaseService{
		config: cfg,
		state:  StateStopped,
	}
}

// Start подключается к базе и, если включено, применяет миграции
func (ds *DatabaseService) Start(ctx context.Context) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state == StateRunning {
		return fmt.Errorf("database service already running")
	}
	ds.state = StateStarting

	db, err := postgres.Connect(ctx, ds.config)
	if err != nil {
		ds.state = StateError
		return err
	}
	ds.db = db
	ds.migrator = postgres.NewMigrator(db)

	logger.Info("✅ [Database] Подключено (%s)", postgres.Dialect(db))

	if ds.config.EnableAutoMigrate {
		if err := ds.runMigrations(ctx); err != nil {
			db.Close()
			ds.db = nil
			ds.migrator = nil
			ds.state = StateError
			return fmt.Errorf("database migrations failed: %w", err)
		}
	}

	ds.state = StateRunning
	return nil
}

// Stop закрывает пул соединений
func (ds *DatabaseService) Stop() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if ds.state != StateRunning {
		return nil
	}
	ds.state = StateStopping

	if err := ds.db.Close(); err != nil {
		ds.state = StateError
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	ds.db = nil
	ds.migrator = nil
	ds.state = StateStopped
	logger.Info("🛑 [Database] Соединение закрыто")
	return nil
}

func (ds *DatabaseService) runMigrations(ctx context.Context) error {
	if err := ds.migrator.LoadMigrations(); err != nil {
		return err
	}
	if _, err := ds.migrator.Migrate(ctx); err != nil {
		return err
	}

	statuses, err := ds.migrator.Status(ctx)
	if err != nil {
		logger.Warn("⚠️ [Database] Не удалось получить статус миграций: %v", err)
		return nil
	}
	for _, status := range statuses {
		icon := "⏳"
		if status.Applied {
			icon = "✅"
		}
		logger.Debug("   %s %03d: %s", icon, status.ID, status.Name)
	}
	return nil
}

// GetMigrationStatus возвращает статус миграций
func (ds *DatabaseService) GetMigrationStatus(ctx context.Context) ([]postgres.MigrationStatus, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if ds.state != StateRunning || ds.migrator == nil {
		return nil, fmt.Errorf("database service is not running")
	}
	if err := ds.migrator.LoadMigrations(); err != nil {
		return nil, err
	}
	return ds.migrator.Status(ctx)
}

// GetDB возвращает соединение с базой данных
func (ds *DatabaseService) GetDB() *sqlx.DB {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.db
}

// State возвращает состояние сервиса
func (ds *DatabaseService) State() ServiceState {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return ds.state
}

// HealthCheck пингует базу
func (ds *DatabaseService) HealthCheck(ctx context.Context) error {
	db := ds.GetDB()
	if db == nil {
		return fmt.Errorf("database service is not running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// GetStats возвращает статистику пула соединений
func (ds *DatabaseService) GetStats() map[string]interface{} {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	stats := map[string]interface{}{
		"state":     ds.state,
		"connected": ds.db != nil,
	}
	if ds.db != nil {
		dbStats := ds.db.Stats()
		stats["dialect"] = postgres.Dialect(ds.db)
		stats["open_connections"] = dbStats.OpenConnections
		stats["in_use"] = dbStats.InUse
		stats["idle"] = dbStats.Idle
		stats["wait_count"] = dbStats.WaitCount
		stats["wait_duration"] = dbStats.WaitDuration.String()
	}
	return stats
}

// Name возвращает имя сервиса
func (ds *DatabaseService) Name() string {
	return "DatabaseService"
}
