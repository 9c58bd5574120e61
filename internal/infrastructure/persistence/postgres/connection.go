// internal/infrastructure/persistence/postgres/connection.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trading-session-guard/internal/infrastructure/config"
	"trading-session-guard/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	// pgUniqueViolation код unique_violation в PostgreSQL
	pgUniqueViolation = "23505"
)

func init() {
	// modernc регистрирует драйвер под именем "sqlite", которого нет в таблице sqlx
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Connect открывает пул соединений для драйвера из конфигурации
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Driver {
	case DriverPostgres, "":
		logger.Info("📡 [Database] Подключение к PostgreSQL %s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
		db, err = sqlx.Open(DriverPostgres, cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.MaxConnLifetime)
		db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	case DriverSQLite:
		logger.Info("📡 [Database] Открытие SQLite %s", cfg.SQLitePath)
		db, err = OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// OpenSQLite открывает файл SQLite с одним соединением на запись
func OpenSQLite(path string) (*sqlx.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// SQLite сериализует запись; один коннект исключает SQLITE_BUSY между своими же запросами
	db.SetMaxOpenConns(1)
	return db, nil
}

// RunMigrations применяет встроенные миграции диалекта соединения
func RunMigrations(ctx context.Context, db *sqlx.DB) error {
	migrator := NewMigrator(db)
	if err := migrator.LoadMigrations(); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		return err
	}
	return nil
}

// Dialect имя диалекта соединения
func Dialect(db *sqlx.DB) string {
	if db.DriverName() == DriverSQLite {
		return DriverSQLite
	}
	return DriverPostgres
}

// IsUniqueViolation true для нарушения уникального индекса в любом из диалектов
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
