// internal/infrastructure/persistence/postgres/migrator.go
package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"trading-session-guard/pkg/logger"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrator управляет миграциями базы данных
type Migrator struct {
	db         *sqlx.DB
	dialect    string
	migrations map[int]*Migration
}

// Migration представляет одну миграцию
type Migration struct {
	ID          int
	Name        string
	Description string
	SQL         string
	Checksum    string
}

// MigrationStatus состояние миграции относительно базы
type MigrationStatus struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
}

// MigrationRecord строка таблицы schema_migrations
type MigrationRecord struct {
	ID        int    `db:"id"`
	Name      string `db:"name"`
	Checksum  string `db:"checksum"`
	AppliedAt int64  `db:"applied_at"`
}

// NewMigrator создает мигратор для диалекта соединения
func NewMigrator(db *sqlx.DB) *Migrator {
	return &Migrator{
		db:         db,
		dialect:    Dialect(db),
		migrations: make(map[int]*Migration),
	}
}

// Init создает таблицу миграций
func (m *Migrator) Init(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		id         INTEGER PRIMARY KEY,
		name       VARCHAR(255) NOT NULL,
		checksum   VARCHAR(64) NOT NULL,
		applied_at BIGINT NOT NULL
	)`
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

// LoadMigrations загружает встроенные миграции своего диалекта; повторный вызов ничего не делает
func (m *Migrator) LoadMigrations() error {
	if len(m.migrations) > 0 {
		return nil
	}
	return m.LoadFrom(migrationsFS, path.Join("migrations", m.dialect))
}

// LoadFrom загружает миграции вида 001_name.sql из каталога fsys
func (m *Migrator) LoadFrom(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, filename := range files {
		id, name, err := parseMigrationFilename(filename)
		if err != nil {
			return err
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", filename, err)
		}
		if _, dup := m.migrations[id]; dup {
			return fmt.Errorf("duplicate migration ID %d (%s)", id, filename)
		}
		m.migrations[id] = &Migration{
			ID:          id,
			Name:        name,
			Description: extractDescription(string(content)),
			SQL:         string(content),
			Checksum:    calculateChecksum(string(content)),
		}
		logger.Debug("📄 [Migrator] Загружена миграция %s (%s)", filename, m.migrations[id].Description)
	}

	logger.Info("📂 [Migrator] Загружено %d миграций (%s)", len(m.migrations), m.dialect)
	return nil
}

// Migrate применяет все непройденные миграции по порядку
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.Validate(ctx); err != nil {
		return 0, err
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	for _, id := range m.orderedIDs() {
		if _, ok := applied[id]; ok {
			continue
		}
		if err := m.applyMigration(ctx, m.migrations[id]); err != nil {
			return count, fmt.Errorf("failed to apply migration %d (%s): %w", id, m.migrations[id].Name, err)
		}
		count++
	}

	if count > 0 {
		logger.Info("✅ [Migrator] Применено новых миграций: %d", count)
	} else {
		logger.Info("✅ [Migrator] Схема базы актуальна")
	}
	return count, nil
}

// Status показывает состояние всех загруженных миграций
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(m.migrations))
	for _, id := range m.orderedIDs() {
		migration := m.migrations[id]
		status := MigrationStatus{ID: id, Name: migration.Name, Status: "pending"}
		if record, ok := applied[id]; ok {
			status.Applied = true
			status.AppliedAt = time.UnixMilli(record.AppliedAt).UTC()
			status.Status = "applied"
			if record.Checksum != migration.Checksum {
				status.Status = "checksum_mismatch"
				status.Message = fmt.Sprintf("expected %s, got %s", migration.Checksum, record.Checksum)
			}
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// Validate проверяет непрерывность ID и контрольные суммы примененных миграций
func (m *Migrator) Validate(ctx context.Context) error {
	if len(m.migrations) == 0 {
		return fmt.Errorf("no migrations loaded")
	}
	for i, id := range m.orderedIDs() {
		if id != i+1 {
			return fmt.Errorf("missing migration with ID %d", i+1)
		}
	}

	applied, err := m.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	var problems []string
	for id, record := range applied {
		migration, ok := m.migrations[id]
		if !ok {
			problems = append(problems, fmt.Sprintf("migration %d applied but not found", id))
			continue
		}
		if record.Checksum != migration.Checksum {
			problems = append(problems, fmt.Sprintf("migration %d (%s): checksum mismatch", id, migration.Name))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("migration validation failed:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

func (m *Migrator) appliedMigrations(ctx context.Context) (map[int]*MigrationRecord, error) {
	if err := m.Init(ctx); err != nil {
		return nil, err
	}

	var records []MigrationRecord
	query := `SELECT id, name, checksum, applied_at FROM schema_migrations ORDER BY id`
	if err := m.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	applied := make(map[int]*MigrationRecord, len(records))
	for i := range records {
		applied[records[i].ID] = &records[i]
	}
	return applied, nil
}

func (m *Migrator) applyMigration(ctx context.Context, migration *Migration) error {
	logger.Info("📤 [Migrator] Применение миграции %03d: %s", migration.ID, migration.Name)

	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := tx.Rebind(`INSERT INTO schema_migrations (id, name, checksum, applied_at) VALUES (?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, query, migration.ID, migration.Name, migration.Checksum, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to save migration record: %w", err)
	}

	return tx.Commit()
}

func (m *Migrator) orderedIDs() []int {
	ids := make([]int, 0, len(m.migrations))
	for id := range m.migrations {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Вспомогательные функции

func parseMigrationFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")

	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("invalid migration filename format: %s (expected: 001_name.sql)", filename)
	}

	var id int
	if _, err := fmt.Sscanf(parts[0], "%d", &id); err != nil || id <= 0 {
		return 0, "", fmt.Errorf("invalid migration ID in filename: %s", filename)
	}

	return id, strings.ReplaceAll(parts[1], "_", " "), nil
}

func extractDescription(sql string) string {
	for _, line := range strings.Split(sql, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-- Description:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "-- Description:"))
		}
	}
	return ""
}

func calculateChecksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
