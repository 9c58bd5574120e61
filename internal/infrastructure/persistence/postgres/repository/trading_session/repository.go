// internal/infrastructure/persistence/postgres/repository/trading_session/repository.go
package trading_session_repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/infrastructure/persistence/postgres"
	"trading-session-guard/internal/infrastructure/persistence/postgres/models"
	"trading-session-guard/pkg/logger"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// maxTradeRetries сколько раз ApplyTrade перечитывает строку при конкурентной записи
const maxTradeRetries = 5

var _ sessions.Store = (*TradingSessionRepository)(nil)

// TradingSessionRepository хранилище сессий на PostgreSQL или SQLite
type TradingSessionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewTradingSessionRepository создаёт репозиторий
func NewTradingSessionRepository(db *sqlx.DB) *TradingSessionRepository {
	return &TradingSessionRepository{db: db, now: time.Now}
}

// WithClock подменяет источник времени для updated_at
func (r *TradingSessionRepository) WithClock(now func() time.Time) *TradingSessionRepository {
	r.now = now
	return r
}

// Create вставляет новую сессию
func (r *TradingSessionRepository) Create(ctx context.Context, session *sessions.TradingSession) error {
	query := `
		INSERT INTO trading_sessions (` + models.TradingSessionColumns + `)
		VALUES (:id, :user_id, :status, :duration_minutes, :loss_limit_amount, :loss_limit_percentage,
			:starting_balance, :start_time, :end_time, :actual_end_time, :realized_pnl, :trade_count,
			:termination_reason, :created_at, :updated_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, models.NewTradingSession(session))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			if session.Status == sessions.StatusActive {
				return sessions.ErrActiveSessionExists
			}
			return &sessions.ValidationError{Field: "id", Reason: "сессия с таким ID уже существует"}
		}
		return sessions.Transient("TradingSessionRepo.Create", err)
	}

	logger.Debug("💾 [SessionRepo] Сессия %s сохранена: user=%d", session.ID, session.UserID)
	return nil
}

// GetSession читает сессию по ID
func (r *TradingSessionRepository) GetSession(ctx context.Context, id string) (*sessions.TradingSession, error) {
	row, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return row.ToDomain(), nil
}

// AtomicTransition UPDATE ... WHERE status = from; применилось ли, решает число затронутых строк
func (r *TradingSessionRepository) AtomicTransition(ctx context.Context, id string, from, to sessions.Status, fields sessions.TransitionFields) (bool, error) {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(to), r.now().UnixMilli()}

	if fields.StartTime != nil {
		sets = append(sets, "start_time = ?")
		args = append(args, models.ToMillis(*fields.StartTime))
	}
	if fields.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, models.ToMillis(*fields.EndTime))
	}
	if fields.ActualEndTime != nil {
		sets = append(sets, "actual_end_time = ?")
		args = append(args, models.ToMillis(*fields.ActualEndTime))
	}
	if fields.TerminationReason != "" {
		sets = append(sets, "termination_reason = ?")
		args = append(args, string(fields.TerminationReason))
	}
	args = append(args, id, string(from))

	query := r.db.Rebind(`UPDATE trading_sessions SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND status = ?`)
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return false, sessions.ErrActiveSessionExists
		}
		return false, sessions.Transient("TradingSessionRepo.AtomicTransition", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, sessions.Transient("TradingSessionRepo.AtomicTransition", err)
	}
	return n == 1, nil
}

// ApplyTrade добавляет PnL сделки; trade_count служит версией строки для оптимистичной записи
func (r *TradingSessionRepository) ApplyTrade(ctx context.Context, id string, pnlDelta decimal.Decimal) (*sessions.TradingSession, error) {
	update := r.db.Rebind(`
		UPDATE trading_sessions
		SET realized_pnl = ?, trade_count = ?, updated_at = ?
		WHERE id = ? AND status = ? AND trade_count = ?
	`)

	for attempt := 0; attempt < maxTradeRetries; attempt++ {
		row, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if row.Status != string(sessions.StatusActive) {
			return nil, sessions.ErrInvalidTransition
		}

		row.RealizedPnl = row.RealizedPnl.Add(pnlDelta)
		row.UpdatedAt = r.now().UnixMilli()
		res, err := r.db.ExecContext(ctx, update,
			row.RealizedPnl, row.TradeCount+1, row.UpdatedAt,
			id, string(sessions.StatusActive), row.TradeCount)
		if err != nil {
			return nil, sessions.Transient("TradingSessionRepo.ApplyTrade", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			row.TradeCount++
			return row.ToDomain(), nil
		}
	}
	return nil, sessions.Transient("TradingSessionRepo.ApplyTrade",
		fmt.Errorf("конкурентная запись сделок в сессию %s", id))
}

// FindActiveSessionsPastEndTime ID активных сессий с истекшим end_time
func (r *TradingSessionRepository) FindActiveSessionsPastEndTime(ctx context.Context, now time.Time) ([]string, error) {
	query := r.db.Rebind(`
		SELECT id FROM trading_sessions
		WHERE status = ? AND end_time < ?
		ORDER BY id
	`)
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, string(sessions.StatusActive), now.UnixMilli()); err != nil {
		return nil, sessions.Transient("TradingSessionRepo.FindActiveSessionsPastEndTime", err)
	}
	return ids, nil
}

// DeleteOlderThan удаляет терминальные сессии, завершившиеся раньше cutoff
func (r *TradingSessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := sqlx.In(`
		DELETE FROM trading_sessions
		WHERE status IN (?) AND COALESCE(actual_end_time, end_time) < ?
	`, terminalStatuses(), cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, sessions.Transient("TradingSessionRepo.DeleteOlderThan", err)
	}
	return res.RowsAffected()
}

// ListByUser сессии пользователя со start_time в [from, to)
func (r *TradingSessionRepository) ListByUser(ctx context.Context, userID int64, from, to time.Time) ([]*sessions.TradingSession, error) {
	var (
		where []string
		args  []interface{}
	)
	if userID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, userID)
	}
	if !from.IsZero() {
		where = append(where, "start_time >= ?")
		args = append(args, from.UnixMilli())
	}
	if !to.IsZero() {
		where = append(where, "start_time < ?")
		args = append(args, to.UnixMilli())
	}
	return r.list(ctx, "TradingSessionRepo.ListByUser", where, args)
}

// ListActiveByUser активные сессии пользователя
func (r *TradingSessionRepository) ListActiveByUser(ctx context.Context, userID int64) ([]*sessions.TradingSession, error) {
	where := []string{"status = ?"}
	args := []interface{}{string(sessions.StatusActive)}
	if userID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, userID)
	}
	return r.list(ctx, "TradingSessionRepo.ListActiveByUser", where, args)
}

// ListTerminal завершённые сессии пользователя
func (r *TradingSessionRepository) ListTerminal(ctx context.Context, userID int64) ([]*sessions.TradingSession, error) {
	where := []string{"status IN (?)"}
	args := []interface{}{terminalStatuses()}
	if userID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, userID)
	}
	return r.list(ctx, "TradingSessionRepo.ListTerminal", where, args)
}

func (r *TradingSessionRepository) get(ctx context.Context, id string) (*models.TradingSession, error) {
	query := r.db.Rebind(`SELECT ` + models.TradingSessionColumns + ` FROM trading_sessions WHERE id = ?`)
	var row models.TradingSession
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sessions.ErrNotFound
		}
		return nil, sessions.Transient("TradingSessionRepo.GetSession", err)
	}
	return &row, nil
}

func (r *TradingSessionRepository) list(ctx context.Context, op string, where []string, args []interface{}) ([]*sessions.TradingSession, error) {
	query := `SELECT ` + models.TradingSessionColumns + ` FROM trading_sessions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY start_time, id`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, err
	}

	var rows []models.TradingSession
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, sessions.Transient(op, err)
	}

	result := make([]*sessions.TradingSession, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].ToDomain())
	}
	return result, nil
}

func terminalStatuses() []string {
	out := make([]string, 0, len(sessions.TerminalStatuses))
	for _, s := range sessions.TerminalStatuses {
		out = append(out, string(s))
	}
	return out
}
