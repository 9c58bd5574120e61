// internal/infrastructure/persistence/in_memory_storage/session_store.go
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"trading-session-guard/internal/core/domain/sessions"

	"github.com/shopspring/decimal"
)

// InMemorySessionStore потокобезопасное хранилище сессий в памяти.
// Используется в тестах и в режиме без базы данных.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessions.TradingSession
	now      func() time.Time
}

// NewInMemorySessionStore создает пустое хранилище
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]*sessions.TradingSession),
		now:      time.Now,
	}
}

// WithClock подменяет часы (для тестов)
func (s *InMemorySessionStore) WithClock(now func() time.Time) *InMemorySessionStore {
	s.now = now
	return s
}

// Create сохраняет новую сессию
func (s *InMemorySessionStore) Create(ctx context.Context, session *sessions.TradingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return &sessions.ValidationError{Field: "id", Reason: "сессия с таким ID уже существует"}
	}
	if session.Status == sessions.StatusActive && s.hasActiveLocked(session.UserID, session.ID) {
		return sessions.ErrActiveSessionExists
	}
	s.sessions[session.ID] = session.Clone()
	return nil
}

// GetSession возвращает копию сессии
func (s *InMemorySessionStore) GetSession(ctx context.Context, id string) (*sessions.TradingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	return session.Clone(), nil
}

// AtomicTransition условная смена статуса под эксклюзивной блокировкой
func (s *InMemorySessionStore) AtomicTransition(ctx context.Context, id string, from, to sessions.Status, fields sessions.TransitionFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.Status != from {
		return false, nil
	}
	if to == sessions.StatusActive && s.hasActiveLocked(session.UserID, id) {
		return false, sessions.ErrActiveSessionExists
	}

	session.Status = to
	if fields.StartTime != nil {
		session.StartTime = *fields.StartTime
	}
	if fields.EndTime != nil {
		session.EndTime = *fields.EndTime
	}
	if fields.ActualEndTime != nil {
		t := *fields.ActualEndTime
		session.ActualEndTime = &t
	}
	if fields.TerminationReason != "" {
		session.TerminationReason = fields.TerminationReason
	}
	session.UpdatedAt = s.now()
	return true, nil
}

// ApplyTrade добавляет PnL сделки к активной сессии
func (s *InMemorySessionStore) ApplyTrade(ctx context.Context, id string, pnlDelta decimal.Decimal) (*sessions.TradingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, sessions.ErrNotFound
	}
	if session.Status != sessions.StatusActive {
		return nil, sessions.ErrInvalidTransition
	}
	session.RealizedPnl = session.RealizedPnl.Add(pnlDelta)
	session.TradeCount++
	session.UpdatedAt = s.now()
	return session.Clone(), nil
}

// FindActiveSessionsPastEndTime активные сессии с истекшим временем
func (s *InMemorySessionStore) FindActiveSessionsPastEndTime(ctx context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, session := range s.sessions {
		if session.Status == sessions.StatusActive && session.EndTime.Before(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteOlderThan удаляет терминальные сессии, завершившиеся до cutoff
func (s *InMemorySessionStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, session := range s.sessions {
		if !session.Status.IsTerminal() {
			continue
		}
		if finishedAt(session).Before(cutoff) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// ListByUser сессии пользователя с началом в [from, to)
func (s *InMemorySessionStore) ListByUser(ctx context.Context, userID int64, from, to time.Time) ([]*sessions.TradingSession, error) {
	return s.filter(func(session *sessions.TradingSession) bool {
		if userID != 0 && session.UserID != userID {
			return false
		}
		if !from.IsZero() && session.StartTime.Before(from) {
			return false
		}
		if !to.IsZero() && !session.StartTime.Before(to) {
			return false
		}
		return true
	}), nil
}

// ListActiveByUser активные сессии пользователя
func (s *InMemorySessionStore) ListActiveByUser(ctx context.Context, userID int64) ([]*sessions.TradingSession, error) {
	return s.filter(func(session *sessions.TradingSession) bool {
		return session.Status == sessions.StatusActive && (userID == 0 || session.UserID == userID)
	}), nil
}

// ListTerminal завершённые сессии пользователя
func (s *InMemorySessionStore) ListTerminal(ctx context.Context, userID int64) ([]*sessions.TradingSession, error) {
	return s.filter(func(session *sessions.TradingSession) bool {
		return session.Status.IsTerminal() && (userID == 0 || session.UserID == userID)
	}), nil
}

// Count количество сессий в хранилище
func (s *InMemorySessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *InMemorySessionStore) filter(match func(*sessions.TradingSession) bool) []*sessions.TradingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*sessions.TradingSession, 0)
	for _, session := range s.sessions {
		if match(session) {
			result = append(result, session.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}

func (s *InMemorySessionStore) hasActiveLocked(userID int64, exceptID string) bool {
	for id, session := range s.sessions {
		if id != exceptID && session.UserID == userID && session.Status == sessions.StatusActive {
			return true
		}
	}
	return false
}

func finishedAt(session *sessions.TradingSession) time.Time {
	if session.ActualEndTime != nil {
		return *session.ActualEndTime
	}
	return session.EndTime
}
