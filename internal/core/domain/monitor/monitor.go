// internal/core/domain/monitor/monitor.go
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"trading-session-guard/internal/core/domain/jobs"
	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/core/jobqueue"
	"trading-session-guard/internal/notifier"
	"trading-session-guard/pkg/logger"

	"github.com/shopspring/decimal"
)

// Scheduler операции очереди, нужные монитору
type Scheduler interface {
	Enqueue(ctx context.Context, t jobs.Type, sessionID string, payload interface{}, opts jobs.Options) (string, bool, error)
	Cancel(ctx context.Context, t jobs.Type, sessionID string, suffix ...string) (bool, error)
	CancelSession(ctx context.Context, sessionID string, types ...jobs.Type) (int64, error)
	Register(t jobs.Type, h jobqueue.Handler)
}

// Terminator завершение сессии
type Terminator interface {
	Terminate(ctx context.Context, sessionID string, reason sessions.TerminationReason) (bool, error)
}

// Notifier отправка уведомлений
type Notifier interface {
	Emit(ctx context.Context, n notifier.Notification) error
}

// AnalyticsRefresher сброс кэша аналитики пользователя
type AnalyticsRefresher interface {
	RefreshAnalyticsCache(ctx context.Context, userID int64) error
}

// Recorder метрики монитора
type Recorder interface {
	LossWarningEmitted()
}

type nopRecorder struct{}

func (nopRecorder) LossWarningEmitted() {}

// Config параметры контроля
type Config struct {
	LossCheckInterval time.Duration
	WarningThreshold  float64 // нижняя граница полосы предупреждений, %
	CriticalThreshold float64 // верхняя граница (не включая), %
}

// DefaultConfig значения по умолчанию
func DefaultConfig() Config {
	return Config{
		LossCheckInterval: 30 * time.Second,
		WarningThreshold:  80,
		CriticalThreshold: 95,
	}
}

// monitoringJobs задачи, снимаемые при остановке контроля.
// performance не входит: итоги считаются уже после завершения.
var monitoringJobs = []jobs.Type{jobs.TypeExpiration, jobs.TypeLossCheck, jobs.TypeWarning}

var breachLevel = decimal.NewFromInt(100)

// Monitor обработчики задач контроля торговых сессий
type Monitor struct {
	store      sessions.Store
	scheduler  Scheduler
	terminator Terminator
	notifier   Notifier
	analytics  AnalyticsRefresher
	recorder   Recorder
	config     Config
	now        func() time.Time

	warnLow  decimal.Decimal
	warnHigh decimal.Decimal
}

// Option опция монитора
type Option func(*Monitor)

// WithClock подменяет часы
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithRecorder подключает метрики
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithAnalytics подключает сброс кэша аналитики
func WithAnalytics(a AnalyticsRefresher) Option {
	return func(m *Monitor) { m.analytics = a }
}

// New создает монитор
func New(store sessions.Store, scheduler Scheduler, terminator Terminator, n Notifier, config Config, opts ...Option) *Monitor {
	if config.LossCheckInterval <= 0 {
		config.LossCheckInterval = DefaultConfig().LossCheckInterval
	}
	m := &Monitor{
		store:      store,
		scheduler:  scheduler,
		terminator: terminator,
		notifier:   n,
		recorder:   nopRecorder{},
		config:     config,
		now:        time.Now,
		warnLow:    decimal.NewFromFloat(config.WarningThreshold),
		warnHigh:   decimal.NewFromFloat(config.CriticalThreshold),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetTerminator подключает координатор завершения
func (m *Monitor) SetTerminator(t Terminator) {
	m.terminator = t
}

// Register регистрирует обработчики в очереди
func (m *Monitor) Register() {
	m.scheduler.Register(jobs.TypeExpiration, m.OnExpire)
	m.scheduler.Register(jobs.TypeLossCheck, m.OnLossCheck)
	m.scheduler.Register(jobs.TypeWarning, m.OnWarning)
	m.scheduler.Register(jobs.TypePerformance, m.OnPerformance)
}

// StartMonitoring ставит задачу истечения на EndTime и периодическую проверку убытка
func (m *Monitor) StartMonitoring(ctx context.Context, session *sessions.TradingSession) error {
	payload := jobs.SessionPayload{SessionID: session.ID}

	if _, _, err := m.scheduler.Enqueue(ctx, jobs.TypeExpiration, session.ID, payload, jobs.Options{RunAt: session.EndTime}); err != nil {
		return fmt.Errorf("Monitor.StartMonitoring %s: %w", session.ID, err)
	}

	opts := jobs.Options{Delay: m.config.LossCheckInterval, Interval: m.config.LossCheckInterval}
	if _, _, err := m.scheduler.Enqueue(ctx, jobs.TypeLossCheck, session.ID, payload, opts); err != nil {
		return fmt.Errorf("Monitor.StartMonitoring %s: %w", session.ID, err)
	}

	logger.Info("👁️ [Monitor] Контроль сессии %s: до %s, проверка убытка каждые %v",
		session.ID, session.EndTime.Format(time.RFC3339), m.config.LossCheckInterval)
	return nil
}

// StopMonitoring снимает задачи контроля; повторный вызов ничего не делает
func (m *Monitor) StopMonitoring(ctx context.Context, sessionID string) error {
	n, err := m.scheduler.CancelSession(ctx, sessionID, monitoringJobs...)
	if err != nil {
		return fmt.Errorf("Monitor.StopMonitoring %s: %w", sessionID, err)
	}
	if n > 0 {
		logger.Debug("🔕 [Monitor] Сессия %s: снято задач контроля: %d", sessionID, n)
	}
	return nil
}

// OnExpire завершает сессию по истечении времени
func (m *Monitor) OnExpire(ctx context.Context, job *jobs.Job) error {
	sessionID, err := jobs.DecodeSessionID(job)
	if err != nil {
		return err
	}

	session, err := m.load(ctx, sessionID)
	if err != nil || session == nil {
		return err
	}

	if session.IsActive() {
		if _, err := m.terminator.Terminate(ctx, sessionID, sessions.ReasonTimeExpired); err != nil {
			return err
		}
	} else {
		logger.Debug("🔕 [Monitor] Сессия %s уже %s, истечение пропущено", sessionID, session.Status)
	}

	if _, err := m.scheduler.Cancel(ctx, jobs.TypeLossCheck, sessionID); err != nil {
		logger.Warn("⚠️ [Monitor] Не удалось снять проверку убытка %s: %v", sessionID, err)
	}
	return nil
}

// OnLossCheck сверяет реализованный убыток с лимитом
func (m *Monitor) OnLossCheck(ctx context.Context, job *jobs.Job) error {
	sessionID, err := jobs.DecodeSessionID(job)
	if err != nil {
		return err
	}

	session, err := m.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil || !session.IsActive() {
		if _, err := m.scheduler.Cancel(ctx, jobs.TypeLossCheck, sessionID); err != nil {
			return err
		}
		logger.Debug("🔕 [Monitor] Сессия %s не активна, проверка убытка снята", sessionID)
		return nil
	}

	// истечение могло быть потеряно
	if !session.EndTime.IsZero() && !m.now().Before(session.EndTime) {
		_, err := m.terminator.Terminate(ctx, sessionID, sessions.ReasonTimeExpired)
		return err
	}

	pct, ok := session.LossPercentage()
	if !ok {
		return nil
	}

	switch {
	case pct.GreaterThanOrEqual(breachLevel):
		logger.Warn("🚨 [Monitor] Сессия %s: лимит убытка исчерпан (%s%%)", sessionID, pct.StringFixed(2))
		_, err := m.terminator.Terminate(ctx, sessionID, sessions.ReasonLossLimitReached)
		return err
	case pct.GreaterThanOrEqual(m.warnLow) && pct.LessThan(m.warnHigh):
		return m.enqueueWarning(ctx, session, pct)
	}
	return nil
}

func (m *Monitor) enqueueWarning(ctx context.Context, session *sessions.TradingSession, pct decimal.Decimal) error {
	bucket := int(pct.Floor().IntPart())
	limit, _ := session.EffectiveLossLimit()

	payload := jobs.WarningPayload{
		SessionID:      session.ID,
		UserID:         session.UserID,
		LossPercentage: pct.StringFixed(2),
		Bucket:         bucket,
		CurrentLoss:    session.CurrentLoss().String(),
		LossLimit:      limit.String(),
	}
	_, inserted, err := m.scheduler.Enqueue(ctx, jobs.TypeWarning, session.ID, payload, jobs.Options{KeySuffix: strconv.Itoa(bucket)})
	if err != nil {
		return err
	}
	if inserted {
		logger.Info("⚠️ [Monitor] Сессия %s: использовано %s%% лимита убытка", session.ID, pct.StringFixed(2))
	}
	return nil
}

// OnWarning отправляет предупреждение, пока сессия активна
func (m *Monitor) OnWarning(ctx context.Context, job *jobs.Job) error {
	var p jobs.WarningPayload
	if err := jobs.Decode(job, &p); err != nil {
		return err
	}

	session, err := m.load(ctx, p.SessionID)
	if err != nil || session == nil {
		return err
	}
	if !session.IsActive() {
		return nil
	}

	n := notifier.Notification{
		SessionID: p.SessionID,
		UserID:    session.UserID,
		Type:      notifier.TypeLossLimitWarning,
		Payload: map[string]interface{}{
			"loss_percentage": p.LossPercentage,
			"bucket":          p.Bucket,
			"current_loss":    p.CurrentLoss,
			"loss_limit":      p.LossLimit,
		},
		CreatedAt: m.now(),
	}
	if err := m.notifier.Emit(ctx, n); err != nil {
		return sessions.Transient("notifier", err)
	}
	m.recorder.LossWarningEmitted()
	return nil
}

// OnPerformance подводит итоги завершённой сессии и сбрасывает кэш аналитики пользователя
func (m *Monitor) OnPerformance(ctx context.Context, job *jobs.Job) error {
	var p jobs.PerformancePayload
	if err := jobs.Decode(job, &p); err != nil {
		return err
	}

	session, err := m.load(ctx, p.SessionID)
	if err != nil || session == nil {
		return err
	}

	if m.analytics != nil {
		if err := m.analytics.RefreshAnalyticsCache(ctx, session.UserID); err != nil {
			return err
		}
	}

	summary := Summarize(session, m.now())
	logger.Info("📊 [Monitor] Итоги сессии %s: статус=%s, PnL=%s, сделок=%d, длительность=%v",
		session.ID, session.Status, summary.RealizedPnl, summary.TradeCount, summary.Duration)

	if m.notifier != nil {
		n := notifier.Notification{
			SessionID: session.ID,
			UserID:    session.UserID,
			Type:      notifier.TypePerformanceSummary,
			Payload:   summary.Payload(),
			CreatedAt: m.now(),
		}
		if err := m.notifier.Emit(ctx, n); err != nil {
			logger.Warn("⚠️ [Monitor] Итоги сессии %s не отправлены: %v", session.ID, err)
		}
	}
	return nil
}

// load возвращает nil без ошибки, если сессия удалена
func (m *Monitor) load(ctx context.Context, sessionID string) (*sessions.TradingSession, error) {
	session, err := m.store.GetSession(ctx, sessionID)
	if errors.Is(err, sessions.ErrNotFound) {
		logger.Debug("🔕 [Monitor] Сессия %s не найдена", sessionID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}
