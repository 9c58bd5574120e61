// internal/infrastructure/transport/event_bus/event_bus.go
package events

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"trading-session-guard/pkg/logger"

	"github.com/google/uuid"
)

// EventBus асинхронная шина событий с буфером и пулом обработчиков
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	middlewares []Middleware
	eventBuffer chan Event
	metrics     *Metrics
	config      EventBusConfig
	running     bool
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

// EventBusConfig конфигурация EventBus
type EventBusConfig struct {
	BufferSize      int           `json:"buffer_size"`
	WorkerCount     int           `json:"worker_count"`
	MetricsInterval time.Duration `json:"metrics_interval"`
	EnableLogging   bool          `json:"enable_logging"`
}

// DefaultConfig конфигурация по умолчанию
var DefaultConfig = EventBusConfig{
	BufferSize:    1000,
	WorkerCount:   4,
	EnableLogging: true,
}

// NewEventBus создает новую шину событий
func NewEventBus(config ...EventBusConfig) *EventBus {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultConfig.WorkerCount
	}

	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		eventBuffer: make(chan Event, cfg.BufferSize),
		metrics:     &Metrics{SubscribersCount: make(map[EventType]int)},
		config:      cfg,
		stopChan:    make(chan struct{}),
	}
}

// Start запускает обработчиков
func (b *EventBus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	b.running = true

	for i := 0; i < b.config.WorkerCount; i++ {
		b.wg.Add(1)
		go b.eventWorker(i)
	}
	if b.config.MetricsInterval > 0 {
		b.wg.Add(1)
		go b.metricsLoop()
	}

	if b.config.EnableLogging {
		logger.Info("🚀 [EventBus] Запущен с %d обработчиками", b.config.WorkerCount)
	}
}

// Stop останавливает шину, дообработав события из буфера
func (b *EventBus) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.mu.Unlock()

	close(b.stopChan)
	b.wg.Wait()

	// события, оставшиеся в буфере, обрабатываем синхронно
	for {
		select {
		case event := <-b.eventBuffer:
			b.processEvent(event)
		default:
			if b.config.EnableLogging {
				logger.Info("🛑 [EventBus] Остановлен")
			}
			return
		}
	}
}

// Subscribe подписывает обработчик на тип события
func (b *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := false
	for _, et := range subscriber.GetSubscribedEvents() {
		if et == eventType {
			found = true
			break
		}
	}
	if !found {
		logger.Warn("⚠️ [EventBus] Подписчик %s не подписан на событие %s", subscriber.GetName(), eventType)
		return
	}

	b.subscribers[eventType] = append(b.subscribers[eventType], subscriber)

	b.metrics.mu.Lock()
	b.metrics.SubscribersCount[eventType] = len(b.subscribers[eventType])
	b.metrics.mu.Unlock()

	if b.config.EnableLogging {
		logger.Debug("✅ [EventBus] %s подписался на %s", subscriber.GetName(), eventType)
	}
}

// SubscribeAll подписывает на все события из GetSubscribedEvents
func (b *EventBus) SubscribeAll(subscriber Subscriber) {
	for _, et := range subscriber.GetSubscribedEvents() {
		b.Subscribe(et, subscriber)
	}
}

// Unsubscribe отписывает обработчик от типа события
func (b *EventBus) Unsubscribe(eventType EventType, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subscribers := b.subscribers[eventType]
	for i, sub := range subscribers {
		if sub == subscriber {
			b.subscribers[eventType] = append(subscribers[:i:i], subscribers[i+1:]...)

			b.metrics.mu.Lock()
			b.metrics.SubscribersCount[eventType] = len(b.subscribers[eventType])
			b.metrics.mu.Unlock()
			return
		}
	}
}

// Publish ставит событие в буфер. При переполнении событие отбрасывается с ошибкой.
func (b *EventBus) Publish(event Event) error {
	b.mu.RLock()
	running := b.running
	b.mu.RUnlock()
	if !running {
		return fmt.Errorf("event bus is not running")
	}

	event = b.stamp(event)

	select {
	case b.eventBuffer <- event:
		b.metrics.mu.Lock()
		b.metrics.EventsPublished++
		b.metrics.mu.Unlock()
		logger.Debug("📤 [EventBus] Опубликовано событие %s от %s", event.Type, event.Source)
		return nil
	default:
		b.metrics.mu.Lock()
		b.metrics.EventsDropped++
		b.metrics.mu.Unlock()
		logger.Warn("⚠️ [EventBus] Буфер событий полон, событие отброшено: %s", event.Type)
		return fmt.Errorf("event buffer is full")
	}
}

// PublishSync обрабатывает событие в текущей горутине
func (b *EventBus) PublishSync(event Event) error {
	event = b.stamp(event)
	b.metrics.mu.Lock()
	b.metrics.EventsPublished++
	b.metrics.mu.Unlock()
	return b.processEvent(event)
}

// AddMiddleware добавляет middleware
func (b *EventBus) AddMiddleware(middleware Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, middleware)
}

func (b *EventBus) stamp(event Event) Event {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return event
}

func (b *EventBus) eventWorker(id int) {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.eventBuffer:
			b.processEvent(event)
		case <-b.stopChan:
			logger.Debug("🔍 [EventWorker %d] Остановлен", id)
			return
		}
	}
}

func (b *EventBus) processEvent(event Event) (err error) {
	startTime := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("⚠️ [EventBus] Паника при обработке %s: %v\n%s", event.Type, r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}

		b.metrics.mu.Lock()
		b.metrics.ProcessingTime += time.Since(startTime)
		b.metrics.EventsProcessed++
		if err != nil {
			b.metrics.EventsFailed++
		}
		b.metrics.mu.Unlock()
	}()

	b.mu.RLock()
	subscribers := append([]Subscriber(nil), b.subscribers[event.Type]...)
	middlewares := append([]Middleware(nil), b.middlewares...)
	b.mu.RUnlock()

	if len(subscribers) == 0 {
		if b.config.EnableLogging {
			logger.Debug("⚠️ [EventBus] Нет подписчиков для события: %s", event.Type)
		}
		return nil
	}

	chain := b.createHandlerChain(subscribers)
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := chain
		chain = func(event Event) error {
			return mw.Process(event, next)
		}
	}
	return chain(event)
}

// createHandlerChain вызывает всех подписчиков; ошибка одного не мешает остальным
func (b *EventBus) createHandlerChain(subscribers []Subscriber) HandlerFunc {
	return func(event Event) error {
		var lastError error
		for _, subscriber := range subscribers {
			if err := subscriber.HandleEvent(event); err != nil {
				lastError = err
				logger.Warn("❌ [EventBus] Ошибка обработки события %s подписчиком %s: %v",
					event.Type, subscriber.GetName(), err)
			}
		}
		return lastError
	}
}

// GetMetrics возвращает копию метрик
func (b *EventBus) GetMetrics() Snapshot {
	b.metrics.mu.RLock()
	defer b.metrics.mu.RUnlock()

	counts := make(map[EventType]int, len(b.metrics.SubscribersCount))
	for k, v := range b.metrics.SubscribersCount {
		counts[k] = v
	}
	return Snapshot{
		EventsPublished:  b.metrics.EventsPublished,
		EventsProcessed:  b.metrics.EventsProcessed,
		EventsFailed:     b.metrics.EventsFailed,
		EventsDropped:    b.metrics.EventsDropped,
		SubscribersCount: counts,
		ProcessingTime:   b.metrics.ProcessingTime,
	}
}

// GetSubscriberCount количество подписчиков типа события
func (b *EventBus) GetSubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

// GetEventTypes типы событий с подписчиками
func (b *EventBus) GetEventTypes() []EventType {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]EventType, 0, len(b.subscribers))
	for eventType := range b.subscribers {
		result = append(result, eventType)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

func (b *EventBus) metricsLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.logMetrics()
		case <-b.stopChan:
			return
		}
	}
}

func (b *EventBus) logMetrics() {
	m := b.GetMetrics()

	logger.Info("📊 [EventBus] Опубликовано: %d, обработано: %d, ошибок: %d, отброшено: %d",
		m.EventsPublished, m.EventsProcessed, m.EventsFailed, m.EventsDropped)
	if m.EventsProcessed > 0 {
		logger.Info("   Среднее время обработки: %v", m.ProcessingTime/time.Duration(m.EventsProcessed))
	}
}

// IsRunning true если шина запущена
func (b *EventBus) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Name имя сервиса
func (b *EventBus) Name() string {
	return "EventBus"
}

// HealthCheck шина запущена и буфер не переполнен
func (b *EventBus) HealthCheck() bool {
	return b.IsRunning() && len(b.eventBuffer) < cap(b.eventBuffer)
}
