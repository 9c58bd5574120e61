package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	events "trading-session-guard/internal/infrastructure/transport/event_bus"
)

type recordingSubscriber struct {
	mu       sync.Mutex
	received []Notification
}

func (r *recordingSubscriber) HandleEvent(event events.Event) error {
	n, ok := FromEvent(event)
	if ok {
		r.mu.Lock()
		r.received = append(r.received, n)
		r.mu.Unlock()
	}
	return nil
}

func (r *recordingSubscriber) GetName() string { return "recorder" }

func (r *recordingSubscriber) GetSubscribedEvents() []events.EventType { return subscribedEvents() }

func (r *recordingSubscriber) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.received...)
}

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	bus := events.NewEventBus(events.EventBusConfig{BufferSize: 10, WorkerCount: 1})
	bus.AddMiddleware(&events.ValidationMiddleware{})

	rec := &recordingSubscriber{}
	console := NewConsoleNotifier(true)
	bus.SubscribeAll(rec)
	bus.SubscribeAll(console)

	d := NewDispatcher(bus, true)
	err := d.Emit(context.Background(), Notification{
		SessionID: "s-1",
		UserID:    7,
		Type:      TypeSessionTerminated,
		Payload:   map[string]interface{}{"reason": "time_expired"},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}

	got := rec.all()
	if len(got) != 1 || got[0].SessionID != "s-1" || got[0].Type != TypeSessionTerminated {
		t.Fatalf("received %+v", got)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt should be stamped")
	}
	if console.Sent() != 1 {
		t.Fatalf("console sent = %d, want 1", console.Sent())
	}
}

func TestDispatcherAsyncRequiresRunningBus(t *testing.T) {
	bus := events.NewEventBus(events.EventBusConfig{BufferSize: 10, WorkerCount: 2})
	rec := &recordingSubscriber{}
	bus.SubscribeAll(rec)
	d := NewDispatcher(bus, false)

	if err := d.Emit(context.Background(), Notification{SessionID: "s-1", Type: TypeLossLimitWarning}); err == nil {
		t.Fatal("expected error when bus is stopped")
	}

	bus.Start()
	if err := d.Emit(context.Background(), Notification{SessionID: "s-2", Type: TypeLossLimitWarning}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	bus.Stop()

	deadline := time.Now().Add(time.Second)
	for len(rec.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := rec.all()
	if len(got) != 1 || got[0].SessionID != "s-2" {
		t.Fatalf("received %+v", got)
	}

	stats := d.GetStats()
	if stats["sent"].(int64) != 1 || stats["failed"].(int64) != 1 {
		t.Fatalf("stats = %v", stats)
	}
}

func TestEmitRejectsEmptyType(t *testing.T) {
	d := NewDispatcher(events.NewEventBus(), true)
	if err := d.Emit(context.Background(), Notification{SessionID: "s-1"}); err == nil {
		t.Fatal("expected error for empty type")
	}
}
