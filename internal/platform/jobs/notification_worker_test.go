package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/boibabu/api/internal/services"
)

type recordingSink struct {
	mu    sync.Mutex
	sent  []services.Notification
	err   error
	block chan struct{}
}

func (s *recordingSink) Send(ctx context.Context, n services.Notification) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingLog struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLog) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLog) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

func TestNotificationWorkerDeliversAndDrains(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{}
	worker, err := NewNotificationWorker(NotificationWorkerConfig{
		Sink:        sink,
		Workers:     3,
		QueueSize:   16,
		IDGenerator: func() string { return "01HZX" },
	})
	if err != nil {
		t.Fatalf("NewNotificationWorker: %v", err)
	}

	for i := 0; i < 10; i++ {
		worker.Notify(context.Background(), services.Notification{RecipientRole: services.RecipientRoleAdmin, Title: "New order"})
	}
	if err := worker.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := sink.count(); got != 10 {
		t.Fatalf("expected 10 deliveries, got %d", got)
	}
	for _, n := range sink.sent {
		if n.ID != "ntf_01HZX" || n.CreatedAt.IsZero() {
			t.Fatalf("expected id and timestamp to be assigned, got %+v", n)
		}
	}
}

func TestNotificationWorkerDetachesCallerCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{}
	worker, err := NewNotificationWorker(NotificationWorkerConfig{Sink: sink, Workers: 1})
	if err != nil {
		t.Fatalf("NewNotificationWorker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Notify(ctx, services.Notification{ID: "ntf_1", RecipientRole: services.RecipientRoleAdmin, Title: "x"})
	cancel()

	if err := worker.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sink.count() != 1 {
		t.Fatalf("expected delivery after request cancellation")
	}
}

func TestNotificationWorkerDropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{block: make(chan struct{})}
	logs := &recordingLog{}
	worker, err := NewNotificationWorker(NotificationWorkerConfig{
		Sink:      sink,
		Workers:   1,
		QueueSize: 1,
		Logger:    logs.log,
	})
	if err != nil {
		t.Fatalf("NewNotificationWorker: %v", err)
	}

	// One in flight, one queued, the rest dropped.
	for i := 0; i < 5; i++ {
		worker.Notify(context.Background(), services.Notification{RecipientRole: services.RecipientRoleAdmin, Title: "x"})
		if i == 0 {
			time.Sleep(20 * time.Millisecond)
		}
	}
	if !logs.has("notification.dropped") {
		t.Fatalf("expected dropped notifications to be logged")
	}

	close(sink.block)
	if err := worker.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := sink.count(); got < 1 || got > 2 {
		t.Fatalf("expected at most two deliveries, got %d", got)
	}
}

func TestNotificationWorkerLogsFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &recordingSink{err: errors.New("firestore unavailable")}
	logs := &recordingLog{}
	worker, err := NewNotificationWorker(NotificationWorkerConfig{Sink: sink, Logger: logs.log})
	if err != nil {
		t.Fatalf("NewNotificationWorker: %v", err)
	}
	worker.Notify(context.Background(), services.Notification{RecipientRole: services.RecipientRoleAdmin, Title: "x"})
	if err := worker.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !logs.has("notification.delivery.failed") {
		t.Fatalf("expected delivery failure to be logged")
	}

	worker.Notify(context.Background(), services.Notification{RecipientRole: services.RecipientRoleAdmin, Title: "late"})
	if sink.count() != 1 {
		t.Fatalf("expected notify after close to be ignored")
	}
}

func TestNewNotificationWorkerRequiresSink(t *testing.T) {
	if _, err := NewNotificationWorker(NotificationWorkerConfig{}); err == nil {
		t.Fatalf("expected error without sink")
	}
}
