package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/boibabu/api/internal/services"
)

const (
	defaultNotificationWorkers   = 2
	defaultNotificationQueueSize = 256
	defaultNotificationTimeout   = 10 * time.Second
)

// NotificationSink performs the actual delivery of one notification.
type NotificationSink interface {
	Send(ctx context.Context, notification services.Notification) error
}

// NotificationSinkFunc adapts a function to NotificationSink.
type NotificationSinkFunc func(ctx context.Context, notification services.Notification) error

// Send calls f.
func (f NotificationSinkFunc) Send(ctx context.Context, notification services.Notification) error {
	return f(ctx, notification)
}

// NotificationWorkerConfig configures a NotificationWorker.
type NotificationWorkerConfig struct {
	Sink        NotificationSink
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type queuedNotification struct {
	ctx          context.Context
	notification services.Notification
}

// NotificationWorker is a bounded in-process queue drained by a fixed set of goroutines.
// Notify never blocks: when the queue is full the notification is dropped and logged.
type NotificationWorker struct {
	sink    NotificationSink
	queue   chan queuedNotification
	timeout time.Duration
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ services.NotificationDispatcher = (*NotificationWorker)(nil)

// NewNotificationWorker starts the worker goroutines. Close must be called to stop them.
func NewNotificationWorker(cfg NotificationWorkerConfig) (*NotificationWorker, error) {
	if cfg.Sink == nil {
		return nil, errors.New("notification worker: sink is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultNotificationWorkers
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultNotificationQueueSize
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := cfg.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	w := &NotificationWorker{
		sink:    cfg.Sink,
		queue:   make(chan queuedNotification, size),
		timeout: timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}
	w.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go w.run()
	}
	return w, nil
}

// Notify enqueues the notification. The ID is fixed here so that redelivery downstream stays
// idempotent.
func (w *NotificationWorker) Notify(ctx context.Context, notification services.Notification) {
	if notification.ID == "" {
		notification.ID = "ntf_" + w.newID()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = w.clock()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger(ctx, "notification.dropped", map[string]any{"notification": notification.ID, "reason": "closed"})
		return
	}
	select {
	case w.queue <- queuedNotification{ctx: context.WithoutCancel(ctx), notification: notification}:
	default:
		w.logger(ctx, "notification.dropped", map[string]any{
			"notification": notification.ID,
			"recipient":    notification.RecipientRole,
			"reason":       "queue full",
		})
	}
}

// Close stops accepting notifications and waits for queued ones to drain or ctx to expire.
func (w *NotificationWorker) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *NotificationWorker) run() {
	defer w.wg.Done()
	for item := range w.queue {
		w.deliver(item)
	}
}

func (w *NotificationWorker) deliver(item queuedNotification) {
	ctx, cancel := context.WithTimeout(item.ctx, w.timeout)
	defer cancel()

	if err := w.sink.Send(ctx, item.notification); err != nil {
		w.logger(ctx, "notification.delivery.failed", map[string]any{
			"notification": item.notification.ID,
			"recipient":    item.notification.RecipientID,
			"role":         item.notification.RecipientRole,
			"error":        err.Error(),
		})
		return
	}
	w.logger(ctx, "notification.delivered", map[string]any{
		"notification": item.notification.ID,
		"role":         item.notification.RecipientRole,
	})
}
