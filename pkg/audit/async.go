package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultBufferSize is the AsyncLogger queue length
const DefaultBufferSize = 1024

// recordTimeout bounds each write performed by the background worker
const recordTimeout = 2 * time.Second

// AsyncLogger queues events for a background worker. Record never blocks:
// when the queue is full the event is dropped and counted.
type AsyncLogger struct {
	next    Logger
	queue   chan queued
	logger  logrus.FieldLogger
	dropped atomic.Int64
	onDrop  func()

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type queued struct {
	ctx   context.Context
	event *SecurityEvent
}

// NewAsyncLogger starts a worker that forwards events to next
func NewAsyncLogger(next Logger, bufferSize int, logger logrus.FieldLogger) *AsyncLogger {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	a := &AsyncLogger{
		next:   next,
		queue:  make(chan queued, bufferSize),
		logger: logger,
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// OnDrop registers a callback invoked for every dropped event
func (a *AsyncLogger) OnDrop(fn func()) {
	a.onDrop = fn
}

// Record enqueues event. The request context's values are kept but its
// cancellation is not, so events survive the request that produced them.
func (a *AsyncLogger) Record(ctx context.Context, event *SecurityEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.drop(event)
		return nil
	}

	select {
	case a.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		a.drop(event)
	}
	return nil
}

// Dropped returns the number of events discarded so far
func (a *AsyncLogger) Dropped() int64 {
	return a.dropped.Load()
}

// Close drains the queue and closes the wrapped logger
func (a *AsyncLogger) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	return a.next.Close()
}

func (a *AsyncLogger) run() {
	defer a.wg.Done()
	for item := range a.queue {
		ctx, cancel := context.WithTimeout(item.ctx, recordTimeout)
		if err := a.next.Record(ctx, item.event); err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"event_type": item.event.EventType,
				"identity":   item.event.Identifier,
			}).Warn("failed to record security event")
		}
		cancel()
	}
}

func (a *AsyncLogger) drop(event *SecurityEvent) {
	a.dropped.Add(1)
	if a.onDrop != nil {
		a.onDrop()
	}
	a.logger.WithField("event_type", event.EventType).Debug("security event dropped")
}
