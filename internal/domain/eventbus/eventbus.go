// Package eventbus fans gateway signals (toasts, unauthorized, session
// lifecycle) out to subscribers.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"ambrosia-pos-gateway/internal/platform/logging"
)

// Publisher is the narrow view most components need.
type Publisher interface {
	Publish(topic string, payload any)
}

// Bus wraps EventBus with a bounded worker pool for async publishing.
type Bus struct {
	bus      evbus.Bus
	logger   *logging.Logger
	workers  int
	workChan chan asyncEvent
	stopChan chan struct{}
	wg       sync.WaitGroup
	pending  sync.WaitGroup
	started  atomic.Bool
	stopOnce sync.Once
	dropped  atomic.Int64
}

type asyncEvent struct {
	topic   string
	payload any
}

// New creates a bus with the given worker count (default 4) and queue size
// (default 256). Call Start before PublishAsync.
func New(workers, queue int, logger *logging.Logger) *Bus {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 256
	}
	return &Bus{
		bus:      evbus.New(),
		logger:   logger,
		workers:  workers,
		workChan: make(chan asyncEvent, queue),
		stopChan: make(chan struct{}),
	}
}

func (b *Bus) Start() {
	if !b.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
}

// Stop drains nothing: queued events still waiting are discarded.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
		b.wg.Wait()
	})
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopChan:
			return
		case ev := <-b.workChan:
			b.deliver(ev)
		}
	}
}

func (b *Bus) deliver(ev asyncEvent) {
	defer b.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorTag("EVENTS", "subscriber panic on %s: %v", ev.topic, r)
		}
	}()
	b.bus.Publish(ev.topic, ev.payload)
}

// Publish delivers payload to every subscriber of topic before returning.
func (b *Bus) Publish(topic string, payload any) {
	b.bus.Publish(topic, payload)
}

// PublishAsync queues payload for the worker pool. When the queue is full the
// event is dropped and counted.
func (b *Bus) PublishAsync(topic string, payload any) {
	b.pending.Add(1)
	select {
	case b.workChan <- asyncEvent{topic: topic, payload: payload}:
	default:
		b.pending.Done()
		b.dropped.Add(1)
		b.logger.WarnTag("EVENTS", "queue full, dropped %s", topic)
	}
}

// Subscribe registers fn, which must take a single argument of the payload type.
func (b *Bus) Subscribe(topic string, fn any) error {
	return b.bus.Subscribe(topic, fn)
}

func (b *Bus) Unsubscribe(topic string, fn any) error {
	return b.bus.Unsubscribe(topic, fn)
}

func (b *Bus) HasCallback(topic string) bool {
	return b.bus.HasCallback(topic)
}

// WaitAsync blocks until every queued event has been delivered.
func (b *Bus) WaitAsync() {
	b.pending.Wait()
}

// Dropped counts events discarded by PublishAsync.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Stats reports the async queue for the health endpoint.
func (b *Bus) Stats(context.Context) (map[string]any, error) {
	return map[string]any{
		"queued":  len(b.workChan),
		"dropped": b.Dropped(),
		"workers": b.workers,
	}, nil
}

// Async returns a Publisher that queues every event on the worker pool, so
// slow subscribers such as the audit recorder never run on the caller's path.
func (b *Bus) Async() Publisher {
	return asyncPublisher{bus: b}
}

type asyncPublisher struct {
	bus *Bus
}

func (p asyncPublisher) Publish(topic string, payload any) {
	p.bus.PublishAsync(topic, payload)
}

// Drain waits up to timeout for queued events to be delivered, then stops the
// workers. It reports whether the queue emptied in time.
func (b *Bus) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.WaitAsync()
		close(done)
	}()

	drained := true
	select {
	case <-done:
	case <-time.After(timeout):
		drained = false
		b.logger.WarnTag("EVENTS", "drain timed out after %s", timeout)
	}
	b.Stop()
	return drained
}
