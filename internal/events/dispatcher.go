package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/log"
	"github.com/ga-techcraft/Online-Chat-Messenger/pkg/pubsub"
)

const (
	DefaultBufferSize     = 1024
	DefaultHandlerTimeout = 3 * time.Second
)

// Sink receives room lifecycle events.
type Sink interface {
	Name() string
	Handle(ctx context.Context, event *pubsub.Event) error
}

// Emitter queues events for delivery.
type Emitter interface {
	Emit(eventType, roomName string, payload interface{})
}

// Dispatcher fans events out to sinks on its own goroutine so the relay
// loops never wait on a broker. Events are dropped when the queue is full.
type Dispatcher struct {
	sinks          []Sink
	queue          chan *pubsub.Event
	instanceID     string
	handlerTimeout time.Duration

	dropped atomic.Uint64
	closed  atomic.Bool
	mu      sync.RWMutex
	done    chan struct{}
}

// NewDispatcher creates a Dispatcher. Call Run to start delivery.
func NewDispatcher(instanceID string, bufferSize int, sinks ...Sink) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Dispatcher{
		sinks:          sinks,
		queue:          make(chan *pubsub.Event, bufferSize),
		instanceID:     instanceID,
		handlerTimeout: DefaultHandlerTimeout,
		done:           make(chan struct{}),
	}
}

// Emit builds and queues an event. It never blocks.
func (d *Dispatcher) Emit(eventType, roomName string, payload interface{}) {
	if len(d.sinks) == 0 {
		return
	}

	l := log.L()
	evt, err := pubsub.NewEvent(eventType, roomName, payload)
	if err != nil {
		l.Error().Err(err).Str("event_type", eventType).Msg("failed to build event")
		return
	}
	evt.InstanceID = d.instanceID

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return
	}

	select {
	case d.queue <- evt:
	default:
		n := d.dropped.Add(1)
		l.Warn().Str("event_type", eventType).Str(log.FieldRoom, roomName).Uint64("dropped_total", n).Msg("event queue full, dropping event")
	}
}

// Dropped reports how many events were discarded on a full queue.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run delivers queued events until Close is called and the queue drains.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer close(d.done)

	l := log.L()
	l.Info().Int("sinks", len(d.sinks)).Msg("event dispatcher started")

	for evt := range d.queue {
		d.deliver(ctx, evt)
	}

	l.Info().Msg("event dispatcher stopped")
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, evt *pubsub.Event) {
	for _, sink := range d.sinks {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.handlerTimeout)
		if err := sink.Handle(hctx, evt); err != nil {
			l := log.L()
			l.Error().
				Err(err).
				Str("sink", sink.Name()).
				Str("event_type", evt.Type).
				Str(log.FieldRoom, evt.RoomName).
				Msg("failed to deliver event")
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be delivered,
// bounded by ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed.Swap(true) {
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
