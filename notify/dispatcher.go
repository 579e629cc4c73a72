/*
Package notify delivers engine events outside the request path.

PURPOSE:
  generic.Notifier must never block the caller. Dispatcher implements it by
  queueing events on a buffered channel that a background goroutine drains
  into one or more Sinks. Delivery failures are logged and dropped; the
  engine never learns about them.

DESIGN:
  - Start launches the worker; Stop closes it and waits for the queue to
    drain (same shape as a ticker-driven scheduler, minus the ticker)
  - A full queue drops the event and logs it at Warn
  - Events sent after Stop are dropped
  - Each delivery gets its own timeout so a slow sink cannot stall the rest

USAGE:
  d := notify.NewDispatcher(logger, 256, notify.NewLogSink(logger))
  d.Start()
  defer d.Stop()

  svc := scheduling.NewService(store, policy, d)

SEE ALSO:
  - generic/notify.go: Event and Notifier
*/
package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/warp/workforce-engine/generic"
)

// DefaultBufferSize is used when NewDispatcher gets a non-positive size.
const DefaultBufferSize = 256

// Sink receives events from the dispatcher worker.
type Sink interface {
	Deliver(ctx context.Context, event generic.Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event generic.Event) error

func (f SinkFunc) Deliver(ctx context.Context, event generic.Event) error { return f(ctx, event) }

// Dispatcher is a fire-and-forget generic.Notifier.
type Dispatcher struct {
	sinks           []Sink
	logger          *zap.Logger
	DeliveryTimeout time.Duration

	queue   chan generic.Event
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	closed  atomic.Bool
	dropped atomic.Int64
}

// NewDispatcher creates a dispatcher. Call Start before events can flow.
func NewDispatcher(logger *zap.Logger, bufferSize int, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Dispatcher{
		sinks:           sinks,
		logger:          logger.Named("notify"),
		DeliveryTimeout: 5 * time.Second,
		queue:           make(chan generic.Event, bufferSize),
		stop:            make(chan struct{}),
	}
}

// Notify queues the event without blocking.
func (d *Dispatcher) Notify(_ context.Context, event generic.Event) {
	if d.closed.Load() {
		d.drop(event, "dispatcher stopped")
		return
	}
	select {
	case d.queue <- event:
	default:
		d.drop(event, "queue full")
	}
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() int64 { return d.dropped.Load() }

// Start launches the delivery worker. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running || d.closed.Load() {
		return
	}
	d.running = true
	d.wg.Add(1)
	go d.run()

	d.logger.Info("dispatcher started", zap.Int("buffer", cap(d.queue)), zap.Int("sinks", len(d.sinks)))
}

// Stop delivers what is already queued, then stops the worker.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed.Swap(true) {
		return
	}
	close(d.stop)
	if d.running {
		d.wg.Wait()
		d.running = false
	}
	d.logger.Info("dispatcher stopped", zap.Int64("dropped", d.dropped.Load()))
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(event generic.Event) {
	for _, sink := range d.sinks {
		if err := d.deliverOne(sink, event); err != nil {
			d.logger.Warn("event delivery failed",
				zap.String("type", string(event.Type)),
				zap.String("subject", event.SubjectID),
				zap.Error(err),
			)
		}
	}
}

func (d *Dispatcher) deliverOne(sink Sink, event generic.Event) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.DeliveryTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panicked: %v", r)
		}
	}()
	return sink.Deliver(ctx, event)
}

func (d *Dispatcher) drop(event generic.Event, reason string) {
	d.dropped.Add(1)
	d.logger.Warn("event dropped",
		zap.String("reason", reason),
		zap.String("type", string(event.Type)),
		zap.String("subject", event.SubjectID),
	)
}

// =============================================================================
// LOG SINK
// =============================================================================

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("events")}
}

func (s *LogSink) Deliver(_ context.Context, event generic.Event) error {
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("subject", event.SubjectID),
		zap.Time("occurred_at", event.OccurredAt),
	}
	for k, v := range event.Payload {
		fields = append(fields, zap.String(k, v))
	}
	s.logger.Info("event", fields...)
	return nil
}
