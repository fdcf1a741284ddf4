package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/WessleyAI/bugbot/pkg/metrics"
	"github.com/WessleyAI/bugbot/pkg/resilience"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 3 * time.Second

// Sink delivers one event synchronously.
type Sink interface {
	Deliver(ctx context.Context, ev Event) error
}

type route struct {
	name    string
	sink    Sink
	breaker *resilience.Breaker
}

// Dispatcher fans events out to its sinks in the background. Every sink gets
// its own goroutine, timeout and circuit breaker; failures are logged and
// counted, never returned.
type Dispatcher struct {
	routes  []route
	timeout time.Duration
	logger  *slog.Logger
	met     *metrics.Registry

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. A nil registry disables metrics export
// but counters are still kept internally.
func NewDispatcher(timeout time.Duration, logger *slog.Logger, reg *metrics.Registry) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = metrics.New()
	}
	return &Dispatcher{timeout: timeout, logger: logger, met: reg}
}

// Add registers a sink. Not safe to call concurrently with Emit.
func (d *Dispatcher) Add(name string, s Sink, opts resilience.BreakerOpts) {
	d.routes = append(d.routes, route{name: name, sink: s, breaker: resilience.NewBreaker(opts)})
}

// Emit schedules ev for delivery to every sink and returns immediately.
// Deliveries keep the values of ctx, such as the active span, but not its
// cancellation. Events emitted after Close are dropped.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, r := range d.routes {
		d.wg.Add(1)
		go d.deliver(ctx, r, ev)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, r route, ev Event) {
	defer d.wg.Done()
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := r.breaker.Call(ctx, func(ctx context.Context) error {
		return r.sink.Deliver(ctx, ev)
	})
	switch {
	case err == nil:
		d.counter(r.name, ev.Type(), "ok").Inc()
		d.logger.Debug("event delivered", "sink", r.name, "event_type", ev.Type())
	case errors.Is(err, resilience.ErrCircuitOpen):
		d.counter(r.name, ev.Type(), "dropped").Inc()
		d.logger.Debug("event dropped, sink circuit open", "sink", r.name, "event_type", ev.Type())
	default:
		d.counter(r.name, ev.Type(), "failed").Inc()
		d.logger.Warn("event delivery failed", "sink", r.name, "event_type", ev.Type(), "err", err)
	}
}

func (d *Dispatcher) counter(sink, typ, result string) *metrics.Counter {
	return d.met.Counter(
		metrics.WithLabels("bugbot_events_total", "sink", sink, "type", typ, "result", result),
		"Events handed to out-of-band sinks",
	)
}

// Close stops accepting events and waits for in-flight deliveries, each of
// which is bounded by the dispatcher timeout.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
