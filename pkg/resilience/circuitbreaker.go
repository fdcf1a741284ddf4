// Package resilience provides the circuit breaker that keeps a failing
// downstream (such as an event webhook) from being hammered on every call.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // tripping, reject calls
	StateHalfOpen              // allowing a probe call
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures the circuit breaker.
type BreakerOpts struct {
	// FailThreshold is how many consecutive failures trip the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before entering half-open.
	Timeout time.Duration
	// HalfOpenMax is the number of probe calls allowed in half-open state.
	HalfOpenMax int
	// OnStateChange, if set, is called after every transition, outside the lock.
	OnStateChange func(from, to State)
}

// DefaultBreakerOpts provides sensible defaults.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

// Breaker implements a circuit breaker with closed/open/half-open states.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	pending       []transition
	now           func() time.Time // for testing
}

type transition struct{ from, to State }

// NewBreaker creates a circuit breaker with the given options.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	st := b.currentState()
	fire := b.drain()
	b.mu.Unlock()
	fire()
	return st
}

// setState records a transition. Must hold mu.
func (b *Breaker) setState(to State) {
	if b.state == to {
		return
	}
	if b.opts.OnStateChange != nil {
		b.pending = append(b.pending, transition{from: b.state, to: to})
	}
	b.state = to
}

// drain takes pending transitions and returns a func that reports them.
// Must hold mu; call the returned func after unlocking.
func (b *Breaker) drain() func() {
	if len(b.pending) == 0 {
		return func() {}
	}
	ts := b.pending
	b.pending = nil
	cb := b.opts.OnStateChange
	return func() {
		for _, t := range ts {
			cb(t.from, t.to)
		}
	}
}

// currentState returns state, transitioning open→half-open if timeout elapsed. Must hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.setState(StateHalfOpen)
		b.halfOpenCount = 0
	}
	return b.state
}

// Call executes f through the circuit breaker.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	b.mu.Lock()
	st := b.currentState()

	switch st {
	case StateOpen:
		fire := b.drain()
		b.mu.Unlock()
		fire()
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			fire := b.drain()
			b.mu.Unlock()
			fire()
			return ErrCircuitOpen
		}
		b.halfOpenCount++
	}
	fire := b.drain()
	b.mu.Unlock()
	fire()

	err := f(ctx)

	b.mu.Lock()
	if err != nil {
		b.failures++
		if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
			b.setState(StateOpen)
			b.openedAt = b.now()
			b.failures = 0
			b.halfOpenCount = 0
		}
	} else {
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		b.failures = 0
	}
	fire = b.drain()
	b.mu.Unlock()
	fire()
	return err
}
