package breaker

import (
	"errors"
	"sync"
	"time"
)

// State enumerates the positions of the circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the human readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	case StateHalfOpen:
		return "HalfOpen"
	default:
		return "Unknown"
	}
}

// ErrCircuitOpen is returned by Execute when the breaker refuses a call
// without invoking the action.
var ErrCircuitOpen = errors.New("breaker: circuit open")

// Breaker guards an action with a three-state failure counter. Consecutive
// failures in the closed state trip the circuit once the threshold is reached.
// An open circuit rejects every call until the timeout has elapsed, after
// which a single probe call is admitted: its success closes the circuit, its
// failure re-opens it. All state transitions are serialised under one mutex.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	timeout          time.Duration
	now              func() time.Time

	state           State
	failureCount    int
	lastFailureTime time.Time
}

// Option customises the breaker during construction.
type Option func(*Breaker)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New constructs a closed breaker with the given failure threshold and open
// interval.
func New(failureThreshold int, timeout time.Duration, opts ...Option) (*Breaker, error) {
	if failureThreshold <= 0 {
		return nil, errors.New("breaker: failure threshold must be positive")
	}
	if timeout < 0 {
		return nil, errors.New("breaker: timeout cannot be negative")
	}

	b := &Breaker{
		failureThreshold: failureThreshold,
		timeout:          timeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Execute runs op under the breaker. When the circuit is open and the timeout
// has not elapsed the call fails with ErrCircuitOpen and op is never invoked.
// The error from op is returned unchanged after the failure accounting.
func (b *Breaker) Execute(op func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := op()
	b.afterCall(err)
	return err
}

// State returns the current state. The read is serialised with transitions so
// a caller observing a failing Execute sees the post-transition state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset returns the breaker to the closed state with a zero failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failureCount = 0
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailureTime) >= b.timeout {
			b.state = StateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		// A probe is already in flight.
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.state = StateClosed
		b.failureCount = 0
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.failureCount++
		b.lastFailureTime = b.now()
		b.state = StateOpen
	default:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.state = StateOpen
			b.lastFailureTime = b.now()
		}
	}
}
