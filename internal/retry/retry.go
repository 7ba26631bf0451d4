package retry

import (
	"context"
	"errors"
	"time"
)

// Observer is notified before each wait between attempts. attempt is the
// 1-based index of the upcoming retry and delay the interval about to be
// slept.
type Observer func(attempt int, delay time.Duration)

// Policy retries a failing operation with exponential back-off: the wait
// before retry n is 2^(n-1) seconds, so delays run 1s, 2s, 4s and so on. The
// policy keeps no state between invocations and is safe for concurrent use.
type Policy struct {
	maxRetries int
	observer   Observer
	sleep      func(time.Duration)
}

// Option customises the policy during construction.
type Option func(*Policy)

// WithObserver registers a callback invoked before each wait.
func WithObserver(fn Observer) Option {
	return func(p *Policy) {
		p.observer = fn
	}
}

// WithSleep overrides the waiting primitive used between attempts. Intended
// for tests that must not spend wall-clock time on back-off.
func WithSleep(fn func(time.Duration)) Option {
	return func(p *Policy) {
		p.sleep = fn
	}
}

// New constructs a retry policy that allows up to maxRetries additional
// attempts after the initial one, so the operation runs at most maxRetries+1
// times.
func New(maxRetries int, opts ...Option) (*Policy, error) {
	if maxRetries < 0 {
		return nil, errors.New("retry: max retries cannot be negative")
	}

	p := &Policy{maxRetries: maxRetries}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// WithObserver returns a copy of the policy whose observer runs any
// previously registered observer first, then fn. The receiver is unchanged.
func (p *Policy) WithObserver(fn Observer) *Policy {
	clone := *p
	prev := clone.observer
	clone.observer = func(attempt int, delay time.Duration) {
		if prev != nil {
			prev(attempt, delay)
		}
		if fn != nil {
			fn(attempt, delay)
		}
	}
	return &clone
}

// MaxRetries returns the configured retry budget.
func (p *Policy) MaxRetries() int {
	return p.maxRetries
}

// Execute runs op, retrying on failure until the budget is exhausted. The
// error from the final attempt is returned unchanged.
func (p *Policy) Execute(op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt >= p.maxRetries {
			return err
		}
		delay := p.delayFor(attempt)
		if p.observer != nil {
			p.observer(attempt+1, delay)
		}
		if p.sleep != nil {
			p.sleep(delay)
		} else {
			time.Sleep(delay)
		}
	}
}

// ExecuteContext behaves exactly like Execute, including observer callbacks,
// but waits on a timer that also watches ctx. When ctx is cancelled during a
// wait the error from the last attempt is returned.
func (p *Policy) ExecuteContext(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt >= p.maxRetries {
			return err
		}
		delay := p.delayFor(attempt)
		if p.observer != nil {
			p.observer(attempt+1, delay)
		}
		if p.sleep != nil {
			p.sleep(delay)
		} else if !p.wait(ctx, delay) {
			return err
		}
	}
}

// delayFor returns the back-off before the retry that follows the given
// zero-based attempt.
func (p *Policy) delayFor(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

func (p *Policy) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
