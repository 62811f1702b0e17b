// Package poll drives fixed-interval polling loops with a deadline
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when the deadline passes before the check is done
var ErrTimeout = errors.New("polling timed out")

// ErrMaxAttempts is returned when the attempt budget is spent
var ErrMaxAttempts = errors.New("polling attempts exhausted")

// Clock is the time source of a Poller
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the wall clock
var RealClock Clock = realClock{}

type stopError struct {
	err error
}

func (e *stopError) Error() string { return e.err.Error() }
func (e *stopError) Unwrap() error { return e.err }

// Stop marks err as final so the poller returns it instead of retrying
func Stop(err error) error {
	if err == nil {
		return nil
	}
	return &stopError{err: err}
}

// CheckFunc reports whether polling is done. A plain error is treated as
// transient and polling continues; wrap it with Stop to end the loop.
type CheckFunc func(ctx context.Context, attempt int) (bool, error)

// Poller calls a check every Interval until Timeout or MaxAttempts runs out
type Poller struct {
	Interval    time.Duration
	Timeout     time.Duration // Zero means no deadline
	MaxAttempts int           // Zero means unlimited
	Clock       Clock
	// OnError observes transient errors
	OnError func(attempt int, err error)
}

// Run polls until check is done. On timeout the returned error wraps
// ErrTimeout and the last transient error, if any.
func (p Poller) Run(ctx context.Context, check CheckFunc) error {
	clock := p.Clock
	if clock == nil {
		clock = RealClock
	}
	var deadline time.Time
	if p.Timeout > 0 {
		deadline = clock.Now().Add(p.Timeout)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		done, err := check(ctx, attempt)
		if err != nil {
			var stop *stopError
			if errors.As(err, &stop) {
				return stop.err
			}
			lastErr = err
			if p.OnError != nil {
				p.OnError(attempt, err)
			}
		} else if done {
			return nil
		}

		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			return wrapLast(ErrMaxAttempts, lastErr)
		}
		if !deadline.IsZero() && !clock.Now().Before(deadline) {
			return wrapLast(ErrTimeout, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(p.Interval):
		}
	}
}

func wrapLast(sentinel, last error) error {
	if last == nil {
		return sentinel
	}
	return fmt.Errorf("%w (last error: %v)", sentinel, last)
}
