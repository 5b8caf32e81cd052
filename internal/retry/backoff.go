// Package retry paces repeated network operations: exponential backoff
// for loops that must keep going after transient failures, and a
// circuit breaker for peers whose writes keep failing.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// PermanentError stops [Backoff.Do] at once.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent marks err so that Do returns it without another attempt.
// Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, went through
// Permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Backoff describes a sequence of growing waits.  Zero fields fall back
// to a 1s first wait, doubling each time, capped at one minute, with no
// limit on attempts.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int  // total tries, first included; 0 retries until ctx ends
	Jitter       bool // spread each wait by up to 25% either way
}

// DefaultBackoff paces the client hello: ten tries over roughly twenty
// seconds.
func DefaultBackoff() *Backoff {
	return &Backoff{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		MaxAttempts:  10,
		Jitter:       true,
	}
}

// ReceiveBackoff paces a receive loop that keeps hitting socket errors.
// It never gives up.
func ReceiveBackoff() *Backoff {
	return &Backoff{InitialDelay: 10 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
}

// Delay returns the wait after failed attempt n (1-based).
func (b *Backoff) Delay(n int) time.Duration {
	first, ceiling, factor := b.InitialDelay, b.MaxDelay, b.Multiplier
	if first <= 0 {
		first = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	if factor <= 0 {
		factor = 2
	}
	n = max(n, 1)

	wait := ceiling
	if d := float64(first) * math.Pow(factor, float64(n-1)); d < float64(ceiling) {
		wait = time.Duration(d)
	}
	if b.Jitter {
		spread := float64(wait) / 4
		wait += time.Duration(spread * (2*rand.Float64() - 1))
		wait = max(wait, time.Millisecond)
	}
	return wait
}

// Do calls fn until it returns nil, returns a Permanent error, runs out
// of attempts, or ctx ends.  fn receives the 1-based attempt number.
func (b *Backoff) Do(ctx context.Context, fn func(attempt int) error) error {
	for n := 1; ; n++ {
		err := fn(n)
		switch {
		case err == nil:
			return nil
		case IsPermanent(err):
			return errors.Unwrap(err)
		case b.MaxAttempts > 0 && n >= b.MaxAttempts:
			return fmt.Errorf("max retries (%d) exceeded: %w", b.MaxAttempts, err)
		}
		if err := Sleep(ctx, b.Delay(n)); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// Sleep waits for d.  It returns ctx.Err() early if ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
