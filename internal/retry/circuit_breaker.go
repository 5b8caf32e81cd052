package retry

import (
	"fmt"
	"sync"
	"time"

	ierrors "udpmux/internal/errors"
)

// State is the position of a CircuitBreaker.
type State int

const (
	StateClosed   State = iota // writes flow
	StateOpen                  // writes are refused until the cool-down ends
	StateHalfOpen              // one probe write at a time decides the outcome
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
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CircuitBreakerConfig configures a [CircuitBreaker].  Zero fields take
// the defaults of DefaultCircuitBreakerConfig.
type CircuitBreakerConfig struct {
	// MaxFailures consecutive failed writes open the circuit.
	MaxFailures int
	// CoolDown is how long an open circuit refuses writes before it
	// lets a probe through.
	CoolDown time.Duration
	// OnStateChange runs under the breaker's lock.
	OnStateChange func(from, to State)
}

// DefaultCircuitBreakerConfig opens after 5 failures and probes again
// after 30 seconds.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{MaxFailures: 5, CoolDown: 30 * time.Second}
}

// CircuitBreaker guards writes to one peer.  After MaxFailures
// consecutive failures it refuses writes with ErrCircuitOpen; once the
// cool-down has passed a single probe is allowed, and its outcome
// closes or re-opens the circuit.
type CircuitBreaker struct {
	maxFailures int
	coolDown    time.Duration
	onChange    func(from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewCircuitBreaker returns a closed breaker.  A nil cfg uses the
// defaults.
func NewCircuitBreaker(cfg *CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg == nil {
		cfg = def
	}
	cb := &CircuitBreaker{
		maxFailures: cfg.MaxFailures,
		coolDown:    cfg.CoolDown,
		onChange:    cfg.OnStateChange,
	}
	if cb.maxFailures <= 0 {
		cb.maxFailures = def.MaxFailures
	}
	if cb.coolDown <= 0 {
		cb.coolDown = def.CoolDown
	}
	return cb
}

// Execute runs fn if the breaker allows it and records the result.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	err := fn()
	cb.Record(err)
	return err
}

// Allow returns nil when a write may proceed, or an error wrapping
// ErrCircuitOpen.  Every nil return must be followed by one Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		wait := cb.coolDown - time.Since(cb.openedAt)
		if wait > 0 {
			return fmt.Errorf("%w: %d failed writes, next probe in %v",
				ierrors.ErrCircuitOpen, cb.failures, wait.Round(time.Millisecond))
		}
		cb.setState(StateHalfOpen)
		cb.probing = true
		return nil
	case StateHalfOpen:
		if cb.probing {
			return fmt.Errorf("%w: probe in flight", ierrors.ErrCircuitOpen)
		}
		cb.probing = true
		return nil
	default:
		return nil
	}
}

// Record feeds the outcome of an allowed write into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.probing = false
	if err == nil {
		cb.failures = 0
		cb.setState(StateClosed)
		return
	}

	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.openedAt = time.Now()
		cb.setState(StateOpen)
	}
}

// CurrentState returns the breaker's state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the number of consecutive failed writes.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}
