// Package errors holds the error values udpmux components return.
//
// Callers mostly need to tell three cases apart: the operation was
// cancelled because a session or listener went away (IsCancelled), a
// socket call failed and may work next time (IsRetryable), or a datagram
// arrived intact but could not be decoded (DecodeError).
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrListenerClosed is the cancellation cause once a listener has
	// been disposed.  Every session it owned reports it too.
	ErrListenerClosed = errors.New("listener is closed")
	// ErrSessionClosed is the cancellation cause of a session that was
	// closed on its own while the listener kept running.
	ErrSessionClosed = errors.New("session is closed")
	ErrShortWrite    = errors.New("datagram only partially sent")
	ErrCircuitOpen   = errors.New("circuit breaker is open")
)

// NetworkError is a failed socket operation.
type NetworkError struct {
	Op        string // "listen", "dial", "write"
	Addr      string
	Err       error
	Retryable bool
}

// Wrap builds a NetworkError for op on addr.  Retryable is derived from
// err.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{Op: op, Addr: addr, Err: err, Retryable: transient(err)}
}

func (e *NetworkError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("%s %s: %v (retryable)", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DecodeError reports a datagram that was received whole but rejected
// by the packet codec.
type DecodeError struct {
	Addr string
	Size int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d bytes from %s: %v", e.Size, e.Addr, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ConfigError is an invalid setting.  Field is the flag name.
type ConfigError struct {
	Field   string
	Value   any // nil when the setting is missing
	Message string
	Hint    string
}

func (e *ConfigError) Error() string {
	msg := "config: --" + e.Field
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// IsRetryable reports whether trying err's operation again may succeed.
func IsRetryable(err error) bool {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return transient(err)
}

// IsCancelled reports whether err means the operation was abandoned
// because its session, its listener or its caller went away.  A
// cancelled read never consumed a datagram.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrListenerClosed) ||
		errors.Is(err, ErrSessionClosed) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsClosedConn reports whether err comes from a socket that was
// already closed.
func IsClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

func transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrShortWrite) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // still the only signal for ENOBUFS and friends
	}
	return false
}

// As is [errors.As].
func As(err error, target any) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
