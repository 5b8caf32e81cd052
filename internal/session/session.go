// Package session holds per-peer state for a connectionless listener.
//
// A Session is everything udpmux knows about one remote address: an
// ordered queue of whole datagrams waiting to be read, a readiness
// signal for the single reader, a cancellation scope, and the display
// names the protocol layer attaches to the peer.  A Registry maps
// addresses to sessions and owns their lifecycle.
package session

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	ierrors "udpmux/internal/errors"
)

// Sender transmits one datagram to addr.  *net.UDPConn satisfies it
// and is safe for concurrent use by every session sharing the socket.
type Sender interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// Session is the per-peer state of one remote address.
//
// Enqueue may be called concurrently with ReadNext; ReadNext expects a
// single reader at a time.  Write may be called from any goroutine.
type Session struct {
	id     string
	addr   netip.AddrPort
	sender Sender

	// registry is a non-owning handle used only to deregister on Close.
	registry *Registry

	ctx    context.Context
	cancel context.CancelCauseFunc
	closed atomic.Bool

	mu      sync.Mutex
	pending *queue.Queue // of []byte
	ready   chan struct{}
	limiter *rate.Limiter

	nameMu   sync.RWMutex
	userName string
	hostName string
}

func newSession(parent context.Context, reg *Registry, addr netip.AddrPort, sender Sender, limiter *rate.Limiter) *Session {
	ctx, cancel := context.WithCancelCause(parent)
	return &Session{
		id:       uuid.NewString(),
		addr:     addr,
		sender:   sender,
		registry: reg,
		ctx:      ctx,
		cancel:   cancel,
		pending:  queue.New(),
		ready:    make(chan struct{}, 1),
		limiter:  limiter,
		userName: fmt.Sprintf("User_%s", addr),
		hostName: addr.String(),
	}
}

// ID returns a random identifier, unique per session.
func (s *Session) ID() string { return s.id }

// Addr returns the remote address.  It never changes.
func (s *Session) Addr() netip.AddrPort { return s.addr }

// Done is closed when the session or its listener shuts down.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Err returns why the session shut down, or nil while it is live.
func (s *Session) Err() error {
	if s.ctx.Err() == nil {
		return nil
	}
	return context.Cause(s.ctx)
}

// ── Inbound path ─────────────────────────────────────────────────────

// Enqueue appends one datagram to the tail of the queue and wakes the
// reader.  The slice is queued as is; callers hand over ownership.
func (s *Session) Enqueue(b []byte) {
	s.mu.Lock()
	s.pending.Add(b)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default: // a wakeup is already pending
	}
}

// allow applies the inbound rate limit, if any.
func (s *Session) allow() bool {
	return s.limiter == nil || s.limiter.Allow()
}

// Pending returns the number of queued datagrams.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Length()
}

// ReadNext blocks until a datagram is queued and returns it, removing
// it from the head of the queue.
//
// If the session is closed, the listener disposed, or ctx done, it
// returns ErrSessionClosed, ErrListenerClosed or ctx.Err() respectively
// and leaves the queue untouched.  Cancellation takes priority over
// data that is still queued.
func (s *Session) ReadNext(ctx context.Context) ([]byte, error) {
	for {
		if err := s.Err(); err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if b, ok := s.dequeue(); ok {
			return b, nil
		}

		select {
		case <-s.ready:
		case <-s.ctx.Done():
		case <-ctx.Done():
		}
	}
}

func (s *Session) dequeue() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Length() == 0 {
		return nil, false
	}
	return s.pending.Remove().([]byte), true
}

// ── Outbound path ────────────────────────────────────────────────────

// Write sends b to the peer as a single datagram.  A send that moves
// fewer bytes than len(b) is reported as ErrShortWrite.
func (s *Session) Write(b []byte) error {
	n, err := s.sender.WriteToUDPAddrPort(b, s.addr)
	if err != nil {
		return ierrors.Wrap("write", s.addr.String(), err)
	}
	if n != len(b) {
		return ierrors.Wrap("write", s.addr.String(),
			fmt.Errorf("%w: %d of %d bytes", ierrors.ErrShortWrite, n, len(b)))
	}
	return nil
}

// ── Lifecycle ────────────────────────────────────────────────────────

// Close deregisters the session and wakes a blocked reader.  Only the
// first call has any effect.  A later datagram from the same address
// starts a new session.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.registry != nil {
		s.registry.detach(s)
	}
	s.cancel(ierrors.ErrSessionClosed)
	return nil
}

// ── Display names ────────────────────────────────────────────────────

// UserName defaults to "User_<addr>".
func (s *Session) UserName() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.userName
}

// SetUserName replaces the display user name.
func (s *Session) SetUserName(name string) {
	s.nameMu.Lock()
	s.userName = name
	s.nameMu.Unlock()
}

// HostName defaults to "<addr>".
func (s *Session) HostName() string {
	s.nameMu.RLock()
	defer s.nameMu.RUnlock()
	return s.hostName
}

// SetHostName replaces the display host name.
func (s *Session) SetHostName(name string) {
	s.nameMu.Lock()
	s.hostName = name
	s.nameMu.Unlock()
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.id[:8], s.addr)
}
