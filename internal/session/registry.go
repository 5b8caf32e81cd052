package session

import (
	"context"
	"net/netip"
	"sync"

	"golang.org/x/time/rate"

	ierrors "udpmux/internal/errors"
)

// Options tune a Registry.
type Options struct {
	// RateLimit caps inbound datagrams per second per peer.  Zero
	// disables limiting.
	RateLimit rate.Limit
	// RateBurst is the limiter's bucket size (minimum 1).
	RateBurst int

	// OnCreate and OnRemove are called with the registry lock held;
	// they must not call back into the registry.
	OnCreate func(*Session)
	OnRemove func(*Session)
}

// Registry maps remote addresses to live sessions.  Every operation
// runs under one mutex, so at most one session exists per address and
// a lookup-then-insert never races a removal.
type Registry struct {
	sender Sender
	opts   Options

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	sessions map[netip.AddrPort]*Session
	cleared  bool
}

// NewRegistry returns an empty registry whose sessions send through
// sender.  Sessions are cancelled when parent is done or Clear runs.
func NewRegistry(parent context.Context, sender Sender, opts Options) *Registry {
	ctx, cancel := context.WithCancelCause(parent)
	if opts.RateBurst < 1 {
		opts.RateBurst = 1
	}
	return &Registry{
		sender:   sender,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[netip.AddrPort]*Session),
	}
}

// FindOrCreate returns the session for addr, creating and registering
// one if none exists.  created reports which happened.  After Clear it
// returns (nil, false).
func (r *Registry) FindOrCreate(addr netip.AddrPort) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findOrCreateLocked(addr)
}

func (r *Registry) findOrCreateLocked(addr netip.AddrPort) (*Session, bool) {
	if r.cleared {
		return nil, false
	}
	if s, ok := r.sessions[addr]; ok {
		return s, false
	}

	var limiter *rate.Limiter
	if r.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(r.opts.RateLimit, r.opts.RateBurst)
	}
	s := newSession(r.ctx, r, addr, r.sender, limiter)
	r.sessions[addr] = s
	if r.opts.OnCreate != nil {
		r.opts.OnCreate(s)
	}
	return s, true
}

// Deliver routes one datagram: it finds or creates the session for
// addr and enqueues b, all in one critical section so the datagram
// cannot land in a session that is being removed.
//
// accepted is false when the peer's rate limit dropped the datagram.
// A new session always accepts its first datagram.  After Clear,
// Deliver returns a nil session.
func (r *Registry) Deliver(addr netip.AddrPort, b []byte) (s *Session, created, accepted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, created = r.findOrCreateLocked(addr)
	if s == nil {
		return nil, false, false
	}
	if !s.allow() && !created {
		return s, false, false
	}
	s.Enqueue(b)
	return s, created, true
}

// Get returns the live session for addr, if any.
func (r *Registry) Get(addr netip.AddrPort) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[addr]
	return s, ok
}

// Remove deregisters and closes the session for addr.  It is a no-op
// if addr has no session.
func (r *Registry) Remove(addr netip.AddrPort) {
	r.mu.Lock()
	s, ok := r.sessions[addr]
	r.mu.Unlock()
	if ok {
		s.Close() //nolint:errcheck
	}
}

// detach drops s from the map if it is still the session registered
// for its address; a stale session never evicts its successor.
func (r *Registry) detach(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.addr]; ok && cur == s {
		delete(r.sessions, s.addr)
		if r.opts.OnRemove != nil {
			r.opts.OnRemove(s)
		}
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Range calls fn for a snapshot of the live sessions.  fn runs without
// the registry lock held and may close sessions.
func (r *Registry) Range(fn func(*Session) bool) {
	r.mu.Lock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.Unlock()

	for _, s := range snapshot {
		if !fn(s) {
			return
		}
	}
}

// Clear cancels every session with ErrListenerClosed and empties the
// map.  Later FindOrCreate and Deliver calls create nothing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cleared {
		return
	}
	r.cleared = true
	r.cancel(ierrors.ErrListenerClosed)
	for addr, s := range r.sessions {
		delete(r.sessions, addr)
		if r.opts.OnRemove != nil {
			r.opts.OnRemove(s)
		}
	}
}
