package transport

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	ierrors "udpmux/internal/errors"
	"udpmux/internal/metrics"
	"udpmux/internal/protocol"
	"udpmux/internal/retry"
	"udpmux/internal/session"
	"udpmux/util"
)

// UDPConfig holds settings for the UDP listener.
type UDPConfig struct {
	Port   int  // 0 picks an ephemeral port
	Global bool // bind 0.0.0.0 instead of 127.0.0.1

	// MaxDatagram is the receive buffer size.  Larger datagrams are
	// dropped, never split.  Zero means the UDP maximum.
	MaxDatagram int

	// RateLimit caps datagrams per second per peer; zero disables.
	RateLimit float64
	RateBurst int

	ReuseAddr   bool
	ReadBuffer  int // SO_RCVBUF, 0 keeps the OS default
	WriteBuffer int // SO_SNDBUF, 0 keeps the OS default
}

// UDPListener demultiplexes one UDP socket into per-peer sessions.
// Only one receive loop runs at a time: concurrent Accept callers are
// served one after another.
type UDPListener struct {
	conn     *net.UDPConn
	codec    protocol.Codec
	logger   *util.Logger
	metrics  *metrics.Collector
	registry *session.Registry
	pool     *util.DatagramPool
	backoff  *retry.Backoff

	ctx    context.Context
	cancel context.CancelCauseFunc

	acceptMu  sync.Mutex
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ Listener = (*UDPListener)(nil)

// ListenUDP binds the socket described by cfg.  Bind failures are
// returned here rather than from the first Accept.
func ListenUDP(cfg UDPConfig, codec protocol.Codec, logger *util.Logger, m *metrics.Collector) (*UDPListener, error) {
	if logger == nil {
		logger = util.NewLogger(0)
	}
	logger = logger.Named("transport.udp")
	if codec == nil {
		codec = protocol.MustCodec()
	}

	bind := util.BindAddr(cfg.Port, cfg.Global)
	lc := net.ListenConfig{Control: socketControl(cfg.ReuseAddr)}
	pc, err := lc.ListenPacket(context.Background(), "udp4", bind.String())
	if err != nil {
		return nil, ierrors.Wrap("listen", bind.String(), err)
	}
	conn := pc.(*net.UDPConn)

	if cfg.ReadBuffer > 0 {
		if err := conn.SetReadBuffer(cfg.ReadBuffer); err != nil {
			logger.Warn("set read buffer %d: %v", cfg.ReadBuffer, err)
		}
	}
	if cfg.WriteBuffer > 0 {
		if err := conn.SetWriteBuffer(cfg.WriteBuffer); err != nil {
			logger.Warn("set write buffer %d: %v", cfg.WriteBuffer, err)
		}
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	l := &UDPListener{
		conn:    conn,
		codec:   codec,
		logger:  logger,
		metrics: m,
		pool:    util.NewDatagramPool(cfg.MaxDatagram),
		backoff: retry.ReceiveBackoff(),
		ctx:     ctx,
		cancel:  cancel,
	}

	var limit rate.Limit
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	l.registry = session.NewRegistry(ctx, conn, session.Options{
		RateLimit: limit,
		RateBurst: cfg.RateBurst,
		OnCreate: func(s *session.Session) {
			m.SessionOpened()
			logger.Verbose("session %s opened", s)
		},
		OnRemove: func(s *session.Session) {
			m.SessionClosed()
			logger.Verbose("session %s closed", s)
		},
	})

	logger.Verbose("listening on %s (max datagram %d bytes)", conn.LocalAddr(), l.pool.Size())
	return l, nil
}

// Addr returns the bound local address.
func (l *UDPListener) Addr() net.Addr { return l.conn.LocalAddr() }

// Sessions returns the number of live peer sessions.
func (l *UDPListener) Sessions() int { return l.registry.Len() }

// Accept runs the receive loop until a datagram arrives from an address
// with no live session.  Datagrams for known peers are queued on their
// sessions along the way.  The new peer's first datagram is already
// queued when Accept returns.
func (l *UDPListener) Accept(ctx context.Context) (*AcceptState, error) {
	l.acceptMu.Lock()
	defer l.acceptMu.Unlock()

	if l.closed.Load() {
		return nil, ierrors.ErrListenerClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopClose := context.AfterFunc(l.ctx, cancel)
	defer stopClose()

	// A read deadline in the past is the only way to interrupt a
	// blocked ReadMsgUDP without closing the socket.
	stopDeadline := context.AfterFunc(ctx, func() {
		_ = l.conn.SetReadDeadline(time.Now())
	})
	defer func() {
		if !stopDeadline() {
			_ = l.conn.SetReadDeadline(time.Time{})
		}
	}()

	buf := l.pool.Get()
	defer l.pool.Put(buf)

	failures := 0
	for {
		n, _, flags, src, err := l.conn.ReadMsgUDPAddrPort(*buf, nil)
		if err != nil {
			if l.closed.Load() || ierrors.IsClosedConn(err) {
				return nil, ierrors.ErrListenerClosed
			}
			if ctx.Err() != nil {
				return nil, context.Cause(ctx)
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				// Deadline left over from an earlier, already finished Accept.
				_ = l.conn.SetReadDeadline(time.Time{})
				if ctx.Err() != nil {
					return nil, context.Cause(ctx)
				}
				continue
			}

			failures++
			l.metrics.RecordError(err.Error())
			l.logger.Warn("receive failed (%d in a row): %v", failures, err)
			if err := retry.Sleep(ctx, l.backoff.Delay(failures)); err != nil {
				if l.closed.Load() {
					return nil, ierrors.ErrListenerClosed
				}
				return nil, err
			}
			continue
		}
		failures = 0

		if isTruncated(flags) {
			l.metrics.DatagramDropped()
			l.logger.Debug("dropped datagram from %s larger than %d bytes", src, len(*buf))
			continue
		}

		src = util.CanonicalAddrPort(src)
		if !src.IsValid() || src.Port() == 0 {
			l.metrics.DatagramDropped()
			continue
		}

		data := make([]byte, n)
		copy(data, (*buf)[:n])
		l.metrics.DatagramReceived(n)
		l.logger.Debug("%d bytes from %s", n, src)

		sess, created, accepted := l.registry.Deliver(src, data)
		if sess == nil {
			return nil, ierrors.ErrListenerClosed
		}
		if !accepted {
			l.metrics.DatagramDropped()
			l.logger.Debug("rate limited datagram from %s", src)
			continue
		}
		if created {
			return &AcceptState{
				Entry:     &udpEntry{sess: sess, codec: l.codec, metrics: l.metrics},
				PeerName:  src.String(),
				Transport: KindUDP,
				Listener:  l,
			}, nil
		}
	}
}

// Close disposes the listener: the socket is closed, every session is
// cancelled with ErrListenerClosed, and the registry is emptied.  It is
// safe to call more than once.
func (l *UDPListener) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.registry.Clear()
		l.cancel(ierrors.ErrListenerClosed)
		l.closeErr = l.conn.Close()
		l.logger.Verbose("listener %s closed", l.conn.LocalAddr())
	})
	return l.closeErr
}

// lookup returns the live session for addr, if any.
func (l *UDPListener) lookup(addr netip.AddrPort) (*session.Session, bool) {
	return l.registry.Get(addr)
}
