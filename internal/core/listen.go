package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"udpmux/internal/capability"
	ierrors "udpmux/internal/errors"
	"udpmux/internal/metrics"
	"udpmux/internal/protocol"
	"udpmux/internal/transport"
	"udpmux/util"
)

// ListenMode binds the UDP listener and runs a capability on every
// accepted connection, each in its own goroutine.  Cancelling the
// context disposes the listener, which unblocks every handler.
type ListenMode struct {
	UDP         transport.UDPConfig
	Codec       protocol.Codec
	Capability  capability.Capability
	MetricsAddr string        // serve /metrics and /stats when set
	GracePeriod time.Duration // how long shutdown waits for handlers
	Logger      *util.Logger
	Metrics     *metrics.Collector

	// Ready, when set, receives the bound address once the socket is
	// listening.
	Ready chan<- net.Addr
}

// Run listens until ctx is cancelled or the listener fails.
func (m *ListenMode) Run(ctx context.Context) error {
	ln, err := transport.ListenUDP(m.UDP, m.Codec, m.Logger, m.Metrics)
	if err != nil {
		return err
	}
	defer ln.Close()

	m.Logger.Info("listening on %s (udp)", ln.Addr())

	if m.MetricsAddr != "" {
		srv, err := m.serveMetrics()
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			srv.Shutdown(sctx) //nolint:errcheck
		}()
	}

	if m.Ready != nil {
		m.Ready <- ln.Addr()
	}

	var wg sync.WaitGroup
	var runErr error
	for {
		st, err := ln.Accept(ctx)
		if err != nil {
			if !ierrors.IsCancelled(err) {
				runErr = fmt.Errorf("accept: %w", err)
			}
			break
		}

		m.Logger.Verbose("connection from %s (%s)", st.PeerName, st.Transport)
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.serve(ctx, st)
		}()
	}

	ln.Close()
	if !waitTimeout(&wg, m.grace()) {
		m.Logger.Warn("handlers still running after %v", m.grace())
	}
	m.Logger.Verbose("listener stopped: %s", m.Metrics.Snapshot().Summary())
	return runErr
}

func (m *ListenMode) serve(ctx context.Context, st *transport.AcceptState) {
	defer st.Entry.Close()

	if err := m.Capability.Handle(ctx, st.Entry); err != nil {
		m.Logger.Warn("%s: %v", st.PeerName, err)
		return
	}
	m.Logger.Verbose("connection from %s done", st.PeerName)
}

// serveMetrics binds MetricsAddr synchronously so that address errors
// surface before the listener starts accepting.
func (m *ListenMode) serveMetrics() (*http.Server, error) {
	handler, err := metrics.Handler(m.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, m.Metrics.JSON())
	})

	l, err := net.Listen("tcp", m.MetricsAddr)
	if err != nil {
		return nil, ierrors.Wrap("listen", m.MetricsAddr, err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.Logger.Error("metrics server: %v", err)
		}
	}()
	m.Logger.Verbose("metrics on http://%s/metrics", l.Addr())
	return srv, nil
}

func (m *ListenMode) grace() time.Duration {
	if m.GracePeriod > 0 {
		return m.GracePeriod
	}
	return 5 * time.Second
}

// waitTimeout waits for wg and reports whether it finished in time.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
