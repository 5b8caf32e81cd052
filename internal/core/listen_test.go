package core

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"udpmux/internal/capability"
	ierrors "udpmux/internal/errors"
	"udpmux/internal/metrics"
	"udpmux/internal/protocol"
	"udpmux/internal/transport"
	"udpmux/util"
)

// startListen runs mode in the background and returns its bound address
// and result channel.
func startListen(t *testing.T, ctx context.Context, mode *ListenMode) (string, <-chan error) {
	t.Helper()
	ready := make(chan net.Addr, 1)
	mode.Ready = ready

	errCh := make(chan error, 1)
	go func() { errCh <- mode.Run(ctx) }()

	select {
	case addr := <-ready:
		return addr.String(), errCh
	case err := <-errCh:
		t.Fatalf("listen: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not come up")
	}
	return "", nil
}

func dialClient(t *testing.T, addr string) *transport.PacketConn {
	t.Helper()
	conn, err := (&transport.UDPDialer{Timeout: time.Second}).Dial(context.Background(), "udp4", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	pc := transport.NewPacketConn(conn, nil)
	t.Cleanup(func() { pc.Close() })
	return pc
}

func roundTrip(t *testing.T, pc *transport.PacketConn, p protocol.Packet) protocol.Packet {
	t.Helper()
	if err := pc.WritePacket(p); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := pc.ReadPacket(2 * time.Second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return got
}

func waitShutdown(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("listener did not shut down in time")
	}
	return nil
}

// TestListenMode_Echo verifies the listener serves an echo capability
// and shuts down cleanly on cancel.
func TestListenMode_Echo(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	addr, errCh := startListen(t, ctx, &ListenMode{
		Capability: &capability.Echo{},
		Logger:     util.NewLogger(0),
		Metrics:    m,
	})

	pc := dialClient(t, addr)
	got := roundTrip(t, pc, protocol.Message("a", "hi"))
	if got.Command != protocol.CommandMessage || got.Text != "hi" {
		t.Errorf("echo = %+v", got)
	}

	cancel()
	if err := waitShutdown(t, errCh); err != nil {
		t.Errorf("Run = %v, want nil after cancel", err)
	}
	if m.TotalSessions() != 1 || m.ActiveSessions() != 0 {
		t.Errorf("sessions total=%d active=%d", m.TotalSessions(), m.ActiveSessions())
	}
}

// TestListenMode_Chat relays a message between two clients.
func TestListenMode_Chat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, errCh := startListen(t, ctx, &ListenMode{
		Capability: &capability.Chat{},
		Logger:     util.NewLogger(0),
	})

	bob := dialClient(t, addr)
	if got := roundTrip(t, bob, protocol.Ping()); got.Command != protocol.CommandPong {
		t.Fatalf("bob ping = %+v", got)
	}

	alice := dialClient(t, addr)
	if err := alice.WritePacket(protocol.Hello("alice", "laptop")); err != nil {
		t.Fatal(err)
	}
	if got := roundTrip(t, alice, protocol.Ping()); got.Command != protocol.CommandPong {
		t.Fatalf("alice ping = %+v", got)
	}
	if err := alice.WritePacket(protocol.Message("alice", "hi bob")); err != nil {
		t.Fatal(err)
	}

	var texts []string
	for len(texts) < 2 {
		p, err := bob.ReadPacket(2 * time.Second)
		if err != nil {
			t.Fatalf("bob read: %v (got %q)", err, texts)
		}
		texts = append(texts, p.String())
	}
	want := []string{"<*> alice joined from laptop", "<alice> hi bob"}
	for i := range want {
		if texts[i] != want[i] {
			t.Errorf("bob message %d = %q, want %q", i, texts[i], want[i])
		}
	}

	cancel()
	waitShutdown(t, errCh) //nolint:errcheck
}

// TestListenMode_Metrics verifies the Prometheus and JSON endpoints.
func TestListenMode_Metrics(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	metricsAddr := probe.Addr().String()
	probe.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, errCh := startListen(t, ctx, &ListenMode{
		Capability:  &capability.Echo{},
		MetricsAddr: metricsAddr,
		Logger:      util.NewLogger(0),
		Metrics:     metrics.New(),
	})
	roundTrip(t, dialClient(t, addr), protocol.Ping())

	get := func(path string) string {
		resp, err := http.Get("http://" + metricsAddr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}

	if body := get("/metrics"); !strings.Contains(body, "udpmux_sessions_total 1") {
		t.Errorf("/metrics missing session count:\n%s", body)
	}
	if body := get("/stats"); !strings.Contains(body, `"datagrams_in": 1`) {
		t.Errorf("/stats = %s", body)
	}

	cancel()
	waitShutdown(t, errCh) //nolint:errcheck
}

// TestListenMode_BindError verifies a busy port fails Run immediately.
func TestListenMode_BindError(t *testing.T) {
	busy, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()

	mode := &ListenMode{
		UDP:        transport.UDPConfig{Port: busy.LocalAddr().(*net.UDPAddr).Port},
		Capability: &capability.Echo{},
		Logger:     util.NewLogger(0),
	}
	err = mode.Run(context.Background())
	var ne *ierrors.NetworkError
	if !errors.As(err, &ne) || ne.Op != "listen" {
		t.Fatalf("Run = %v, want listen NetworkError", err)
	}
}
