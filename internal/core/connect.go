package core

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	ierrors "udpmux/internal/errors"
	"udpmux/internal/protocol"
	"udpmux/internal/retry"
	"udpmux/internal/transport"
	"udpmux/util"
)

// ConnectMode is the interactive client: it greets the server with a
// Hello, sends every stdin line as a Message and prints what comes
// back.  Stdin EOF sends Goodbye and ends the run.
type ConnectMode struct {
	Dialer   transport.Dialer
	Address  string
	Codec    protocol.Codec
	UserName string
	HostName string
	Backoff  *retry.Backoff // paces Hello retries; nil uses DefaultBackoff
	Logger   *util.Logger

	// Stdin/Stdout default to os.Stdin/os.Stdout when nil.
	// Override in tests for deterministic I/O.
	Stdin  io.Reader
	Stdout io.Writer
}

func (m *ConnectMode) stdin() io.Reader {
	if m.Stdin != nil {
		return m.Stdin
	}
	return os.Stdin
}

func (m *ConnectMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run dials the server and relays lines until stdin ends or ctx is
// cancelled.  The socket is closed when Run returns.
func (m *ConnectMode) Run(ctx context.Context) error {
	defer m.Dialer.Close()

	m.Logger.Verbose("connecting to %s (udp)", m.Address)

	// The listener binds IPv4 only.
	conn, err := m.Dialer.Dial(ctx, "udp4", m.Address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", m.Address, err)
	}
	pc := transport.NewPacketConn(conn, m.Codec)

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		m.printIncoming(pc)
	}()
	defer func() {
		pc.Close()
		<-readerDone
	}()

	if err := m.hello(ctx, pc); err != nil {
		return err
	}
	m.Logger.Verbose("joined %s as %s", m.Address, m.UserName)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(m.stdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			pc.WritePacket(protocol.Goodbye()) //nolint:errcheck
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := pc.WritePacket(protocol.Goodbye()); err != nil {
					m.Logger.Warn("goodbye: %v", err)
				}
				return nil
			}
			line = strings.TrimRight(line, "\r")
			if line == "" {
				continue
			}
			if err := pc.WritePacket(protocol.Message(m.UserName, line)); err != nil {
				m.Logger.Warn("send: %v", err)
			}
		}
	}
}

// hello sends the greeting, retrying failed writes with backoff.
func (m *ConnectMode) hello(ctx context.Context, pc *transport.PacketConn) error {
	b := m.Backoff
	if b == nil {
		b = retry.DefaultBackoff()
	}
	p := protocol.Hello(m.UserName, m.HostName)
	err := b.Do(ctx, func(attempt int) error {
		err := pc.WritePacket(p)
		if err == nil {
			return nil
		}
		if !ierrors.IsRetryable(err) {
			return retry.Permanent(err)
		}
		m.Logger.Verbose("hello attempt %d: %v", attempt, err)
		return err
	})
	if err != nil {
		return fmt.Errorf("hello %s: %w", m.Address, err)
	}
	return nil
}

// printIncoming writes server packets to stdout until the socket closes.
func (m *ConnectMode) printIncoming(pc *transport.PacketConn) {
	out := m.stdout()
	for {
		p, err := pc.ReadPacket(0)
		if err != nil {
			var de *ierrors.DecodeError
			if ierrors.As(err, &de) {
				m.Logger.Debug("%v", err)
				continue
			}
			if ierrors.IsClosedConn(err) {
				return
			}
			// ICMP port unreachable shows up here on connected sockets.
			m.Logger.Verbose("receive: %v", err)
			continue
		}
		switch p.Command {
		case protocol.CommandMessage:
			fmt.Fprintln(out, p.String())
		case protocol.CommandPing:
			pc.WritePacket(protocol.Pong()) //nolint:errcheck
		case protocol.CommandGoodbye:
			m.Logger.Info("server closed the session")
		}
	}
}
