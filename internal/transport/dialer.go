package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	ierrors "udpmux/internal/errors"
	"udpmux/internal/protocol"
	"udpmux/util"
)

// UDPDialer creates connected UDP sockets, optionally binding to a
// specific source port.
type UDPDialer struct {
	Timeout   time.Duration
	LocalPort int // optional source-port binding (0 = ephemeral)
}

var _ Dialer = (*UDPDialer)(nil)

// Dial "connects" to address over UDP.  No packet is exchanged; the
// socket just remembers its default destination.
func (d *UDPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}

	if d.LocalPort > 0 {
		local := fmt.Sprintf(":%d", d.LocalPort)
		a, err := net.ResolveUDPAddr(network, local)
		if err != nil {
			return nil, fmt.Errorf("resolve local addr: %w", err)
		}
		dialer.LocalAddr = a
	}

	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, ierrors.Wrap("dial", address, err)
	}
	return conn, nil
}

// Close is a no-op for stateless UDP dialers.
func (d *UDPDialer) Close() error { return nil }

// PacketConn frames protocol packets over a connected datagram socket:
// one packet per datagram in each direction.
type PacketConn struct {
	conn  net.Conn
	codec protocol.Codec
	pool  *util.DatagramPool
}

// NewPacketConn wraps conn.  A nil codec selects the default one.
func NewPacketConn(conn net.Conn, codec protocol.Codec) *PacketConn {
	if codec == nil {
		codec = protocol.MustCodec()
	}
	return &PacketConn{conn: conn, codec: codec, pool: util.NewDatagramPool(util.MaxDatagramSize)}
}

// WritePacket sends p as a single datagram.
func (c *PacketConn) WritePacket(p protocol.Packet) error {
	data, err := c.codec.Encode(p)
	if err != nil {
		return err
	}
	n, err := c.conn.Write(data)
	if err != nil {
		return ierrors.Wrap("write", c.conn.RemoteAddr().String(), err)
	}
	if n != len(data) {
		return ierrors.Wrap("write", c.conn.RemoteAddr().String(), ierrors.ErrShortWrite)
	}
	return nil
}

// ReadPacket blocks for the next datagram and decodes it.  A zero
// timeout waits forever.
func (c *PacketConn) ReadPacket(timeout time.Duration) (protocol.Packet, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return protocol.Packet{}, err
	}

	buf := c.pool.Get()
	defer c.pool.Put(buf)

	n, err := c.conn.Read(*buf)
	if err != nil {
		return protocol.Packet{}, err
	}
	p, err := c.codec.Decode((*buf)[:n])
	if err != nil {
		return protocol.Packet{}, &ierrors.DecodeError{Addr: c.conn.RemoteAddr().String(), Size: n, Err: err}
	}
	return p, nil
}

// LocalAddr returns the socket's local address.
func (c *PacketConn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Close closes the underlying socket, unblocking any pending read.
func (c *PacketConn) Close() error { return c.conn.Close() }
