// Package transport turns network sockets into client connections for
// the protocol layer.  Transports handle the "how" of data movement
// independent of what happens over the connection (which is the
// capability layer's job).
//
// The UDP listener makes one datagram socket look like a set of
// independent, ordered client connections: datagrams are demultiplexed
// by source address into per-peer sessions, and the first datagram
// from an unknown address surfaces as a newly accepted connection.
package transport

import (
	"context"
	"net"
	"net/netip"

	"udpmux/internal/protocol"
)

// KindUDP labels connections accepted by the UDP listener.
const KindUDP = "UDP"

// Listener accepts new client connections.
type Listener interface {
	// Accept blocks until a new peer appears, the listener is closed
	// (ErrListenerClosed) or ctx is done.
	Accept(ctx context.Context) (*AcceptState, error)

	// Addr returns the local address the listener is bound to.
	Addr() net.Addr

	// Close releases the socket and cancels every pending read.
	Close() error
}

// ClientEntry is one accepted client connection.  Stream and datagram
// transports both implement it, so the protocol layer cannot tell
// which one it is talking to.
type ClientEntry interface {
	// ReadPacket blocks for the next packet.  The error return is
	// reserved for cancellation; a packet the codec rejected is
	// reported through ReadState.Err with a nil Packet.
	ReadPacket(ctx context.Context) (*ReadState, error)

	// WritePacket encodes p and sends it.  A nil error means the whole
	// packet left the socket.
	WritePacket(p protocol.Packet) error

	// SetEncryptionKey installs a payload obfuscation key.  Transports
	// that already deliver whole messages may ignore it.
	SetEncryptionKey(key []byte)

	ID() string
	RemoteAddr() netip.AddrPort
	UserName() string
	SetUserName(name string)
	HostName() string
	SetHostName(name string)

	// Done is closed once the connection can no longer be read.
	Done() <-chan struct{}

	Close() error
}

// AcceptState describes a newly accepted connection.
type AcceptState struct {
	Entry     ClientEntry
	PeerName  string // human-readable peer identifier
	Transport string // transport kind, e.g. KindUDP
	Listener  Listener
}

// ReadState is the outcome of one successful transport-level read.
type ReadState struct {
	Entry  ClientEntry
	Packet *protocol.Packet // nil when Err is set
	Err    error            // codec failure, wraps *errors.DecodeError
}

// Dialer opens outbound network connections for the client side.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
