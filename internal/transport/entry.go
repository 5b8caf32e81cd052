package transport

import (
	"context"
	"fmt"
	"net/netip"

	ierrors "udpmux/internal/errors"
	"udpmux/internal/metrics"
	"udpmux/internal/protocol"
	"udpmux/internal/session"
)

// udpEntry adapts a peer session to the ClientEntry contract.
type udpEntry struct {
	sess    *session.Session
	codec   protocol.Codec
	metrics *metrics.Collector
}

var _ ClientEntry = (*udpEntry)(nil)

func (e *udpEntry) ReadPacket(ctx context.Context) (*ReadState, error) {
	data, err := e.sess.ReadNext(ctx)
	if err != nil {
		return nil, err
	}

	p, err := e.codec.Decode(data)
	if err != nil {
		derr := &ierrors.DecodeError{Addr: e.sess.Addr().String(), Size: len(data), Err: err}
		e.metrics.DecodeFailed(derr.Error())
		return &ReadState{Entry: e, Err: derr}, nil
	}
	return &ReadState{Entry: e, Packet: &p}, nil
}

func (e *udpEntry) WritePacket(p protocol.Packet) error {
	data, err := e.codec.Encode(p)
	if err != nil {
		return fmt.Errorf("write %s: %w", e.sess.Addr(), err)
	}
	if err := e.sess.Write(data); err != nil {
		e.metrics.SendFailed(err.Error())
		return err
	}
	e.metrics.DatagramSent(len(data))
	return nil
}

// SetEncryptionKey is a no-op: every datagram is already a complete,
// independently decodable packet.
func (e *udpEntry) SetEncryptionKey([]byte) {}

func (e *udpEntry) ID() string                 { return e.sess.ID() }
func (e *udpEntry) RemoteAddr() netip.AddrPort { return e.sess.Addr() }
func (e *udpEntry) UserName() string           { return e.sess.UserName() }
func (e *udpEntry) SetUserName(name string)    { e.sess.SetUserName(name) }
func (e *udpEntry) HostName() string           { return e.sess.HostName() }
func (e *udpEntry) SetHostName(name string)    { e.sess.SetHostName(name) }
func (e *udpEntry) Done() <-chan struct{}      { return e.sess.Done() }
func (e *udpEntry) Close() error               { return e.sess.Close() }
func (e *udpEntry) String() string             { return e.sess.String() }
