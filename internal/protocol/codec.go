package protocol

import (
	"errors"
	"fmt"

	cbor "github.com/fxamacker/cbor/v2"
)

// ErrEmptyPayload is returned when decoding a zero-length datagram.
var ErrEmptyPayload = errors.New("empty payload")

// Codec converts packets to and from datagram payloads.
type Codec interface {
	Encode(p Packet) ([]byte, error)
	Decode(data []byte) (Packet, error)
}

// MaxTextLen bounds the chat text a packet may carry so that an
// encoded packet always fits in one datagram.
const MaxTextLen = 60000

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCodec returns a deterministic CBOR codec.  Decoding is strict:
// unknown fields, trailing bytes and unknown commands are rejected.
func NewCodec() (Codec, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxArrayElements:  16,
		MaxMapPairs:       16,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return &cborCodec{enc: em, dec: dm}, nil
}

// MustCodec is NewCodec for static initialisation and tests.
func MustCodec() Codec {
	c, err := NewCodec()
	if err != nil {
		panic(err)
	}
	return c
}

func (c *cborCodec) Encode(p Packet) ([]byte, error) {
	if !p.Command.Valid() {
		return nil, fmt.Errorf("encode: unknown %s", p.Command)
	}
	if len(p.Text) > MaxTextLen {
		return nil, fmt.Errorf("encode: text is %d bytes, limit %d", len(p.Text), MaxTextLen)
	}
	return c.enc.Marshal(p)
}

func (c *cborCodec) Decode(data []byte) (Packet, error) {
	if len(data) == 0 {
		return Packet{}, ErrEmptyPayload
	}
	var p Packet
	if err := c.dec.Unmarshal(data, &p); err != nil {
		return Packet{}, err
	}
	if !p.Command.Valid() {
		return Packet{}, fmt.Errorf("unknown %s", p.Command)
	}
	return p, nil
}
