// Package protocol defines the chat packets carried over udpmux and the
// codec that turns them into datagram payloads.  Each datagram holds
// exactly one encoded packet; there is no extra framing.
package protocol

import "fmt"

// Command identifies the kind of a packet.
type Command uint8

const (
	CommandHello Command = iota + 1
	CommandMessage
	CommandGoodbye
	CommandPing
	CommandPong
)

func (c Command) String() string {
	switch c {
	case CommandHello:
		return "hello"
	case CommandMessage:
		return "message"
	case CommandGoodbye:
		return "goodbye"
	case CommandPing:
		return "ping"
	case CommandPong:
		return "pong"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return c >= CommandHello && c <= CommandPong
}

// Packet is one protocol message.  Fields not relevant to Command are
// left empty and omitted on the wire.
type Packet struct {
	Command  Command `cbor:"1,keyasint"`
	UserName string  `cbor:"2,keyasint,omitempty"`
	HostName string  `cbor:"3,keyasint,omitempty"`
	Text     string  `cbor:"4,keyasint,omitempty"`
}

// Hello announces a client's display names.
func Hello(user, host string) Packet {
	return Packet{Command: CommandHello, UserName: user, HostName: host}
}

// Message carries chat text attributed to user.
func Message(user, text string) Packet {
	return Packet{Command: CommandMessage, UserName: user, Text: text}
}

// Goodbye ends a client's membership.
func Goodbye() Packet { return Packet{Command: CommandGoodbye} }

// Ping asks the peer for a Pong.
func Ping() Packet { return Packet{Command: CommandPing} }

// Pong answers a Ping.
func Pong() Packet { return Packet{Command: CommandPong} }

func (p Packet) String() string {
	switch p.Command {
	case CommandHello:
		return fmt.Sprintf("hello %s@%s", p.UserName, p.HostName)
	case CommandMessage:
		return fmt.Sprintf("<%s> %s", p.UserName, p.Text)
	default:
		return p.Command.String()
	}
}
