package capability

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ierrors "udpmux/internal/errors"
	"udpmux/internal/protocol"
	"udpmux/internal/retry"
	"udpmux/internal/transport"
	"udpmux/util"
)

// SystemUser is the sender name on room announcements.
const SystemUser = "*"

// member is one connection in the room.
type member struct {
	entry   transport.ClientEntry
	breaker *retry.CircuitBreaker
}

// Chat is a chat room shared by every connection it handles.  Hello
// renames the sender, Message is relayed to everybody else, Ping is
// answered with Pong and Goodbye ends the sender's membership.
//
// Writes to each member go through that member's circuit breaker; a
// member whose breaker opens is dropped from the room and closed.
type Chat struct {
	Logger  *util.Logger
	Breaker *retry.CircuitBreakerConfig // nil uses the defaults

	mu      sync.Mutex
	members map[string]*member
}

// Members returns the user names currently in the room, sorted.
func (c *Chat) Members() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		names = append(names, m.entry.UserName())
	}
	sort.Strings(names)
	return names
}

// Handle joins entry to the room and serves it until it says goodbye,
// is dropped, or ctx is done.
func (c *Chat) Handle(ctx context.Context, entry transport.ClientEntry) error {
	logger := c.logger()
	c.join(entry)
	defer c.leave(entry)

	for {
		rs, err := entry.ReadPacket(ctx)
		if err != nil {
			return finished(err)
		}
		if rs.Err != nil {
			logger.Debug("chat %s: %v", entry.RemoteAddr(), rs.Err)
			continue
		}

		p := rs.Packet
		switch p.Command {
		case protocol.CommandHello:
			old := entry.UserName()
			if p.UserName != "" {
				entry.SetUserName(p.UserName)
			}
			if p.HostName != "" {
				entry.SetHostName(p.HostName)
			}
			logger.Verbose("%s is now %s@%s", old, entry.UserName(), entry.HostName())
			c.broadcast(entry, protocol.Message(SystemUser,
				fmt.Sprintf("%s joined from %s", entry.UserName(), entry.HostName())))

		case protocol.CommandMessage:
			c.broadcast(entry, protocol.Message(entry.UserName(), p.Text))

		case protocol.CommandPing:
			if err := entry.WritePacket(protocol.Pong()); err != nil {
				logger.Warn("pong %s: %v", entry.RemoteAddr(), err)
			}

		case protocol.CommandGoodbye:
			logger.Verbose("%s said goodbye", entry.UserName())
			c.leave(entry)
			c.broadcast(entry, protocol.Message(SystemUser, entry.UserName()+" left"))
			return entry.Close()

		default:
			logger.Debug("chat %s: ignoring %s", entry.RemoteAddr(), p.Command)
		}
	}
}

func (c *Chat) logger() *util.Logger {
	if c.Logger == nil {
		return util.NewLogger(0)
	}
	return c.Logger
}

func (c *Chat) join(entry transport.ClientEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.members == nil {
		c.members = make(map[string]*member)
	}
	c.members[entry.ID()] = &member{
		entry:   entry,
		breaker: retry.NewCircuitBreaker(c.Breaker),
	}
}

// leave removes entry from the room.  It reports whether entry was
// still a member.
func (c *Chat) leave(entry transport.ClientEntry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[entry.ID()]; !ok {
		return false
	}
	delete(c.members, entry.ID())
	return true
}

// broadcast sends p to every member except from.  Writes happen
// outside the room lock.
func (c *Chat) broadcast(from transport.ClientEntry, p protocol.Packet) {
	c.mu.Lock()
	targets := make([]*member, 0, len(c.members))
	for id, m := range c.members {
		if id != from.ID() {
			targets = append(targets, m)
		}
	}
	c.mu.Unlock()

	logger := c.logger()
	for _, m := range targets {
		err := m.breaker.Execute(func() error { return m.entry.WritePacket(p) })
		if err == nil {
			continue
		}
		logger.Debug("chat write %s: %v", m.entry.RemoteAddr(), err)
		if ierrors.Is(err, ierrors.ErrCircuitOpen) || m.breaker.CurrentState() == retry.StateOpen {
			if c.leave(m.entry) {
				logger.Warn("dropping %s (%s): too many failed writes", m.entry.UserName(), m.entry.RemoteAddr())
				m.entry.Close() //nolint:errcheck
			}
		}
	}
}
