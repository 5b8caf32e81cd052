// Package capability defines what happens over an accepted connection.
// Each Capability encapsulates a single behaviour (echo, chat room)
// and operates on a transport.ClientEntry rather than a raw socket,
// which keeps capabilities testable and decoupled from transport
// details.
package capability

import (
	"context"

	ierrors "udpmux/internal/errors"
	"udpmux/internal/transport"
)

// Capability handles a single connection according to a specific
// behaviour.
type Capability interface {
	// Handle runs the capability against the given entry.  It blocks
	// until the connection is done or the context is cancelled.
	// Cancellation is a normal way to finish and returns nil.
	Handle(ctx context.Context, entry transport.ClientEntry) error
}

// finished maps a ReadPacket error to a Handle result.
func finished(err error) error {
	if ierrors.IsCancelled(err) {
		return nil
	}
	return err
}
