package capability

import (
	"context"

	"udpmux/internal/transport"
	"udpmux/util"
)

// Echo writes every decoded packet straight back to its sender.
type Echo struct {
	Logger *util.Logger
}

// Handle echoes packets until the entry or ctx is done.  Packets the
// codec rejected are skipped.
func (e *Echo) Handle(ctx context.Context, entry transport.ClientEntry) error {
	logger := e.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}

	for {
		rs, err := entry.ReadPacket(ctx)
		if err != nil {
			return finished(err)
		}
		if rs.Err != nil {
			logger.Debug("echo %s: %v", entry.RemoteAddr(), rs.Err)
			continue
		}
		if err := entry.WritePacket(*rs.Packet); err != nil {
			logger.Warn("echo %s: %v", entry.RemoteAddr(), err)
		}
	}
}
