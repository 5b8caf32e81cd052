//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl returns a ListenConfig.Control hook that sets
// SO_REUSEADDR, or nil when reuse is off.
func socketControl(reuse bool) func(network, address string, c syscall.RawConn) error {
	if !reuse {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var serr error
		if err := c.Control(func(fd uintptr) {
			serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		}); err != nil {
			return err
		}
		return serr
	}
}

// isTruncated reports whether recvmsg flagged the datagram as larger
// than the buffer it was read into.
func isTruncated(flags int) bool {
	return flags&unix.MSG_TRUNC != 0
}
