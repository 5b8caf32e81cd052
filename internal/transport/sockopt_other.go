//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package transport

import "syscall"

func socketControl(bool) func(network, address string, c syscall.RawConn) error {
	return nil
}

// Without recvmsg flags an oversized datagram is indistinguishable from
// one that exactly fills the buffer.
func isTruncated(int) bool { return false }
