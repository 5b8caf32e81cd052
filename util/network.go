package util

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// BindAddr returns the local address a listener binds to: loopback
// only, or every interface when global is set.
func BindAddr(port int, global bool) netip.AddrPort {
	ip := netip.AddrFrom4([4]byte{127, 0, 0, 1})
	if global {
		ip = netip.IPv4Unspecified()
	}
	return netip.AddrPortFrom(ip, uint16(port))
}

// FormatAddr returns "host:port".
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// CanonicalAddrPort strips the IPv4-in-IPv6 mapping so that one IPv4
// peer is always represented by the same key, whichever socket family
// delivered its datagram.
func CanonicalAddrPort(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// FindFreeUDPPort returns a UDP port on 127.0.0.1 that was free at the
// time of the call.
func FindFreeUDPPort() (int, error) {
	c, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer c.Close()
	return c.LocalAddr().(*net.UDPAddr).Port, nil
}
