package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultPort is the listener's bind port.
	DefaultPort = 4242

	// DefaultCapability is what the listener runs per connection.
	DefaultCapability = CapabilityChat

	// MaxDatagramLimit is the largest payload a UDP datagram can carry.
	MaxDatagramLimit = 65535

	// DefaultMaxDatagram sizes the receive buffer.
	DefaultMaxDatagram = ByteSize(MaxDatagramLimit)

	// DefaultRateBurst is the per-peer limiter bucket when --rate is set.
	DefaultRateBurst = 32

	// DefaultTimeout bounds the client's wait for a reply to its hello.
	DefaultTimeout = 5 * time.Second

	// DefaultGracePeriod is how long shutdown waits for handlers to finish.
	DefaultGracePeriod = 5 * time.Second

	// EnvPrefix prefixes every supported environment variable.
	EnvPrefix = "UDPMUX_"
)
