// Package config defines the runtime configuration for udpmux and the
// layers it is assembled from: defaults, an optional YAML file,
// UDPMUX_* environment variables, then command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	ierrors "udpmux/internal/errors"
)

// Capability names accepted by --mode.
const (
	CapabilityEcho = "echo"
	CapabilityChat = "chat"
)

// Config holds every tuneable for a single udpmux run.
type Config struct {
	// ── Mode ─────────────────────────────────────────────────────────
	Listen     bool   `yaml:"listen"`
	Capability string `yaml:"capability"` // listen side: echo | chat

	// ── Listener ─────────────────────────────────────────────────────
	Port        int      `yaml:"port"`   // -p: local bind port
	Global      bool     `yaml:"global"` // bind 0.0.0.0 instead of loopback
	MaxDatagram ByteSize `yaml:"max_datagram"`
	RateLimit   float64  `yaml:"rate_limit"` // datagrams/s per peer, 0 = off
	RateBurst   int      `yaml:"rate_burst"`
	ReuseAddr   bool     `yaml:"reuse_addr"`
	ReadBuffer  ByteSize `yaml:"read_buffer"`
	WriteBuffer ByteSize `yaml:"write_buffer"`
	MetricsAddr string   `yaml:"metrics_addr"`

	// ── Client ───────────────────────────────────────────────────────
	Host       string        `yaml:"host"`
	RemotePort int           `yaml:"remote_port"`
	UserName   string        `yaml:"user_name"`
	Timeout    time.Duration `yaml:"timeout"`

	// ── Output ───────────────────────────────────────────────────────
	Verbose int  `yaml:"verbose"`
	DryRun  bool `yaml:"-"`
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		Capability:  DefaultCapability,
		Port:        DefaultPort,
		MaxDatagram: DefaultMaxDatagram,
		RateBurst:   DefaultRateBurst,
		Timeout:     DefaultTimeout,
	}
}

// RemoteAddr returns host:port of the server a client talks to.
func (c *Config) RemoteAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.RemotePort)
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Failures are *errors.ConfigError values carrying a hint.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ierrors.ConfigError{
			Field: "port", Value: c.Port,
			Message: "port out of range 0-65535",
			Hint:    "use 0 to let the OS pick a free port",
		}
	}
	if c.MaxDatagram < 1 || c.MaxDatagram > MaxDatagramLimit {
		return &ierrors.ConfigError{
			Field: "max-datagram", Value: c.MaxDatagram,
			Message: fmt.Sprintf("must be between 1 B and %s", ByteSize(MaxDatagramLimit)),
			Hint:    "sizes accept units, e.g. 1500, 8KiB, 64KiB",
		}
	}
	if c.RateLimit < 0 {
		return &ierrors.ConfigError{
			Field: "rate", Value: c.RateLimit,
			Message: "rate limit cannot be negative",
			Hint:    "use 0 to disable per-peer rate limiting",
		}
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return &ierrors.ConfigError{
			Field: "burst", Value: c.RateBurst,
			Message: "burst must be at least 1 when a rate limit is set",
		}
	}
	if c.ReadBuffer < 0 || c.WriteBuffer < 0 {
		return &ierrors.ConfigError{
			Field:   "read-buffer/write-buffer",
			Message: "socket buffer sizes cannot be negative",
		}
	}
	if c.Timeout < 0 {
		return &ierrors.ConfigError{Field: "timeout", Value: c.Timeout, Message: "timeout cannot be negative"}
	}

	if c.Listen {
		switch strings.ToLower(c.Capability) {
		case CapabilityEcho, CapabilityChat:
		default:
			return &ierrors.ConfigError{
				Field: "mode", Value: c.Capability,
				Message: "unknown capability",
				Hint:    "choose one of: echo, chat",
			}
		}
		return nil
	}

	if c.MetricsAddr != "" {
		return &ierrors.ConfigError{
			Field: "metrics-addr", Value: c.MetricsAddr,
			Message: "metrics are only served in listen mode",
			Hint:    "add -l to run the listener",
		}
	}
	if c.Host == "" {
		return &ierrors.ConfigError{
			Field:   "host",
			Message: "hostname is required",
			Hint:    "usage: udpmux [options] host port, or -l to listen",
		}
	}
	if c.RemotePort < 1 || c.RemotePort > 65535 {
		return &ierrors.ConfigError{
			Field: "port", Value: c.RemotePort,
			Message: "destination port must be between 1 and 65535",
		}
	}
	return nil
}
