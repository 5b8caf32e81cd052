// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a udpmux listener.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Collector tracks runtime metrics for a listener and its sessions.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsActive atomic.Int64
	sessionsTotal  atomic.Int64
	datagramsIn    atomic.Int64
	datagramsOut   atomic.Int64
	bytesIn        atomic.Int64
	bytesOut       atomic.Int64
	dropped        atomic.Int64
	sendFailures   atomic.Int64
	decodeErrors   atomic.Int64
	errorsTotal    atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total session counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsTotal.Add(1)
}

// SessionClosed decrements the active session counter.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// ActiveSessions returns the number of registered peer sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── Datagram metrics ─────────────────────────────────────────────────

// DatagramReceived records one inbound datagram of n bytes.
func (c *Collector) DatagramReceived(n int) {
	if c == nil {
		return
	}
	c.datagramsIn.Add(1)
	c.bytesIn.Add(int64(n))
}

// DatagramSent records one outbound datagram of n bytes.
func (c *Collector) DatagramSent(n int) {
	if c == nil {
		return
	}
	c.datagramsOut.Add(1)
	c.bytesOut.Add(int64(n))
}

// DatagramDropped records an inbound datagram that was never queued
// (rate limited, truncated, or from an unusable source address).
func (c *Collector) DatagramDropped() {
	if c == nil {
		return
	}
	c.dropped.Add(1)
}

// DatagramsIn returns the number of datagrams received.
func (c *Collector) DatagramsIn() int64 {
	if c == nil {
		return 0
	}
	return c.datagramsIn.Load()
}

// DatagramsOut returns the number of datagrams sent.
func (c *Collector) DatagramsOut() int64 {
	if c == nil {
		return 0
	}
	return c.datagramsOut.Load()
}

// Dropped returns the number of dropped inbound datagrams.
func (c *Collector) Dropped() int64 {
	if c == nil {
		return 0
	}
	return c.dropped.Load()
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// SendFailed records a datagram that could not be fully transmitted.
func (c *Collector) SendFailed(msg string) {
	if c == nil {
		return
	}
	c.sendFailures.Add(1)
	c.RecordError(msg)
}

// DecodeFailed records a datagram the codec rejected.
func (c *Collector) DecodeFailed(msg string) {
	if c == nil {
		return
	}
	c.decodeErrors.Add(1)
	c.RecordError(msg)
}

// SendFailures returns the number of failed sends.
func (c *Collector) SendFailures() int64 {
	if c == nil {
		return 0
	}
	return c.sendFailures.Load()
}

// DecodeErrors returns the number of rejected datagrams.
func (c *Collector) DecodeErrors() int64 {
	if c == nil {
		return 0
	}
	return c.decodeErrors.Load()
}

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	DatagramsIn      int64  `json:"datagrams_in"`
	DatagramsOut     int64  `json:"datagrams_out"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	Dropped          int64  `json:"dropped"`
	SendFailures     int64  `json:"send_failures"`
	DecodeErrors     int64  `json:"decode_errors"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:         time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive: c.sessionsActive.Load(),
		SessionsTotal:  c.sessionsTotal.Load(),
		DatagramsIn:    c.datagramsIn.Load(),
		DatagramsOut:   c.datagramsOut.Load(),
		BytesIn:        c.bytesIn.Load(),
		BytesOut:       c.bytesOut.Load(),
		Dropped:        c.dropped.Load(),
		SendFailures:   c.sendFailures.Load(),
		DecodeErrors:   c.decodeErrors.Load(),
		ErrorsTotal:    c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// Summary renders a one-line human readable digest, used when a
// listener shuts down.
func (s Snapshot) Summary() string {
	return fmt.Sprintf("%d peers, %d datagrams in (%s), %d out (%s), %d dropped, %d errors",
		s.SessionsTotal,
		s.DatagramsIn, humanize.Bytes(uint64(s.BytesIn)),
		s.DatagramsOut, humanize.Bytes(uint64(s.BytesOut)),
		s.Dropped, s.ErrorsTotal)
}
