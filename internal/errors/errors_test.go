package errors

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
)

func TestError_Messages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "short write",
			err:  Wrap("write", "127.0.0.1:9000", ErrShortWrite),
			want: "write 127.0.0.1:9000: datagram only partially sent (retryable)",
		},
		{
			name: "bind failure",
			err:  Wrap("listen", "127.0.0.1:4242", fmt.Errorf("address already in use")),
			want: "listen 127.0.0.1:4242: address already in use",
		},
		{
			name: "undecodable datagram",
			err:  &DecodeError{Addr: "10.0.0.1:4000", Size: 3, Err: fmt.Errorf("unknown command 0x7f")},
			want: "decode 3 bytes from 10.0.0.1:4000: unknown command 0x7f",
		},
		{
			name: "bad flag with hint",
			err:  &ConfigError{Field: "port", Value: 99999, Message: "out of range 1-65535", Hint: "use a port between 1 and 65535"},
			want: "config: --port=99999: out of range 1-65535\n  hint: use a port between 1 and 65535",
		},
		{
			name: "missing setting",
			err:  &ConfigError{Field: "host", Message: "required in connect mode"},
			want: "config: --host: required in connect mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	sent := Wrap("write", "127.0.0.1:9000", io.ErrClosedPipe)
	if !Is(sent, io.ErrClosedPipe) {
		t.Error("NetworkError hides its cause")
	}

	bad := &DecodeError{Addr: "127.0.0.1:9000", Size: 1, Err: io.ErrUnexpectedEOF}
	var de *DecodeError
	if !As(fmt.Errorf("read: %w", bad), &de) || de.Size != 1 {
		t.Error("DecodeError lost through wrapping")
	}
	if !Is(bad, io.ErrUnexpectedEOF) {
		t.Error("DecodeError hides its cause")
	}
}

func TestIsRetryable(t *testing.T) {
	temporary := &net.OpError{Op: "write", Net: "udp", Err: &net.DNSError{IsTemporary: true}}

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", fmt.Errorf("boom"), false},
		{"short write", ErrShortWrite, true},
		{"wrapped short write", Wrap("write", "x", ErrShortWrite), true},
		{"marked retryable", &NetworkError{Op: "dial", Err: io.EOF, Retryable: true}, true},
		{"marked permanent", &NetworkError{Op: "dial", Err: ErrShortWrite}, false},
		{"temporary OpError", temporary, true},
		{"wrapped temporary OpError", fmt.Errorf("send: %w", temporary), true},
		{"closed socket", &net.OpError{Op: "write", Net: "udp", Err: net.ErrClosed}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsCancelled(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"listener closed", ErrListenerClosed, true},
		{"session closed", fmt.Errorf("read: %w", ErrSessionClosed), true},
		{"caller cancelled", context.Canceled, true},
		{"caller deadline", context.DeadlineExceeded, true},
		{"decode failure", &DecodeError{Err: io.ErrUnexpectedEOF}, false},
		{"open circuit", ErrCircuitOpen, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCancelled(tt.err); got != tt.want {
				t.Errorf("IsCancelled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsClosedConn(t *testing.T) {
	if !IsClosedConn(&net.OpError{Op: "read", Net: "udp", Err: net.ErrClosed}) {
		t.Error("read on a closed socket not recognised")
	}
	if IsClosedConn(ErrListenerClosed) {
		t.Error("ErrListenerClosed is not a socket error")
	}
}
