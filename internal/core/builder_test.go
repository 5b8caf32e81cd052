package core

import (
	"testing"

	"udpmux/config"
	"udpmux/internal/capability"
	"udpmux/internal/transport"
	"udpmux/util"
)

func TestBuild_Listen(t *testing.T) {
	tests := []struct {
		capability string
		want       string
	}{
		{"echo", "*capability.Echo"},
		{"chat", "*capability.Chat"},
		{"CHAT", "*capability.Chat"},
	}
	for _, tt := range tests {
		t.Run(tt.capability, func(t *testing.T) {
			cfg := config.Default()
			cfg.Listen = true
			cfg.Capability = tt.capability
			cfg.Port = 5000
			cfg.Global = true
			cfg.MaxDatagram = 1500
			cfg.RateLimit = 20
			cfg.RateBurst = 5

			mode, err := Build(cfg, util.NewLogger(0))
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			lm, ok := mode.(*ListenMode)
			if !ok {
				t.Fatalf("mode = %T, want *ListenMode", mode)
			}

			switch lm.Capability.(type) {
			case *capability.Echo:
				if tt.want != "*capability.Echo" {
					t.Errorf("capability = echo, want %s", tt.want)
				}
			case *capability.Chat:
				if tt.want != "*capability.Chat" {
					t.Errorf("capability = chat, want %s", tt.want)
				}
			default:
				t.Errorf("capability = %T", lm.Capability)
			}

			want := transport.UDPConfig{Port: 5000, Global: true, MaxDatagram: 1500, RateLimit: 20, RateBurst: 5}
			if lm.UDP != want {
				t.Errorf("UDP = %+v, want %+v", lm.UDP, want)
			}
			if lm.Metrics == nil || lm.Codec == nil {
				t.Error("listen mode needs metrics and a codec")
			}
		})
	}
}

func TestBuild_UnknownCapability(t *testing.T) {
	cfg := config.Default()
	cfg.Listen = true
	cfg.Capability = "exec"
	if _, err := Build(cfg, util.NewLogger(0)); err == nil {
		t.Fatal("expected error for unknown capability")
	}
}

func TestBuild_Connect(t *testing.T) {
	cfg := config.Default()
	cfg.Host = "chat.example.com"
	cfg.RemotePort = 4242
	cfg.UserName = "alice"

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	cm, ok := mode.(*ConnectMode)
	if !ok {
		t.Fatalf("mode = %T, want *ConnectMode", mode)
	}
	if cm.Address != "chat.example.com:4242" {
		t.Errorf("Address = %q", cm.Address)
	}
	if cm.UserName != "alice" {
		t.Errorf("UserName = %q", cm.UserName)
	}
	if d, ok := cm.Dialer.(*transport.UDPDialer); !ok || d.Timeout != config.DefaultTimeout {
		t.Errorf("Dialer = %#v", cm.Dialer)
	}
}

func TestBuild_ConnectDefaultUser(t *testing.T) {
	t.Setenv("USER", "carol")
	cfg := config.Default()
	cfg.Host = "localhost"
	cfg.RemotePort = 4242

	mode, err := Build(cfg, util.NewLogger(0))
	if err != nil {
		t.Fatal(err)
	}
	if got := mode.(*ConnectMode).UserName; got != "carol" {
		t.Errorf("UserName = %q, want carol", got)
	}
}
