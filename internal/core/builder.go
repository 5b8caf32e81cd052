package core

import (
	"fmt"
	"os"
	"strings"

	"udpmux/config"
	"udpmux/internal/capability"
	"udpmux/internal/metrics"
	"udpmux/internal/protocol"
	"udpmux/internal/retry"
	"udpmux/internal/transport"
	"udpmux/util"
)

// Build constructs the appropriate Mode from the given configuration.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildListen(cfg, logger)
	}
	return buildConnect(cfg, logger)
}

// ── mode builders ────────────────────────────────────────────────────

func buildListen(cfg *config.Config, logger *util.Logger) (Mode, error) {
	codec, err := protocol.NewCodec()
	if err != nil {
		return nil, err
	}
	capab, err := buildCapability(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &ListenMode{
		UDP: transport.UDPConfig{
			Port:        cfg.Port,
			Global:      cfg.Global,
			MaxDatagram: int(cfg.MaxDatagram),
			RateLimit:   cfg.RateLimit,
			RateBurst:   cfg.RateBurst,
			ReuseAddr:   cfg.ReuseAddr,
			ReadBuffer:  int(cfg.ReadBuffer),
			WriteBuffer: int(cfg.WriteBuffer),
		},
		Codec:       codec,
		Capability:  capab,
		MetricsAddr: cfg.MetricsAddr,
		GracePeriod: config.DefaultGracePeriod,
		Logger:      logger,
		Metrics:     metrics.New(),
	}, nil
}

func buildConnect(cfg *config.Config, logger *util.Logger) (Mode, error) {
	codec, err := protocol.NewCodec()
	if err != nil {
		return nil, err
	}

	user := cfg.UserName
	if user == "" {
		user = defaultUserName()
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &ConnectMode{
		Dialer:   &transport.UDPDialer{Timeout: cfg.Timeout},
		Address:  util.FormatAddr(cfg.Host, cfg.RemotePort),
		Codec:    codec,
		UserName: user,
		HostName: host,
		Backoff:  retry.DefaultBackoff(),
		Logger:   logger.Named("client"),
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildCapability selects the per-connection behaviour.
func buildCapability(cfg *config.Config, logger *util.Logger) (capability.Capability, error) {
	switch strings.ToLower(cfg.Capability) {
	case config.CapabilityEcho:
		return &capability.Echo{Logger: logger.Named("echo")}, nil
	case config.CapabilityChat, "":
		return &capability.Chat{Logger: logger.Named("chat")}, nil
	default:
		return nil, fmt.Errorf("unknown capability %q", cfg.Capability)
	}
}

func defaultUserName() string {
	for _, k := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return "anonymous"
}
