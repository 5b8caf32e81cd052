package config

// loader.go - configuration loading from files and environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (LoadFromEnv)
//   3. YAML config file  (LoadFile, --config or UDPMUX_CONFIG)
//   4. Defaults   (defaults.go)

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	ierrors "udpmux/internal/errors"
)

// LoadFile overlays the YAML document at path onto cfg.  Keys absent
// from the file leave cfg untouched; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	return parseYAML(data, path, cfg)
}

func parseYAML(data []byte, source string, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil // empty file
		}
		return &ierrors.ConfigError{
			Field:   "config",
			Value:   source,
			Message: err.Error(),
			Hint:    "see udpmux --help for the accepted keys",
		}
	}
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the UDPMUX_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Malformed numbers are
// ignored.

// ConfigPathFromEnv returns UDPMUX_CONFIG, the default for --config.
func ConfigPathFromEnv() string {
	return os.Getenv(EnvPrefix + "CONFIG")
}

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if envBool("LISTEN") {
		cfg.Listen = true
	}
	if v := env("MODE"); v != "" {
		cfg.Capability = strings.ToLower(v)
	}

	// Listener
	if v, ok := envInt("PORT"); ok {
		cfg.Port = v
	}
	if envBool("GLOBAL") {
		cfg.Global = true
	}
	if v, ok := envSize("MAX_DATAGRAM"); ok {
		cfg.MaxDatagram = v
	}
	if v, ok := envFloat("RATE"); ok {
		cfg.RateLimit = v
	}
	if v, ok := envInt("BURST"); ok {
		cfg.RateBurst = v
	}
	if envBool("REUSE_ADDR") {
		cfg.ReuseAddr = true
	}
	if v, ok := envSize("READ_BUFFER"); ok {
		cfg.ReadBuffer = v
	}
	if v, ok := envSize("WRITE_BUFFER"); ok {
		cfg.WriteBuffer = v
	}
	if v := env("METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}

	// Client
	if v := env("HOST"); v != "" {
		cfg.Host = v
	}
	if v, ok := envInt("REMOTE_PORT"); ok {
		cfg.RemotePort = v
	}
	if v := env("USER"); v != "" {
		cfg.UserName = v
	}
	if v, ok := envDuration("TIMEOUT"); ok {
		cfg.Timeout = v
	}

	// Output
	if v, ok := envInt("VERBOSE"); ok && v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}

func envInt(key string) (int, bool) {
	n, err := strconv.Atoi(env(key))
	return n, err == nil
}

func envFloat(key string) (float64, bool) {
	f, err := strconv.ParseFloat(env(key), 64)
	return f, err == nil
}

func envBool(key string) bool {
	v := strings.ToLower(env(key))
	return v == "1" || v == "true" || v == "yes"
}

func envSize(key string) (ByteSize, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	b, err := ParseByteSize(v)
	return b, err == nil
}

// envDuration accepts Go durations ("1500ms") or whole seconds ("5").
func envDuration(key string) (time.Duration, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	if sec, err := strconv.Atoi(v); err == nil {
		return time.Duration(sec) * time.Second, true
	}
	d, err := time.ParseDuration(v)
	return d, err == nil
}
