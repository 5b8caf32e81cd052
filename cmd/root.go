// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"udpmux/config"
	"udpmux/internal/core"
	"udpmux/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X udpmux/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the appropriate udpmux mode.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()

	// ── file and environment layers ──────────────────────────────
	path := configPath(args)
	if path != "" {
		if err := config.LoadFile(path, cfg); err != nil {
			return err
		}
	}
	config.LoadFromEnv(cfg)
	layeredVerbose := cfg.Verbose

	// Flags are declared with the layered values as their defaults, so
	// an explicit flag always wins.
	fs := flag.NewFlagSet("udpmux", flag.ContinueOnError)

	// ── mode ─────────────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Listen mode")
	fs.StringVarP(&cfg.Capability, "mode", "m", cfg.Capability, "Listener behaviour: echo or chat")

	// ── listener ─────────────────────────────────────────────────
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Local port number (0 = any)")
	fs.BoolVarP(&cfg.Global, "global", "g", cfg.Global, "Bind all interfaces instead of loopback")
	fs.Var(&cfg.MaxDatagram, "max-datagram", "Largest datagram accepted, e.g. 1500 or 64KiB")
	fs.Float64Var(&cfg.RateLimit, "rate", cfg.RateLimit, "Per-peer datagrams per second (0 = unlimited)")
	fs.IntVar(&cfg.RateBurst, "burst", cfg.RateBurst, "Per-peer burst allowance")
	fs.BoolVar(&cfg.ReuseAddr, "reuse-addr", cfg.ReuseAddr, "Set SO_REUSEADDR on the socket")
	fs.Var(&cfg.ReadBuffer, "read-buffer", "Socket receive buffer size (0 = OS default)")
	fs.Var(&cfg.WriteBuffer, "write-buffer", "Socket send buffer size (0 = OS default)")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve Prometheus metrics on host:port")

	// ── client ───────────────────────────────────────────────────
	fs.StringVarP(&cfg.UserName, "user", "u", cfg.UserName, "Chat user name (default $USER)")
	fs.DurationVarP(&cfg.Timeout, "timeout", "w", cfg.Timeout, "Dial timeout")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Validate and print the configuration, then exit")

	var showVersion, showHelp bool
	var cfgFile string
	fs.StringVar(&cfgFile, "config", path, "YAML configuration file ($UDPMUX_CONFIG)")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = layeredVerbose
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("udpmux %s\n", version)
		return nil
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DryRun {
		return printConfig(os.Stdout, cfg)
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	mode, err := core.Build(cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// configPath finds --config before the real parse, since the file's
// values become flag defaults.  Parse errors are left for the full
// flag set to report.
func configPath(args []string) string {
	pre := flag.NewFlagSet("udpmux", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}

	var path string
	pre.StringVar(&path, "config", config.ConfigPathFromEnv(), "")
	_ = pre.Parse(args)
	return path
}

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		switch len(remaining) {
		case 0: // udpmux -l [-p PORT]
		case 1:
			port, err := parsePort(remaining[0])
			if err != nil {
				return err
			}
			cfg.Port = port
		default:
			return fmt.Errorf("too many arguments for listen mode")
		}
		return nil
	}

	// Connect mode: host port.  Both may come from the environment or
	// the config file instead.
	switch len(remaining) {
	case 0:
	case 2:
		port, err := parsePort(remaining[1])
		if err != nil {
			return err
		}
		cfg.RemotePort = port
		fallthrough
	case 1:
		cfg.Host = remaining[0]
	default:
		return fmt.Errorf("too many arguments: expected <host> <port>")
	}
	return nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func printConfig(w io.Writer, cfg *config.Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "# udpmux %s: configuration is valid\n%s", version, out)
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `udpmux – multiplexed UDP chat server and client v%s

One UDP socket, many peers: every remote address gets its own ordered
session, accepted like a stream connection.

Usage:
  udpmux -l [-p <port>] [options]             Listen
  udpmux [options] <host> <port>              Connect

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  Every option can be set as UDPMUX_<NAME>, e.g. UDPMUX_PORT=5000,
  UDPMUX_MAX_DATAGRAM=8KiB.  Flags win over the environment, which
  wins over the --config file.

Examples:
  udpmux -l -p 4242 -m chat                   Chat room on loopback
  udpmux -lg -p 4242 --metrics-addr :9100     Public room with metrics
  udpmux -u alice localhost 4242              Join a room
`)
}
