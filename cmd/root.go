// Package cmd wires up the CLI flags and runs the authorization server
// or client on top of a chain processor.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"netchain/authz"
	"netchain/chain"
	"netchain/config"
	"netchain/internal/metrics"
	"netchain/internal/retry"
	"netchain/internal/transport"
	"netchain/tunnel"
	"netchain/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X netchain/cmd.version=2.0.0"
var version = "0.1.0" //nolint:gochecknoglobals

// stdout receives the client's verdict.  Tests replace it.
var stdout io.Writer = os.Stdout //nolint:gochecknoglobals

// Execute parses args and runs the server or the client.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("netchain", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Run the authorization server")
	fs.IntVarP(&cfg.LocalPort, "port", "p", cfg.LocalPort, "Port to listen on (with -l)")
	fs.StringVar(&cfg.BindAddress, "bind", cfg.BindAddress, "IPv4 address to listen on")
	fs.IntVar(&cfg.SourcePort, "source-port", cfg.SourcePort, "Local port for outbound connections (0 = any)")

	timeoutSec := int(cfg.Timeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Connect timeout in seconds")

	// ── processor ────────────────────────────────────────────────
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Goroutines running continuations")
	fs.StringVar(&cfg.Driver, "driver", cfg.Driver, "Transfer driver: netpoll or gaio")
	fs.BoolVar(&cfg.ReusePort, "reuse-port", cfg.ReusePort, "Set SO_REUSEPORT on the listening socket")

	// ── authorization ────────────────────────────────────────────
	fs.StringVar(&cfg.Name, "name", cfg.Name, "Name the client presents")
	fs.StringSliceVar(&cfg.Allow, "allow", cfg.Allow, "Names the server grants (repeatable)")
	fs.IntVar(&cfg.MaxMessage, "max-message", cfg.MaxMessage, "Largest request the server reads")
	fs.IntVar(&cfg.Retries, "retries", cfg.Retries, "Extra connect attempts for the client")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Connect through SSH gateway [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Write logs to a rotated file instead of stderr")

	var showVersion, showHelp, dryRun bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")
	fs.BoolVar(&dryRun, "dry-run", false, "Validate the configuration and exit")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "netchain %s\n", version)
		return nil
	}

	cfg.Timeout = time.Duration(timeoutSec) * time.Second

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel spec ──────────────────────────────────────────────
	if cfg.TunnelSpec != "" {
		user, host, port, err := config.ParseTunnelSpec(cfg.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		cfg.TunnelEnabled = true
		cfg.TunnelUser = user
		cfg.TunnelHost = host
		cfg.TunnelPort = port
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		return nil
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	if cfg.Verbose >= int(util.LogDebug) {
		logger.SetTimestamps(true)
	}
	if cfg.LogFile != "" {
		sink := util.OpenLogFile(cfg.LogFile)
		defer sink.Close()
		logger.SetOutput(sink)
	}

	opts := chain.Options{
		Workers:     cfg.Workers,
		Driver:      cfg.Driver,
		Timeout:     cfg.Timeout,
		SourcePort:  cfg.SourcePort,
		BindAddress: cfg.BindAddress,
		ReusePort:   cfg.ReusePort,
		Logger:      logger,
		Metrics:     metrics.New(),
	}
	if cfg.TunnelEnabled {
		dialer := transport.NewSSHDialer(&tunnel.SSHConfig{
			User:          cfg.TunnelUser,
			Host:          cfg.TunnelHost,
			Port:          cfg.TunnelPort,
			KeyPath:       cfg.SSHKeyPath,
			PromptPass:    cfg.SSHPassword,
			UseAgent:      cfg.UseSSHAgent,
			StrictHostKey: cfg.StrictHostKey,
			KnownHosts:    cfg.KnownHostsPath,
			ConnTimeout:   cfg.Timeout,
			KeepAlive:     config.DefaultKeepAlive,
		}, logger)
		defer dialer.Close()
		opts.Dialer = dialer
	}

	proc, err := chain.New(opts)
	if err != nil {
		return err
	}

	if cfg.Listen {
		return runServer(ctx, cfg, proc, logger)
	}
	return runClient(ctx, cfg, proc, logger)
}

func runServer(ctx context.Context, cfg *config.Config, proc *chain.Processor, logger *util.Logger) error {
	srv := authz.NewServer(cfg.Allow, cfg.MaxMessage, logger)
	l, err := proc.AddListener(cfg.LocalPort, srv.OnAccept)
	if err != nil {
		proc.Stop()
		proc.Wait()
		return err
	}
	logger.Info("listening on %s (%s driver, %d worker(s))", l.Addr(), proc.Driver(), cfg.Workers)

	err = proc.Run(ctx)
	logger.Info("served %d connection(s): %d granted, %d denied, %d dropped",
		l.Accepted(), srv.Granted(), srv.Denied(), srv.Dropped())
	return err
}

func runClient(ctx context.Context, cfg *config.Config, proc *chain.Processor, logger *util.Logger) error {
	proc.Start()
	defer func() {
		proc.Stop()
		proc.Wait()
	}()

	cl := &authz.Client{
		Processor: proc,
		Name:      cfg.Name,
		Logger:    logger,
		Backoff: &retry.Backoff{
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
			MaxAttempts:  cfg.Retries + 1,
			Jitter:       true,
		},
	}
	if err := cl.Authorize(ctx, cfg.Host, cfg.Port); err != nil {
		return err
	}
	fmt.Fprintln(stdout, authz.ReplyOK)
	return nil
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		switch len(remaining) {
		case 0: // netchain -l -p PORT
		case 1: // netchain -l PORT
			port, err := config.ParsePort(remaining[0])
			if err != nil {
				return fmt.Errorf("port: %w", err)
			}
			cfg.LocalPort = port
		default:
			return fmt.Errorf("too many arguments for listen mode")
		}
		return nil
	}

	switch len(remaining) {
	case 0:
		return fmt.Errorf("server address required (use --help for usage)")
	case 1:
		return fmt.Errorf("port required")
	case 2:
	default:
		return fmt.Errorf("too many arguments: expected <host> <port>")
	}
	cfg.Host = remaining[0]
	port, err := config.ParsePort(remaining[1])
	if err != nil {
		return fmt.Errorf("port %q: %w", remaining[1], err)
	}
	cfg.Port = port
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `netchain – asynchronous TCP authorization demo v%s

Usage:
  netchain -l -p <port> [options]             Run the authorization server
  netchain [options] <ipv4> <port>            Request authorization
  netchain -T user@gateway <ipv4> <port>      Request through an SSH gateway

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  netchain -l -p 65001 --allow auth_name      Grant "auth_name" on 65001
  netchain --workers 4 --driver gaio -l 65001 Four workers on the gaio driver
  netchain 127.0.0.1 65001                    Present the default name
  netchain --name ops -v 10.0.0.5 65001       Present "ops", verbose
`)
}
