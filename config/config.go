// Package config defines the runtime configuration for netchain and
// provides helpers for parsing ports and tunnel specifications.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	ncerr "netchain/internal/errors"
	"netchain/internal/transport"
	"netchain/util"
)

// Config holds every tuneable for one netchain run.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host        string // client mode: IPv4 address of the server
	Port        int    // client mode: server port
	LocalPort   int    // -p: port the server listens on
	SourcePort  int    // client mode: fixed local port, 0 = any
	Listen      bool
	BindAddress string
	Timeout     time.Duration

	// ── Processor ────────────────────────────────────────────────────
	Workers   int
	Driver    string
	ReusePort bool

	// ── Authorization ────────────────────────────────────────────────
	Name       string   // client: name sent to the server
	Allow      []string // server: names granted access
	MaxMessage int
	Retries    int
	RetryDelay time.Duration

	// ── SSH tunnel ───────────────────────────────────────────────────
	TunnelSpec     string // raw user@host[:port] from -T
	TunnelEnabled  bool
	TunnelUser     string
	TunnelHost     string
	TunnelPort     int
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
	LogFile string // empty → stderr
}

// Default returns a Config populated from defaults.go.
func Default() *Config {
	return &Config{
		BindAddress: DefaultBindAddress,
		Timeout:     DefaultConnTimeout,
		Workers:     DefaultWorkers,
		Driver:      DefaultDriver,
		Name:        DefaultAuthName,
		Allow:       []string{DefaultAuthName},
		MaxMessage:  DefaultMaxMessage,
		Retries:     DefaultRetries,
		RetryDelay:  DefaultRetryDelay,
		TunnelPort:  DefaultSSHPort,
	}
}

// ── Port helpers ─────────────────────────────────────────────────────

// ParsePort accepts a decimal port in 1-65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q – expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	if host == "" {
		return "", "", 0, fmt.Errorf("tunnel host is required")
	}
	return user, host, port, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
// Failures are *errors.ConfigError values naming the offending flag.
func (c *Config) Validate() error {
	if c.Listen {
		if c.LocalPort < 1 || c.LocalPort > 65535 {
			return &ncerr.ConfigError{
				Field: "port", Value: nilIfZero(c.LocalPort),
				Message: "listen mode requires a port in 1-65535",
				Hint:    "netchain -l -p 65001",
			}
		}
		if c.TunnelEnabled {
			return &ncerr.ConfigError{
				Field:   "tunnel",
				Message: "the SSH tunnel only applies to outbound connections",
			}
		}
		if len(c.Allow) == 0 {
			return &ncerr.ConfigError{
				Field:   "allow",
				Message: "listen mode needs at least one allowed name",
				Hint:    "--allow auth_name",
			}
		}
		if _, err := util.ParseIPv4(c.BindAddress); err != nil {
			return &ncerr.ConfigError{Field: "bind", Value: c.BindAddress, Message: "must be an IPv4 address"}
		}
	} else {
		if c.Host == "" {
			return &ncerr.ConfigError{
				Field:   "host",
				Message: "server address is required (use --help for usage)",
				Hint:    "netchain 127.0.0.1 65001",
			}
		}
		if _, err := util.ParseIPv4(c.Host); err != nil {
			return &ncerr.ConfigError{
				Field: "host", Value: c.Host,
				Message: "must be an IPv4 address",
				Hint:    "host names are not resolved",
			}
		}
		if c.Port < 1 || c.Port > 65535 {
			return &ncerr.ConfigError{Field: "port", Value: nilIfZero(c.Port), Message: "destination port is required"}
		}
		if c.Name == "" {
			return &ncerr.ConfigError{Field: "name", Message: "must not be empty"}
		}
		if c.SourcePort < 0 || c.SourcePort > 65535 {
			return &ncerr.ConfigError{Field: "source-port", Value: c.SourcePort, Message: "must be in 0-65535"}
		}
		if c.SourcePort != 0 && c.TunnelEnabled {
			return &ncerr.ConfigError{
				Field: "source-port", Value: c.SourcePort,
				Message: "does not apply to tunnelled connections",
			}
		}
	}

	if c.Workers < 1 {
		return &ncerr.ConfigError{Field: "workers", Value: c.Workers, Message: "must be at least 1"}
	}
	switch c.Driver {
	case "", transport.DriverNetpoll, transport.DriverGaio:
	default:
		return &ncerr.ConfigError{
			Field: "driver", Value: c.Driver,
			Message: "unknown transfer driver",
			Hint:    "use netpoll or gaio",
		}
	}
	if c.MaxMessage < 1 {
		return &ncerr.ConfigError{Field: "max-message", Value: c.MaxMessage, Message: "must be at least 1"}
	}
	if c.Retries < 0 {
		return &ncerr.ConfigError{Field: "retries", Value: c.Retries, Message: "must not be negative"}
	}
	if c.TunnelEnabled && c.TunnelHost == "" {
		return &ncerr.ConfigError{Field: "tunnel", Value: c.TunnelSpec, Message: "tunnel host is required"}
	}
	if c.TunnelEnabled && c.Driver == transport.DriverGaio {
		return &ncerr.ConfigError{
			Field: "driver", Value: c.Driver,
			Message: "tunnelled connections are not kernel sockets",
			Hint:    "use --driver netpoll with --tunnel",
		}
	}
	return nil
}

func nilIfZero(v int) interface{} {
	if v == 0 {
		return nil
	}
	return v
}
