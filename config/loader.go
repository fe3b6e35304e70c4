package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the NETCHAIN_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).  Lists are
// comma-separated.

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("NETCHAIN_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("NETCHAIN_PORT"); v > 0 {
		cfg.LocalPort = v
	}
	if v := envInt("NETCHAIN_SOURCE_PORT"); v > 0 {
		cfg.SourcePort = v
	}
	if envBool("NETCHAIN_LISTEN") {
		cfg.Listen = true
	}
	if v := os.Getenv("NETCHAIN_BIND"); v != "" {
		cfg.BindAddress = v
	}
	if v := envInt("NETCHAIN_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}

	// Processor
	if v := envInt("NETCHAIN_WORKERS"); v > 0 {
		cfg.Workers = v
	}
	if v := os.Getenv("NETCHAIN_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if envBool("NETCHAIN_REUSE_PORT") {
		cfg.ReusePort = true
	}

	// Authorization
	if v := os.Getenv("NETCHAIN_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("NETCHAIN_ALLOW"); v != "" {
		cfg.Allow = envList(v)
	}
	if v := envInt("NETCHAIN_MAX_MESSAGE"); v > 0 {
		cfg.MaxMessage = v
	}
	if v, ok := os.LookupEnv("NETCHAIN_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Retries = n
		}
	}

	// SSH tunnel
	if v := os.Getenv("NETCHAIN_TUNNEL"); v != "" {
		cfg.TunnelSpec = v
	}
	if v := os.Getenv("NETCHAIN_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("NETCHAIN_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("NETCHAIN_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("NETCHAIN_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("NETCHAIN_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("NETCHAIN_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
	if v := os.Getenv("NETCHAIN_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func envList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
