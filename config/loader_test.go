package config

import (
	"os"
	"reflect"
	"testing"
	"time"
)

func TestLoadFromEnv_Host(t *testing.T) {
	t.Setenv("NETCHAIN_HOST", "10.1.2.3")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.Host != "10.1.2.3" {
		t.Errorf("Host = %q, want %q", cfg.Host, "10.1.2.3")
	}
}

func TestLoadFromEnv_Port(t *testing.T) {
	t.Setenv("NETCHAIN_PORT", "65001")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.LocalPort != 65001 {
		t.Errorf("LocalPort = %d, want 65001", cfg.LocalPort)
	}
}

func TestLoadFromEnv_Booleans(t *testing.T) {
	tests := []struct {
		key    string
		values []string
		get    func(*Config) bool
	}{
		{"NETCHAIN_LISTEN", []string{"1", "true", "yes", "TRUE", "Yes"}, func(c *Config) bool { return c.Listen }},
		{"NETCHAIN_REUSE_PORT", []string{"1", "true"}, func(c *Config) bool { return c.ReusePort }},
		{"NETCHAIN_SSH_AGENT", []string{"yes"}, func(c *Config) bool { return c.UseSSHAgent }},
	}

	for _, tt := range tests {
		for _, v := range tt.values {
			t.Run(tt.key+"="+v, func(t *testing.T) {
				t.Setenv(tt.key, v)
				cfg := &Config{}
				LoadFromEnv(cfg)
				if !tt.get(cfg) {
					t.Errorf("%s=%s should enable the option", tt.key, v)
				}
			})
		}
	}
}

func TestLoadFromEnv_Timeout(t *testing.T) {
	t.Setenv("NETCHAIN_TIMEOUT", "10")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %v, want 10s", cfg.Timeout)
	}
}

func TestLoadFromEnv_Processor(t *testing.T) {
	t.Setenv("NETCHAIN_WORKERS", "4")
	t.Setenv("NETCHAIN_DRIVER", "gaio")
	t.Setenv("NETCHAIN_BIND", "127.0.0.1")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Workers)
	}
	if cfg.Driver != "gaio" {
		t.Errorf("Driver = %q, want gaio", cfg.Driver)
	}
	if cfg.BindAddress != "127.0.0.1" {
		t.Errorf("BindAddress = %q", cfg.BindAddress)
	}
}

func TestLoadFromEnv_Authorization(t *testing.T) {
	t.Setenv("NETCHAIN_NAME", "ops")
	t.Setenv("NETCHAIN_ALLOW", "ops, auth_name,,deploy ")
	t.Setenv("NETCHAIN_MAX_MESSAGE", "256")
	t.Setenv("NETCHAIN_RETRIES", "0")

	cfg := Default()
	LoadFromEnv(cfg)

	if cfg.Name != "ops" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if want := []string{"ops", "auth_name", "deploy"}; !reflect.DeepEqual(cfg.Allow, want) {
		t.Errorf("Allow = %v, want %v", cfg.Allow, want)
	}
	if cfg.MaxMessage != 256 {
		t.Errorf("MaxMessage = %d", cfg.MaxMessage)
	}
	if cfg.Retries != 0 {
		t.Errorf("Retries = %d, want 0 (explicitly disabled)", cfg.Retries)
	}
}

func TestLoadFromEnv_SSHFields(t *testing.T) {
	t.Setenv("NETCHAIN_TUNNEL", "admin@bastion:2222")
	t.Setenv("NETCHAIN_SSH_KEY", "/home/user/.ssh/id_rsa")
	t.Setenv("NETCHAIN_SSH_PASSWORD", "true")
	t.Setenv("NETCHAIN_SSH_AGENT", "1")
	t.Setenv("NETCHAIN_STRICT_HOSTKEY", "yes")
	t.Setenv("NETCHAIN_KNOWN_HOSTS", "/custom/known_hosts")

	cfg := &Config{}
	LoadFromEnv(cfg)

	if cfg.TunnelSpec != "admin@bastion:2222" {
		t.Errorf("TunnelSpec = %q", cfg.TunnelSpec)
	}
	if cfg.SSHKeyPath != "/home/user/.ssh/id_rsa" {
		t.Errorf("SSHKeyPath = %q", cfg.SSHKeyPath)
	}
	if !cfg.SSHPassword {
		t.Error("SSHPassword should be true")
	}
	if !cfg.UseSSHAgent {
		t.Error("UseSSHAgent should be true")
	}
	if !cfg.StrictHostKey {
		t.Error("StrictHostKey should be true")
	}
	if cfg.KnownHostsPath != "/custom/known_hosts" {
		t.Errorf("KnownHostsPath = %q", cfg.KnownHostsPath)
	}
}

func TestLoadFromEnv_NoOverrideWhenEmpty(t *testing.T) {
	// Ensure no NETCHAIN_ vars are set.
	os.Clearenv()

	cfg := &Config{Host: "original", LocalPort: 1234, Retries: 3}
	LoadFromEnv(cfg)

	if cfg.Host != "original" {
		t.Errorf("Host was overridden: %q", cfg.Host)
	}
	if cfg.LocalPort != 1234 {
		t.Errorf("LocalPort was overridden: %d", cfg.LocalPort)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries was overridden: %d", cfg.Retries)
	}
}

func TestLoadFromEnv_InvalidIntIgnored(t *testing.T) {
	t.Setenv("NETCHAIN_PORT", "not-a-number")
	t.Setenv("NETCHAIN_RETRIES", "-2")
	cfg := &Config{Retries: 3}
	LoadFromEnv(cfg)
	if cfg.LocalPort != 0 {
		t.Errorf("LocalPort should be 0 for invalid input, got %d", cfg.LocalPort)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries should ignore negative input, got %d", cfg.Retries)
	}
}

func TestLoadFromEnv_Verbose(t *testing.T) {
	t.Setenv("NETCHAIN_VERBOSE", "3")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.Verbose != 3 {
		t.Errorf("Verbose = %d, want 3", cfg.Verbose)
	}
}

func TestLoadFromEnv_LogFile(t *testing.T) {
	t.Setenv("NETCHAIN_LOG_FILE", "/var/log/netchain.log")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.LogFile != "/var/log/netchain.log" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}
}

func TestLoadFromEnv_SourcePort(t *testing.T) {
	t.Setenv("NETCHAIN_SOURCE_PORT", "40000")
	cfg := &Config{}
	LoadFromEnv(cfg)
	if cfg.SourcePort != 40000 {
		t.Errorf("SourcePort = %d, want 40000", cfg.SourcePort)
	}
}
