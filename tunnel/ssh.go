package tunnel

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "netchain/internal/errors"
	"netchain/util"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// KeepAlive is the interval between keepalive@openssh.com requests.
	// A failed request marks the tunnel dead.  Zero disables keepalives.
	KeepAlive time.Duration

	// Auth, when set, replaces the methods BuildAuthMethods derives from
	// the fields above.
	Auth []ssh.AuthMethod
}

// SSHTunnel implements [Tunnel] by opening an SSH connection and
// forwarding TCP connections over direct-tcpip channels.
type SSHTunnel struct {
	config *SSHConfig
	client *ssh.Client
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
	closed bool
}

// NewSSHTunnel creates a tunnel that is ready to [Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: cfg, logger: logger}
}

// Connect dials the SSH gateway and completes the handshake.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	authMethods := t.config.Auth
	if len(authMethods) == 0 {
		var err error
		if authMethods, err = BuildAuthMethods(t.config); err != nil {
			return ncerr.WrapSSH("auth", t.config.Host, t.config.Port, err)
		}
	}

	verify, err := hostKeyCallback(t.config)
	if err != nil {
		return ncerr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}
	var hostKeyErr error
	sshCfg := &ssh.ClientConfig{
		User: t.config.User,
		Auth: authMethods,
		HostKeyCallback: func(host string, remote net.Addr, key ssh.PublicKey) error {
			hostKeyErr = verify(host, remote, key)
			return hostKeyErr
		},
		Timeout: t.config.ConnTimeout,
	}

	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
	t.logger.Debug("SSH: dialing %s as %s", addr, t.config.User)

	// Use a context-aware TCP dial so callers can cancel.
	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		switch {
		case hostKeyErr != nil:
			return ncerr.WrapSSH("hostkey", t.config.Host, t.config.Port, hostKeyErr)
		case strings.Contains(err.Error(), "unable to authenticate"):
			err = fmt.Errorf("%w: %v", ncerr.ErrAuthFailed, err)
		}
		return ncerr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	done := make(chan struct{})

	t.mu.Lock()
	t.client = client
	t.alive = true
	t.closed = false
	t.mu.Unlock()

	go t.monitor(client, done)
	if t.config.KeepAlive > 0 {
		go t.keepalive(client, done)
	}
	return nil
}

// Dial opens a direct-tcpip channel to address.  Only TCP networks are
// supported.  The returned conn is not a kernel socket.
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4", "tcp6":
	default:
		return nil, fmt.Errorf("tunnel dial: network %q: %w", network, ncerr.ErrUnsupported)
	}

	t.mu.RLock()
	client, alive, closed := t.client, t.alive, t.closed
	t.mu.RUnlock()

	switch {
	case closed || (client != nil && !alive):
		return nil, ncerr.ErrTunnelClosed
	case client == nil:
		return nil, ncerr.ErrNotConnected
	}

	t.logger.Debug("tunnel: dialing %s %s", network, address)

	type dialed struct {
		conn net.Conn
		err  error
	}
	ch := make(chan dialed, 1)
	go func() {
		conn, err := client.Dial(network, address)
		ch <- dialed{conn, err}
	}()

	select {
	case d := <-ch:
		if d.err != nil {
			return nil, fmt.Errorf("tunnel dial %s: %w", address, d.err)
		}
		return d.conn, nil
	case <-ctx.Done():
		// Close the channel if it opens after all.
		go func() {
			if d := <-ch; d.conn != nil {
				d.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	t.closed = true
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// markDead clears the alive flag if client is still the current one.
func (t *SSHTunnel) markDead(client *ssh.Client) {
	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (t *SSHTunnel) monitor(client *ssh.Client, done chan struct{}) {
	err := client.Wait()
	close(done)
	t.markDead(client)

	if err != nil {
		t.logger.Debug("SSH tunnel closed: %v", err)
	} else {
		t.logger.Debug("SSH tunnel closed")
	}
}

// keepalive pings the gateway until the connection ends.  A failed
// ping closes the client, which ends monitor too.
func (t *SSHTunnel) keepalive(client *ssh.Client, done chan struct{}) {
	ticker := time.NewTicker(t.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				t.logger.Warn("SSH keepalive failed: %v", err)
				t.markDead(client)
				client.Close()
				return
			}
			t.logger.Debug("SSH keepalive OK")
		}
	}
}
