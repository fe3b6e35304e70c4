package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	ncerr "netchain/internal/errors"
	"netchain/tunnel"
	"netchain/util"
)

// SSHDialer reaches IPv4 targets through a gateway.  The tunnel comes up
// on the first Dial and is brought back up if it has dropped since.
type SSHDialer struct {
	tun    *tunnel.SSHTunnel
	cfg    *tunnel.SSHConfig
	logger *util.Logger

	mu     sync.Mutex
	up     bool
	closed bool
}

// NewSSHDialer returns a dialer for the gateway described by cfg.
func NewSSHDialer(cfg *tunnel.SSHConfig, logger *util.Logger) *SSHDialer {
	return &SSHDialer{tun: tunnel.NewSSHTunnel(cfg, logger), cfg: cfg, logger: logger}
}

func (d *SSHDialer) ensureTunnel(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.closed:
		return ncerr.ErrTunnelClosed
	case d.up && d.tun.IsAlive():
		return nil
	case d.up:
		d.logger.Warn("gateway %s dropped, reconnecting", d.gateway())
	}

	d.logger.Verbose("connecting to gateway %s", d.gateway())
	if err := d.tun.Connect(ctx); err != nil {
		d.up = false
		return fmt.Errorf("gateway: %w", err)
	}
	d.up = true
	return nil
}

func (d *SSHDialer) gateway() string {
	return fmt.Sprintf("%s@%s", d.cfg.User, util.FormatAddr(d.cfg.Host, d.cfg.Port))
}

// Dial forwards a tcp4 connection to address, which must be an IPv4
// host:port.
func (d *SSHDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp4" && network != "tcp" {
		return nil, fmt.Errorf("ssh dialer: network %q: %w", network, ncerr.ErrUnsupported)
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ncerr.ErrInvalidAddress, err)
	}
	if _, err := util.ParseIPv4(host); err != nil {
		return nil, fmt.Errorf("%w: %v", ncerr.ErrInvalidAddress, err)
	}

	if err := d.ensureTunnel(ctx); err != nil {
		return nil, err
	}
	return d.tun.Dial(ctx, "tcp4", address)
}

// Close tears the tunnel down.  Later dials fail with ErrTunnelClosed.
func (d *SSHDialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if !d.up {
		return nil
	}
	d.up = false
	return d.tun.Close()
}
