package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	ncerr "netchain/internal/errors"
)

// TCPDialer opens direct IPv4 TCP connections for the connector.
type TCPDialer struct {
	Timeout time.Duration

	// SourcePort pins the local port of every connection; 0 lets the
	// kernel choose.
	SourcePort int
}

// Dial connects to address over tcp4.  "tcp" is accepted and narrowed.
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp4" && network != "tcp" {
		return nil, fmt.Errorf("tcp dialer: network %q: %w", network, ncerr.ErrUnsupported)
	}
	nd := net.Dialer{Timeout: d.Timeout}
	if d.SourcePort > 0 {
		nd.LocalAddr = &net.TCPAddr{IP: net.IPv4zero, Port: d.SourcePort}
	}
	return nd.DialContext(ctx, "tcp4", address)
}

// Close implements Dialer.
func (d *TCPDialer) Close() error { return nil }
