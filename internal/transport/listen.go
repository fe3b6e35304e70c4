package transport

import (
	"context"
	"net"
	"strconv"
)

// ListenConfig creates IPv4 TCP listen sockets.
type ListenConfig struct {
	// ReusePort sets SO_REUSEPORT so several processes can bind the
	// same port.
	ReusePort bool
}

// Listen binds host:port.  An empty host binds every IPv4 interface.
func (lc ListenConfig) Listen(ctx context.Context, host string, port int) (net.Listener, error) {
	nlc := net.ListenConfig{}
	if lc.ReusePort {
		if err := reusePortControl(&nlc); err != nil {
			return nil, err
		}
	}
	return nlc.Listen(ctx, "tcp4", net.JoinHostPort(host, strconv.Itoa(port)))
}
