// Package transport provides the socket-level collaborators of the
// netchain core: dialers that establish outbound connections, the
// listen-socket factory, and the transfer drivers that run reads,
// writes and accepts asynchronously.
//
// Drivers never invoke a completion on the caller's stack.  Every
// completion is posted onto the reactor.Context the driver was built
// with, so a continuation always starts from a fresh task.
package transport

import (
	"context"
	"fmt"
	"net"

	"netchain/internal/reactor"
)

// Dialer opens outbound network connections.  Implementations include
// a plain TCP dialer and an SSH-tunnelled dialer that routes traffic
// through an encrypted gateway.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH session).  Stateless dialers return nil.
	Close() error
}

// Completion receives the outcome of one read or write: the number of
// bytes transferred and the error that ended the transfer, if any.
type Completion func(n int, err error)

// AcceptCompletion receives the outcome of one accept.
type AcceptCompletion func(conn net.Conn, err error)

// Driver runs the buffer-oriented transfer primitives.  Each call
// starts exactly one operation and returns immediately.
type Driver interface {
	// Write transfers all of buf.  It completes with n == len(buf) and
	// a nil error, or with a non-nil error.
	Write(conn net.Conn, buf []byte, done Completion)

	// ReadFull fills buf completely.  End of stream before len(buf)
	// bytes is an error.
	ReadFull(conn net.Conn, buf []byte, done Completion)

	// ReadAtLeast reads into buf until at least min bytes arrived.
	ReadAtLeast(conn net.Conn, buf []byte, min int, done Completion)

	// Accept waits for the next inbound connection on ln.
	Accept(ln net.Listener, done AcceptCompletion)

	// Release closes a socket the driver may have taken over.
	Release(conn net.Conn) error

	// Close stops the driver.  Outstanding operations complete with
	// errors once their sockets are released.
	Close() error

	// Name identifies the driver in logs and configuration.
	Name() string
}

// Driver names accepted by NewDriver.
const (
	DriverNetpoll = "netpoll"
	DriverGaio    = "gaio"
)

// NewDriver builds the named driver on top of ioc.
func NewDriver(name string, ioc *reactor.Context) (Driver, error) {
	switch name {
	case "", DriverNetpoll:
		return NewNetpollDriver(ioc), nil
	case DriverGaio:
		d, err := NewGaioDriver(ioc)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown transfer driver %q", name)
	}
}
