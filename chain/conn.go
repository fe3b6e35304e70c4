// Package chain is an asynchronous TCP task-chaining layer.
//
// A Conn pairs one socket with one byte buffer.  It is handed into an
// asynchronous operation together with a Continuation; when the
// transfer completes the buffer is trimmed to the bytes actually moved
// and the continuation receives the Conn back, ready to issue the next
// operation or to shut the connection down.
//
//	proc.AddListener(9000, func(c *chain.Conn, err error) {
//		if err != nil {
//			c.Shutdown()
//			return
//		}
//		chain.AsyncReadAtLeast(c, onRequest, 1, 1024)
//	})
//
// Ownership passes with the *Conn: after calling an operation the
// caller must not touch the Conn until the continuation runs.  Issuing
// a second operation while one is outstanding panics.
package chain

import (
	"net"
	"runtime"
	"sync/atomic"

	ncerr "netchain/internal/errors"
	"netchain/internal/metrics"
	"netchain/internal/transport"
)

// Continuation receives a Conn back from a completed operation.  err is
// nil on success; transport failures arrive here as values.
type Continuation func(c *Conn, err error)

// Conn is a connection record: an exclusively owned socket plus the
// buffer the next operation reads into or writes from.
type Conn struct {
	// Data is the transfer buffer.  AsyncWrite sends all of it; the read
	// operations size it before reading and trim it to the byte count
	// before the continuation runs.
	Data []byte

	proc     *Processor
	sock     *socket
	inflight atomic.Bool
}

// socket is the part of a Conn the cleanup may touch.  It must not
// point back to the Conn or the cleanup would never run.
type socket struct {
	conn    net.Conn
	driver  transport.Driver
	metrics *metrics.Collector
	closed  atomic.Bool
}

// shutdown half-closes both directions and releases the socket.  Errors
// are discarded.
func (s *socket) shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if tc, ok := s.conn.(*net.TCPConn); ok {
		_ = tc.CloseRead()
		_ = tc.CloseWrite()
	}
	_ = s.driver.Release(s.conn)
	s.metrics.ConnectionClosed()
}

func newConn(p *Processor) *Conn {
	return &Conn{proc: p}
}

// attach binds an established socket to c.  A Conn that is dropped
// without Shutdown has its socket closed when it is collected.
func (c *Conn) attach(nc net.Conn) {
	s := &socket{conn: nc, driver: c.proc.driver, metrics: c.proc.metrics}
	c.sock = s
	runtime.AddCleanup(c, func(s *socket) { s.shutdown() }, s)
}

// Shutdown gracefully closes the socket.  It is idempotent and safe on
// a Conn that never received a socket.  It is the one method that may be
// called while an operation is outstanding: doing so cancels it, and
// the operation completes with an error.
func (c *Conn) Shutdown() {
	if c == nil || c.sock == nil {
		return
	}
	c.sock.shutdown()
}

// IsOpen reports whether c holds a socket that has not been shut down.
func (c *Conn) IsOpen() bool {
	return c != nil && c.sock != nil && !c.sock.closed.Load()
}

// RemoteAddr returns the peer address, or nil without a socket.
func (c *Conn) RemoteAddr() net.Addr {
	if c.sock == nil {
		return nil
	}
	return c.sock.conn.RemoteAddr()
}

// LocalAddr returns the local address, or nil without a socket.
func (c *Conn) LocalAddr() net.Addr {
	if c.sock == nil {
		return nil
	}
	return c.sock.conn.LocalAddr()
}

// Socket exposes the underlying connection for options such as
// deadlines.  Reading or writing it directly bypasses the chain.
func (c *Conn) Socket() net.Conn {
	if c.sock == nil {
		return nil
	}
	return c.sock.conn
}

// resize sets len(c.Data) to n.  Bytes exposed by growing are zeroed.
func (c *Conn) resize(n int) {
	old := len(c.Data)
	if n <= cap(c.Data) {
		c.Data = c.Data[:n]
	} else {
		grown := make([]byte, n)
		copy(grown, c.Data)
		c.Data = grown
		return
	}
	if n > old {
		clear(c.Data[old:n])
	}
}

// claim marks an operation as outstanding.
func (c *Conn) claim() {
	if !c.inflight.CompareAndSwap(false, true) {
		panic("chain: " + ncerr.ErrConnInFlight.Error())
	}
}

// usable returns the error an operation on c must fail with, or nil.
func (c *Conn) usable() error {
	switch {
	case c.sock == nil:
		return ncerr.ErrNotConnected
	case c.sock.closed.Load():
		return ncerr.ErrConnClosed
	}
	return nil
}
