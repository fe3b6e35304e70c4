package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	ncerr "netchain/internal/errors"
	"netchain/util"
)

// ListenerState is the accept loop's state.
type ListenerState int32

const (
	// StateArmed means an accept is outstanding.
	StateArmed ListenerState = iota
	// StateClosed means no further accepts will be issued.
	StateClosed
)

func (s ListenerState) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Listener accepts connections on one port and hands each to the same
// continuation.  It re-arms itself before running that continuation, so
// a slow continuation never holds up the next accept.
type Listener struct {
	proc     *Processor
	ln       net.Listener
	onAccept Continuation

	closed   atomic.Bool
	accepted atomic.Int64
	finished sync.Once
}

// AddListener binds port on the processor's bind address and arms the
// accept loop.  Bind failures, such as a port already in use, are
// returned here; f never sees them.
//
// f receives every accepted connection.  An accept that fails for a
// reason other than the listener closing is also delivered to f, with a
// Conn that holds no socket.
func (p *Processor) AddListener(port int, f Continuation) (*Listener, error) {
	if f == nil {
		return nil, errors.New("chain: nil accept continuation")
	}
	addr := util.FormatAddr(p.bind, port)
	if p.isStopped() {
		return nil, ncerr.ErrProcessorStopped
	}

	ln, err := p.listen.Listen(context.Background(), p.bind, port)
	if err != nil {
		return nil, ncerr.Wrap("listen", addr, err)
	}

	l := &Listener{proc: p, ln: ln, onAccept: f}
	if err := p.track(l); err != nil {
		ln.Close()
		return nil, err
	}
	p.metrics.ListenerOpened()
	p.logger.Verbose("listener: accepting on %s", ln.Addr())

	l.startAccepting()
	return l, nil
}

// startAccepting issues the next accept into a fresh staging Conn, or
// ends the loop once the listener is closed.
func (l *Listener) startAccepting() {
	if l.closed.Load() {
		l.finish()
		return
	}
	staging := newConn(l.proc)
	l.proc.driver.Accept(l.ln, func(nc net.Conn, err error) {
		l.handleAccept(staging, nc, err)
	})
}

// handleAccept re-arms the listener, then runs the continuation for the
// connection that just arrived.
func (l *Listener) handleAccept(c *Conn, nc net.Conn, err error) {
	if nc != nil {
		c.attach(nc)
		l.accepted.Add(1)
		l.proc.metrics.ConnectionAccepted()
	}

	if l.closed.Load() || ncerr.IsClosed(err) {
		c.Shutdown()
		l.finish()
		return
	}
	if err != nil {
		l.proc.logger.Debug("listener %s: accept: %v", l.ln.Addr(), err)
		err = ncerr.Wrap("accept", l.ln.Addr().String(), err)
	} else {
		l.proc.logger.Debug("listener %s: accepted %s", l.ln.Addr(), nc.RemoteAddr())
	}

	c.claim()
	done := wrapContinuation(c, l.onAccept, dirNone)
	l.startAccepting()
	done(0, err)
}

// Close stops the accept loop.  The outstanding accept completes with
// an error that is discarded; f is not invoked again.  Closing a closed
// Listener returns ErrListenerClosed.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return ncerr.ErrListenerClosed
	}
	err := l.ln.Close()
	l.finish()
	return err
}

func (l *Listener) finish() {
	l.finished.Do(func() {
		l.closed.Store(true)
		l.proc.untrack(l)
		l.proc.metrics.ListenerClosed()
		l.proc.logger.Verbose("listener %s: closed after %d connection(s)",
			l.ln.Addr(), l.accepted.Load())
	})
}

// State reports whether the accept loop is still armed.
func (l *Listener) State() ListenerState {
	if l.closed.Load() {
		return StateClosed
	}
	return StateArmed
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Port returns the bound port, useful after binding port 0.
func (l *Listener) Port() int {
	if ta, ok := l.ln.Addr().(*net.TCPAddr); ok {
		return ta.Port
	}
	return 0
}

// Accepted returns how many connections the listener has accepted.
func (l *Listener) Accepted() int64 { return l.accepted.Load() }

func (l *Listener) String() string {
	return fmt.Sprintf("listener(%s, %s)", l.ln.Addr(), l.State())
}
