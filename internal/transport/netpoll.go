package transport

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"code.hybscloud.com/iox"

	"netchain/internal/reactor"
)

// acceptBackoffMax caps the pause between failing accepts (e.g. EMFILE).
const acceptBackoffMax = time.Second

// NetpollDriver runs each operation as a blocking call on its own
// goroutine, parked by the Go runtime's network poller, and posts the
// completion onto the reactor.
type NetpollDriver struct {
	ioc *reactor.Context

	// accepts tracks per-listener backoff state, keyed by net.Listener.
	accepts sync.Map
}

type acceptState struct {
	mu      sync.Mutex
	bo      iox.Backoff
	failing bool
}

// NewNetpollDriver builds a driver that completes onto ioc.
func NewNetpollDriver(ioc *reactor.Context) *NetpollDriver {
	return &NetpollDriver{ioc: ioc}
}

// Name implements Driver.
func (d *NetpollDriver) Name() string { return DriverNetpoll }

// complete posts done onto the reactor.  A stopped reactor drops it.
func (d *NetpollDriver) complete(done Completion, n int, err error) {
	d.ioc.Post(func() { done(n, err) })
}

// Write implements Driver.
func (d *NetpollDriver) Write(conn net.Conn, buf []byte, done Completion) {
	if len(buf) == 0 {
		d.complete(done, 0, nil)
		return
	}
	go func() {
		n, err := conn.Write(buf)
		if err == nil && n < len(buf) {
			err = io.ErrShortWrite
		}
		d.complete(done, n, err)
	}()
}

// ReadFull implements Driver.
func (d *NetpollDriver) ReadFull(conn net.Conn, buf []byte, done Completion) {
	if len(buf) == 0 {
		d.complete(done, 0, nil)
		return
	}
	go func() {
		n, err := io.ReadFull(conn, buf)
		d.complete(done, n, err)
	}()
}

// ReadAtLeast implements Driver.
func (d *NetpollDriver) ReadAtLeast(conn net.Conn, buf []byte, min int, done Completion) {
	if min <= 0 {
		d.complete(done, 0, nil)
		return
	}
	go func() {
		n, err := io.ReadAtLeast(conn, buf, min)
		d.complete(done, n, err)
	}()
}

// Accept implements Driver.  After a failed accept the next one on the
// same listener is delayed with a growing backoff so a persistent error
// does not spin.
func (d *NetpollDriver) Accept(ln net.Listener, done AcceptCompletion) {
	fresh := &acceptState{}
	fresh.bo.SetMax(acceptBackoffMax)
	v, _ := d.accepts.LoadOrStore(ln, fresh)
	st := v.(*acceptState)

	go func() {
		st.mu.Lock()
		if st.failing {
			st.bo.Wait()
		}
		st.mu.Unlock()

		conn, err := ln.Accept()

		st.mu.Lock()
		switch {
		case err == nil:
			st.failing = false
			st.bo.Reset()
		case errors.Is(err, net.ErrClosed):
			d.accepts.Delete(ln)
		default:
			st.failing = true
		}
		st.mu.Unlock()

		if !d.ioc.Post(func() { done(conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

// Release implements Driver.
func (d *NetpollDriver) Release(conn net.Conn) error {
	return conn.Close()
}

// Close implements Driver.  Goroutines blocked in I/O finish when their
// sockets are released.
func (d *NetpollDriver) Close() error { return nil }
