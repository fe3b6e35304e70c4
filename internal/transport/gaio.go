//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package transport

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/xtaci/gaio"

	"netchain/internal/reactor"
)

// GaioDriver runs reads and writes on a gaio proactor: one watcher
// goroutine multiplexes every socket through epoll/kqueue instead of
// parking a goroutine per operation.  Accepts still use the netpoll
// path since gaio only handles established connections.
type GaioDriver struct {
	*NetpollDriver

	w    *gaio.Watcher
	done chan struct{}

	mu      sync.Mutex
	pending map[net.Conn]map[*gaioRequest]struct{}
}

// gaioRequest is carried through gaio as the operation context.  A read
// may be resubmitted until min bytes have arrived.  settled flips once,
// either in the completion loop or in Release; the loser drops its
// result.
type gaioRequest struct {
	conn    net.Conn
	buf     []byte
	min     int
	got     int
	done    Completion
	settled atomic.Bool
}

// NewGaioDriver starts a watcher whose completions are posted onto ioc.
func NewGaioDriver(ioc *reactor.Context) (*GaioDriver, error) {
	w, err := gaio.NewWatcher()
	if err != nil {
		return nil, err
	}
	d := &GaioDriver{
		NetpollDriver: NewNetpollDriver(ioc),
		w:             w,
		done:          make(chan struct{}),
		pending:       make(map[net.Conn]map[*gaioRequest]struct{}),
	}
	go d.loop()
	return d, nil
}

// Name implements Driver.
func (d *GaioDriver) Name() string { return DriverGaio }

// track registers req as outstanding on its conn.
func (d *GaioDriver) track(req *gaioRequest) {
	d.mu.Lock()
	set := d.pending[req.conn]
	if set == nil {
		set = make(map[*gaioRequest]struct{})
		d.pending[req.conn] = set
	}
	set[req] = struct{}{}
	d.mu.Unlock()
}

// settle claims req for completion.  It reports false if req was
// already completed elsewhere.
func (d *GaioDriver) settle(req *gaioRequest) bool {
	if !req.settled.CompareAndSwap(false, true) {
		return false
	}
	d.mu.Lock()
	if set := d.pending[req.conn]; set != nil {
		delete(set, req)
		if len(set) == 0 {
			delete(d.pending, req.conn)
		}
	}
	d.mu.Unlock()
	return true
}

// finish settles req and posts its completion.
func (d *GaioDriver) finish(req *gaioRequest, n int, err error) {
	if d.settle(req) {
		d.complete(req.done, n, err)
	}
}

func (d *GaioDriver) loop() {
	defer close(d.done)
	for {
		results, err := d.w.WaitIO()
		if err != nil {
			return
		}
		for _, res := range results {
			req, ok := res.Context.(*gaioRequest)
			if !ok {
				continue
			}
			switch res.Operation {
			case gaio.OpWrite:
				err := res.Error
				if err == nil && res.Size < len(req.buf) {
					err = io.ErrShortWrite
				}
				d.complete(req.done, res.Size, err)
			case gaio.OpRead:
				d.onRead(res, req)
			}
		}
	}
}

func (d *GaioDriver) onRead(res gaio.OpResult, req *gaioRequest) {
	if req.settled.Load() {
		return
	}
	req.got += res.Size
	err := res.Error
	if err == nil && res.Size == 0 {
		err = io.EOF
	}
	if err == nil && req.got < req.min {
		if rerr := d.w.Read(req, res.Conn, req.buf[req.got:]); rerr != nil {
			d.finish(req, req.got, rerr)
		}
		return
	}
	if err == io.EOF && req.got > 0 && req.got < req.min {
		err = io.ErrUnexpectedEOF
	}
	if req.got >= req.min {
		err = nil
	}
	d.finish(req, req.got, err)
}

// Write implements Driver.
func (d *GaioDriver) Write(conn net.Conn, buf []byte, done Completion) {
	if len(buf) == 0 {
		d.complete(done, 0, nil)
		return
	}
	req := &gaioRequest{conn: conn, buf: buf, done: done}
	d.track(req)
	if err := d.w.Write(req, conn, buf); err != nil {
		d.finish(req, 0, err)
	}
}

// ReadFull implements Driver.
func (d *GaioDriver) ReadFull(conn net.Conn, buf []byte, done Completion) {
	d.ReadAtLeast(conn, buf, len(buf), done)
}

// ReadAtLeast implements Driver.
func (d *GaioDriver) ReadAtLeast(conn net.Conn, buf []byte, min int, done Completion) {
	switch {
	case min <= 0:
		d.complete(done, 0, nil)
		return
	case min > len(buf):
		d.complete(done, 0, io.ErrShortBuffer)
		return
	}
	req := &gaioRequest{conn: conn, buf: buf, min: min, done: done}
	d.track(req)
	if err := d.w.Read(req, conn, buf); err != nil {
		d.finish(req, 0, err)
	}
}

// Release implements Driver.  gaio works on a duplicate of the socket
// descriptor, so both the watcher's copy and conn itself are closed.
// Pending operations complete with net.ErrClosed; whatever gaio reports
// for them afterwards is dropped.
func (d *GaioDriver) Release(conn net.Conn) error {
	d.mu.Lock()
	set := d.pending[conn]
	delete(d.pending, conn)
	d.mu.Unlock()
	for req := range set {
		if req.settled.CompareAndSwap(false, true) {
			d.complete(req.done, 0, net.ErrClosed)
		}
	}

	ferr := d.w.Free(conn)
	if err := conn.Close(); err != nil {
		return err
	}
	return ferr
}

// Close stops the watcher and waits for its loop to exit.
func (d *GaioDriver) Close() error {
	err := d.w.Close()
	<-d.done
	return err
}
