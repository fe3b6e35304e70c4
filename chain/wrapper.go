package chain

import (
	"code.hybscloud.com/kont"

	"netchain/internal/reactor"
	"netchain/internal/transport"
)

type direction int

const (
	dirNone direction = iota
	dirIn
	dirOut
)

// outcome is what a transfer driver reports.
type outcome struct {
	n   int
	err error
}

// wrapContinuation adapts f to the driver's completion shape.  The
// returned completion may fire once; the buffer is trimmed to the byte
// count before f sees the Conn.
func wrapContinuation(c *Conn, f Continuation, dir direction) transport.Completion {
	m := c.proc.metrics
	m.OperationStarted()

	k := kont.Once(func(o outcome) struct{} {
		c.resize(o.n)
		c.inflight.Store(false)

		m.OperationCompleted()
		switch dir {
		case dirIn:
			m.BytesReceived(int64(o.n))
		case dirOut:
			m.BytesSent(int64(o.n))
		}
		if o.err != nil {
			m.RecordError(o.err.Error())
		}

		var task reactor.Task = func() { f(c, o.err) }
		task()
		return struct{}{}
	})
	return func(n int, err error) { k.Resume(outcome{n, err}) }
}
