// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a netchain processor.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a processor.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	accepted          atomic.Int64
	listenersActive   atomic.Int64
	opsInFlight       atomic.Int64
	opsCompleted      atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ConnectionAccepted records an inbound connection.  It also counts as
// an opened connection.
func (c *Collector) ConnectionAccepted() {
	if c == nil {
		return
	}
	c.accepted.Add(1)
	c.ConnectionOpened()
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// TotalAccepted returns the lifetime count of accepted connections.
func (c *Collector) TotalAccepted() int64 {
	if c == nil {
		return 0
	}
	return c.accepted.Load()
}

// ── Listener metrics ─────────────────────────────────────────────────

// ListenerOpened records a newly armed listener.
func (c *Collector) ListenerOpened() {
	if c == nil {
		return
	}
	c.listenersActive.Add(1)
}

// ListenerClosed records a listener that stopped accepting.
func (c *Collector) ListenerClosed() {
	if c == nil {
		return
	}
	c.listenersActive.Add(-1)
}

// ActiveListeners returns the number of armed listeners.
func (c *Collector) ActiveListeners() int64 {
	if c == nil {
		return 0
	}
	return c.listenersActive.Load()
}

// ── Operation metrics ────────────────────────────────────────────────

// OperationStarted records an asynchronous operation being issued.
func (c *Collector) OperationStarted() {
	if c == nil {
		return
	}
	c.opsInFlight.Add(1)
}

// OperationCompleted records a completion delivered to a continuation.
func (c *Collector) OperationCompleted() {
	if c == nil {
		return
	}
	c.opsInFlight.Add(-1)
	c.opsCompleted.Add(1)
}

// InFlight returns the number of operations awaiting completion.
func (c *Collector) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.opsInFlight.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	Accepted          int64  `json:"accepted"`
	ListenersActive   int64  `json:"listeners_active"`
	OpsInFlight       int64  `json:"ops_in_flight"`
	OpsCompleted      int64  `json:"ops_completed"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	ErrorsTotal       int64  `json:"errors_total"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		Accepted:          c.accepted.Load(),
		ListenersActive:   c.listenersActive.Load(),
		OpsInFlight:       c.opsInFlight.Load(),
		OpsCompleted:      c.opsCompleted.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
