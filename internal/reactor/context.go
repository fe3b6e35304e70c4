// Package reactor provides the execution context every asynchronous
// netchain operation completes on.
//
// A Context is a FIFO of tasks.  Transfer drivers post completions onto
// it and one or more goroutines drain it with Run.  With a single runner
// every completion executes serially; with several the Context behaves
// like a thread pool and completions for different connections may run
// concurrently.
package reactor

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"netchain/util"
)

// Task is the unit of work a Context executes.
type Task func()

// Context is an unbounded run queue drained by Run.
type Context struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	stopped bool
	runners int
	logger  *util.Logger
}

// New creates a Context.  A nil logger discards panic reports and
// dropped-task notices.
func New(logger *util.Logger) *Context {
	c := &Context{
		tasks:  queue.New(),
		logger: logger,
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Post enqueues task for execution by a runner.  It is safe to call from
// any goroutine, including from inside a running task.  Post reports
// false, and drops the task, once the Context has been stopped.
func (c *Context) Post(task Task) bool {
	if task == nil {
		return false
	}
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	c.tasks.Add(task)
	c.mu.Unlock()
	c.cond.Signal()
	return true
}

// Run executes queued tasks until Stop is called.  Several goroutines
// may call Run on the same Context.
func (c *Context) Run() {
	c.mu.Lock()
	c.runners++
	defer func() {
		c.runners--
		c.mu.Unlock()
	}()

	for {
		for !c.stopped && c.tasks.Length() == 0 {
			c.cond.Wait()
		}
		if c.stopped {
			return
		}
		task := c.tasks.Remove().(Task)

		c.mu.Unlock()
		c.execute(task)
		c.mu.Lock()
	}
}

// Stop makes every Run call return as soon as its current task is done.
// Tasks still queued are discarded.
func (c *Context) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Stopped reports whether Stop has been called.
func (c *Context) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Pending returns the number of queued tasks not yet picked up.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tasks.Length()
}

// Runners returns the number of goroutines currently inside Run.
func (c *Context) Runners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runners
}

// execute runs one task, containing a panic so the runner survives.
// The report carries the panicking goroutine's stack.
func (c *Context) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Zap().Error("[ERR] reactor: task panicked",
				zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	task()
}

// ── Timers ───────────────────────────────────────────────────────────

// Timer is a delayed task created by RunDelayed.
type Timer struct {
	t *time.Timer
}

// Cancel prevents the task from being posted.  It reports false if the
// task has already been handed to the Context.
func (t *Timer) Cancel() bool {
	return t.t.Stop()
}

// RunDelayed posts task after d has elapsed.
func (c *Context) RunDelayed(d time.Duration, task Task) *Timer {
	return &Timer{t: time.AfterFunc(d, func() {
		if !c.Post(task) {
			c.logger.Debug("reactor: delayed task dropped, context stopped")
		}
	})}
}

// String implements fmt.Stringer for log lines.
func (c *Context) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("reactor(pending=%d runners=%d stopped=%v)",
		c.tasks.Length(), c.runners, c.stopped)
}
