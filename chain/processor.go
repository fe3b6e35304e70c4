package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	ncerr "netchain/internal/errors"
	"netchain/internal/metrics"
	"netchain/internal/reactor"
	"netchain/internal/transport"
	"netchain/util"
)

// Options configures a Processor.
type Options struct {
	// Workers is the number of goroutines draining the reactor.  With
	// one worker every continuation runs serially.  Default 1.
	Workers int

	// Driver selects the transfer driver: "netpoll" (default) or "gaio".
	Driver string

	// Dialer opens outbound connections.  Default: TCP with Timeout.
	Dialer transport.Dialer

	// Timeout bounds the default dialer's connect.  Zero means none.
	Timeout time.Duration

	// SourcePort pins the default dialer's local port.
	SourcePort int

	// BindAddress is the IPv4 address listeners bind.  Default 0.0.0.0.
	BindAddress string

	// ReusePort sets SO_REUSEPORT on listening sockets.
	ReusePort bool

	Logger  *util.Logger
	Metrics *metrics.Collector
}

// Processor owns the execution context every connection and listener
// created through it completes on.
type Processor struct {
	ioc     *reactor.Context
	driver  transport.Driver
	dialer  transport.Dialer
	listen  transport.ListenConfig
	bind    string
	workers int
	logger  *util.Logger
	metrics *metrics.Collector

	mu        sync.Mutex
	started   bool
	stopped   bool
	listeners map[*Listener]struct{}
	wg        sync.WaitGroup
	done      chan struct{} // closed once workers exit and the driver is closed
}

// New builds a Processor.  Workers are not started until Start or Run.
func New(opts Options) (*Processor, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.BindAddress == "" {
		opts.BindAddress = "0.0.0.0"
	}
	if _, err := util.ParseIPv4(opts.BindAddress); err != nil {
		return nil, fmt.Errorf("%w: bind %v", ncerr.ErrInvalidAddress, err)
	}
	if opts.Dialer == nil {
		opts.Dialer = &transport.TCPDialer{Timeout: opts.Timeout, SourcePort: opts.SourcePort}
	}

	ioc := reactor.New(opts.Logger)
	driver, err := transport.NewDriver(opts.Driver, ioc)
	if err != nil {
		return nil, fmt.Errorf("driver %q: %w", opts.Driver, err)
	}

	return &Processor{
		ioc:       ioc,
		driver:    driver,
		dialer:    opts.Dialer,
		listen:    transport.ListenConfig{ReusePort: opts.ReusePort},
		bind:      opts.BindAddress,
		workers:   opts.Workers,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		listeners: make(map[*Listener]struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Start spawns the worker goroutines.  Calling it again is a no-op.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Verbose("processor: starting %d worker(s) on %s driver", p.workers, p.driver.Name())
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.ioc.Run()
		}()
	}
}

// Run starts the processor, blocks until ctx is done, then stops it and
// waits for the teardown to finish.
func (p *Processor) Run(ctx context.Context) error {
	p.Start()
	<-ctx.Done()
	p.Stop()
	p.Wait()
	return nil
}

// Stop closes every listener and tells the workers to return once their
// current task is done.  Queued completions are discarded.  Stop does
// not block, so a continuation or posted task may call it; use Wait to
// block until the workers are gone and the driver is closed.  Stop is
// idempotent.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	listeners := make([]*Listener, 0, len(p.listeners))
	for l := range p.listeners {
		listeners = append(listeners, l)
	}
	p.mu.Unlock()

	for _, l := range listeners {
		l.Close()
	}
	p.ioc.Stop()
	go p.teardown()
}

func (p *Processor) teardown() {
	p.wg.Wait()
	if err := p.driver.Close(); err != nil {
		p.logger.Debug("processor: driver close: %v", err)
	}
	p.logger.Verbose("processor: stopped")
	p.logger.Debug("processor: metrics %s", p.metrics.JSON())
	close(p.done)
}

// Wait blocks until a stopped processor's workers have returned and its
// driver is closed.  It must not be called from a task.
func (p *Processor) Wait() {
	<-p.done
}

// Post schedules task on the processor's execution context.
func (p *Processor) Post(task func()) bool {
	return p.ioc.Post(task)
}

// RunDelayed schedules task to run after d.
func (p *Processor) RunDelayed(d time.Duration, task func()) *reactor.Timer {
	return p.ioc.RunDelayed(d, task)
}

// Context returns the execution context.
func (p *Processor) Context() *reactor.Context { return p.ioc }

// Metrics returns the collector, which may be nil.
func (p *Processor) Metrics() *metrics.Collector { return p.metrics }

// Driver returns the name of the transfer driver in use.
func (p *Processor) Driver() string { return p.driver.Name() }

// CreateConnection is CreateConnectionContext with a background context.
func (p *Processor) CreateConnection(addr string, port int) (*Conn, error) {
	return p.CreateConnectionContext(context.Background(), addr, port)
}

// CreateConnectionContext connects to the IPv4 address addr on port,
// blocking until the handshake completes or fails.  The returned Conn is
// ready for the asynchronous operations.
func (p *Processor) CreateConnectionContext(ctx context.Context, addr string, port int) (*Conn, error) {
	if p.isStopped() {
		return nil, ncerr.ErrProcessorStopped
	}
	ip, err := util.ParseIPv4(addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ncerr.ErrInvalidAddress, err)
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ncerr.ErrInvalidAddress, port)
	}

	target := util.FormatAddr(ip.String(), port)
	p.logger.Debug("connector: dialing %s", target)
	nc, err := p.dialer.Dial(ctx, "tcp4", target)
	if err != nil {
		p.metrics.RecordError(err.Error())
		return nil, ncerr.Wrap("dial", target, err)
	}

	c := newConn(p)
	c.attach(nc)
	p.metrics.ConnectionOpened()
	p.logger.Verbose("connector: connected to %s", target)
	return c, nil
}

// fail delivers err to done through the execution context.  A dropped
// completion still counts as a finished operation.
func (p *Processor) fail(done transport.Completion, err error) {
	if !p.ioc.Post(func() { done(0, err) }) {
		p.metrics.OperationCompleted()
		p.logger.Debug("processor: dropped completion (%v), context stopped", err)
	}
}

func (p *Processor) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *Processor) track(l *Listener) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ncerr.ErrProcessorStopped
	}
	p.listeners[l] = struct{}{}
	return nil
}

func (p *Processor) untrack(l *Listener) {
	p.mu.Lock()
	delete(p.listeners, l)
	p.mu.Unlock()
}
