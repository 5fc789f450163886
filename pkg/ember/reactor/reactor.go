// Package reactor drives the single-threaded epoll event loop that owns
// every connection's readiness, dispatching the actual read/parse and
// write/flush work to a workerpool.Pool so the loop thread itself never
// blocks on socket I/O or the SQL-backed Verifier. It is the wiring point
// for buffer, timer, httpx, conn and workerpool: the loop consults the
// timer heap for its next wakeup, demultiplexes readiness with epoll, and
// serializes all connection-table and timer mutations under a single
// mutex, matching the cross-thread command design of a proactor loop like
// socket515-gaio's watcher while keeping the actual I/O synchronous on
// worker goroutines the way shockwave's socket package tunes raw fds.
package reactor

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/yourusername/ember/pkg/ember/conn"
	"github.com/yourusername/ember/pkg/ember/httpx"
	"github.com/yourusername/ember/pkg/ember/timer"
	"github.com/yourusername/ember/pkg/ember/workerpool"
)

// Logger is the minimal surface the reactor needs for its own operational
// warnings (accept errors, epoll_ctl failures) — distinct from the
// per-request access logging that flows through the async record format.
// *slog.Logger satisfies this directly; logx.Logger satisfies it via a
// thin adapter so the reactor's warnings land in the same rolling file as
// everything else.
type Logger interface {
	Warn(msg string, args ...any)
}

// Config parameterizes a Reactor, mirroring the CLI/environment knobs
// called out as in-scope by the external interfaces: port, thread count,
// keep-alive timeout, document root.
type Config struct {
	Addr        string
	DocRoot     string
	Workers     int
	KeepAliveMS int64
	EdgeTrig    bool
	Logger      Logger
	Verifier    httpx.Verifier
}

// Stats are the counters a caller can poll for observability, shaped after
// shockwave's server.Stats (atomics throughout since they're read from
// outside the loop thread).
type Stats struct {
	TotalConnections  atomic.Uint64
	ActiveConnections atomic.Int64
	TotalRequests     atomic.Uint64
	BytesRead         atomic.Uint64
	BytesWritten      atomic.Uint64
	ConnectionErrors  atomic.Uint64
	RequestErrors     atomic.Uint64
}

// Reactor is the event loop, connection table, timer heap and worker pool
// bundled together. Exactly one goroutine ever calls Run; everything else
// (accept, read, write dispatch) either happens on that goroutine or is
// submitted as a workerpool.Task that re-validates ownership before
// touching shared state.
type Reactor struct {
	cfg Config
	log Logger

	pfd      *poller
	listenFd int
	spareFd  int

	mu    sync.Mutex
	conns map[int]*conn.Connection
	freed []*conn.Connection // Connections not currently bound to any fd, reusable by accept

	timers *timer.Heap
	pool   *workerpool.Pool

	Stats Stats

	closing atomic.Bool
	done    chan struct{}
}

// New constructs a Reactor bound to cfg but does not yet open any sockets;
// call Run to do that and block serving until Close is called from another
// goroutine.
func New(cfg Config) *Reactor {
	if cfg.Workers <= 0 {
		cfg.Workers = workerpool.DefaultWorkers
	}
	if cfg.KeepAliveMS <= 0 {
		cfg.KeepAliveMS = conn.DefaultKeepAliveMS
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	r := &Reactor{
		cfg:   cfg,
		log:   log,
		conns: make(map[int]*conn.Connection),
		done:  make(chan struct{}),
	}
	r.timers = timer.New(nil)
	r.pool = workerpool.New(cfg.Workers)
	return r
}

// Run opens the listening socket and the epoll instance, then blocks
// running the event loop (timeout_ms = timer.GetNextTick(); wait; dispatch)
// until Close is called. It returns the error that caused the loop to stop,
// or nil after a clean Close.
func (r *Reactor) Run() error {
	pfd, err := newPoller()
	if err != nil {
		return err
	}
	r.pfd = pfd

	listenFd, err := openListener(r.cfg.Addr)
	if err != nil {
		r.pfd.close()
		return err
	}
	r.listenFd = listenFd
	if err := r.pfd.addRead(r.listenFd); err != nil {
		closeFD(r.listenFd)
		r.pfd.close()
		return err
	}

	spareFd, err := openSpareFD()
	if err != nil {
		r.log.Warn("reactor: failed to reserve spare fd for EMFILE handling", "error", err)
	}
	r.spareFd = spareFd

	events := make([]Event, 256)
	for {
		if r.closing.Load() {
			break
		}
		timeoutMS := r.timers.GetNextTick()
		if timeoutMS < 0 || timeoutMS > 1000 {
			// Never block indefinitely: a 1s ceiling lets Close()'s
			// closing flag be observed promptly even with no timers
			// pending.
			timeoutMS = 1000
		}

		ready, err := r.pfd.wait(events, int(timeoutMS))
		if err != nil {
			return err
		}
		for _, ev := range ready {
			fd := int(ev.Fd)
			switch {
			case fd == r.listenFd:
				r.acceptLoop()
			case ev.Events&eventHangup != 0:
				r.closeFD(fd)
			case ev.Events&eventWritable != 0:
				r.dispatchWrite(fd)
			case ev.Events&eventReadable != 0:
				r.dispatchRead(fd)
			}
		}
	}

	r.shutdown()
	close(r.done)
	return nil
}

// Close requests the loop stop and waits for Run to return. Safe to call
// from any goroutine, at most once meaningfully (subsequent calls are
// no-ops).
func (r *Reactor) Close() {
	if r.closing.Swap(true) {
		return
	}
	<-r.done
}

func (r *Reactor) shutdown() {
	r.pool.Close()
	r.mu.Lock()
	for fd, c := range r.conns {
		_ = c.Close()
		_ = r.pfd.remove(fd)
	}
	r.conns = make(map[int]*conn.Connection)
	r.mu.Unlock()
	if r.spareFd >= 0 {
		closeFD(r.spareFd)
	}
	closeFD(r.listenFd)
	r.pfd.close()
}

// acceptLoop drains the listening socket's backlog (it is edge-triggered,
// so accept must loop until EAGAIN) per the acceptance policy. On EMFILE it
// closes the reserved spare fd to free one descriptor, accepts and
// immediately closes the connection that freed slot let through, then
// reopens the spare.
func (r *Reactor) acceptLoop() {
	for {
		fd, err := acceptOne(r.listenFd)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				return
			}
			if errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
				r.handleEMFILE()
				continue
			}
			r.log.Warn("reactor: accept error", "error", err)
			return
		}
		r.registerConn(fd)
	}
}

func (r *Reactor) handleEMFILE() {
	if r.spareFd < 0 {
		return
	}
	closeFD(r.spareFd)
	if fd, err := acceptOne(r.listenFd); err == nil {
		closeFD(fd)
	}
	spare, err := openSpareFD()
	if err != nil {
		r.log.Warn("reactor: failed to reopen spare fd after EMFILE", "error", err)
		spare = -1
	}
	r.spareFd = spare
}

func (r *Reactor) registerConn(fd int) {
	c := r.acquireConn()
	c.Init(fd, r.cfg.DocRoot, r.cfg.EdgeTrig)

	r.mu.Lock()
	r.conns[fd] = c
	r.mu.Unlock()

	if err := r.pfd.addRead(fd); err != nil {
		r.log.Warn("reactor: epoll_ctl add failed", "fd", fd, "error", err)
		r.closeFD(fd)
		return
	}
	r.timers.Add(fd, r.cfg.KeepAliveMS, func() { r.closeFD(fd) })
	r.Stats.TotalConnections.Add(1)
	r.Stats.ActiveConnections.Add(1)
}

// acquireConn pops a retired Connection for reuse (avoiding per-accept
// allocation under sustained load) or allocates a fresh one.
func (r *Reactor) acquireConn() *conn.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n := len(r.freed); n > 0 {
		c := r.freed[n-1]
		r.freed = r.freed[:n-1]
		return c
	}
	return conn.New()
}

func (r *Reactor) lookup(fd int) (*conn.Connection, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[fd]
	if !ok {
		return nil, 0, false
	}
	return c, c.Generation, true
}

// dispatchRead handles a read-readiness event: extend the idle deadline,
// then hand the actual recv/parse work to the pool so the loop thread never
// blocks on a slow client.
func (r *Reactor) dispatchRead(fd int) {
	c, gen, ok := r.lookup(fd)
	if !ok {
		return
	}
	_ = r.timers.Adjust(fd, r.cfg.KeepAliveMS)
	r.pool.Submit(func() { r.doRead(fd, c, gen) })
}

func (r *Reactor) dispatchWrite(fd int) {
	c, gen, ok := r.lookup(fd)
	if !ok {
		return
	}
	r.pool.Submit(func() { r.doWrite(fd, c, gen) })
}

// doRead runs on a worker goroutine: drain the socket into InBuf until
// EAGAIN, drive the request parser, and on a completed request re-arm fd
// for write. It re-validates fd -> Connection -> Generation before every
// observable effect so a Connection reused (or retired) by a racing Close
// is never touched.
func (r *Reactor) doRead(fd int, c *conn.Connection, gen uint64) {
	for {
		if !r.stillCurrent(fd, c, gen) {
			return
		}
		n, err := c.Read()
		if n > 0 {
			r.Stats.BytesRead.Add(uint64(n))
		}
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				break
			}
			r.Stats.ConnectionErrors.Add(1)
			r.closeFD(fd)
			return
		}
		if n == 0 {
			r.closeFD(fd)
			return
		}
	}

	if !r.stillCurrent(fd, c, gen) {
		return
	}
	done, err := c.Process(r.cfg.Verifier)
	if err != nil {
		r.Stats.RequestErrors.Add(1)
		r.closeFD(fd)
		return
	}
	if !done {
		return
	}
	r.Stats.TotalRequests.Add(1)

	if !r.stillCurrent(fd, c, gen) {
		return
	}
	if err := r.pfd.modifyWrite(fd); err != nil {
		r.closeFD(fd)
	}
}

// doWrite runs on a worker goroutine: flush OutBuf until drained or EAGAIN.
// Once drained, either close (non-keep-alive) or reset for the next request
// and re-arm for read.
func (r *Reactor) doWrite(fd int, c *conn.Connection, gen uint64) {
	for {
		if !r.stillCurrent(fd, c, gen) {
			return
		}
		if c.OutBuf.ReadableBytes() == 0 {
			break
		}
		n, err := c.Write()
		if n > 0 {
			r.Stats.BytesWritten.Add(uint64(n))
		}
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				return // stays armed for write; epoll will refire
			}
			r.Stats.ConnectionErrors.Add(1)
			r.closeFD(fd)
			return
		}
		if n == 0 {
			break
		}
	}

	if !r.stillCurrent(fd, c, gen) {
		return
	}
	if !c.IsKeepAlive {
		r.closeFD(fd)
		return
	}
	c.ReinitForKeepAlive()
	_ = r.timers.Adjust(fd, r.cfg.KeepAliveMS)
	if err := r.pfd.modifyRead(fd); err != nil {
		r.closeFD(fd)
	}
}

// stillCurrent reports whether fd still maps to c at generation gen — the
// generation re-validation the cross-thread command design requires before
// any worker task touches Connection state.
func (r *Reactor) stillCurrent(fd int, c *conn.Connection, gen uint64) bool {
	cur, curGen, ok := r.lookup(fd)
	return ok && cur == c && curGen == gen
}

// closeFD tears down fd: removes it from epoll and the timer heap, closes
// the socket, and retires the Connection for reuse. Safe to call from the
// loop thread or a worker task; the mutex serializes table mutation.
func (r *Reactor) closeFD(fd int) {
	r.mu.Lock()
	c, ok := r.conns[fd]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, fd)
	r.mu.Unlock()

	_ = r.pfd.remove(fd)
	r.timers.Del(fd)
	_ = c.Close()

	r.mu.Lock()
	r.freed = append(r.freed, c)
	r.mu.Unlock()
	r.Stats.ActiveConnections.Add(-1)
}
