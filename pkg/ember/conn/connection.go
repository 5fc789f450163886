// Package conn implements the per-connection state driven by the reactor:
// an fd, its in/out buffers, the HTTP request parser and response, and the
// keep-alive flag. A Connection is exclusively owned by the reactor's
// connection table; the only destruction path is explicit Close.
package conn

import (
	"syscall"

	"github.com/yourusername/ember/pkg/ember/buffer"
	"github.com/yourusername/ember/pkg/ember/httpx"
)

// DefaultKeepAliveMS is the idle timeout extended on every read event,
// matching the Keep-Alive header's "timeout=120" advertised by
// httpx.BuildResponse.
const DefaultKeepAliveMS = 120_000

// Connection holds everything the reactor and its worker pool need to drive
// one HTTP/1.1 socket through repeated request/response cycles.
//
// Ownership: exactly one Connection exists per live fd, held in the
// reactor's connection table. A pending worker task holds only the fd (and
// Generation at submit time), not a pointer into this struct's mutable
// parts while they might be concurrently reset by Close — generation
// re-validation before use is what makes that safe (see package reactor).
type Connection struct {
	FD            int
	Generation    uint64 // bumped on every Init/Close, invalidates stale tasks
	InBuf         *buffer.Buffer
	OutBuf        *buffer.Buffer
	Request       *httpx.Request
	IsKeepAlive   bool
	IsEdgeTrig    bool
	DocRoot       string
	open          bool
}

// New allocates a Connection; call Init to bind it to a live fd before use.
func New() *Connection {
	return &Connection{
		InBuf:  buffer.New(),
		OutBuf: buffer.New(),
		Request: httpx.NewRequest(),
	}
}

// Init (re)binds the Connection to fd, resetting buffers and parser and
// bumping Generation so any task still referencing the previous occupant of
// this struct observes a mismatch and becomes a no-op.
func (c *Connection) Init(fd int, docRoot string, edgeTriggered bool) {
	c.FD = fd
	c.Generation++
	c.InBuf.RetrieveAll()
	c.OutBuf.RetrieveAll()
	c.Request.Reset()
	c.IsKeepAlive = false
	c.IsEdgeTrig = edgeTriggered
	c.DocRoot = docRoot
	c.open = true
}

// ReinitForKeepAlive resets the request/response state for the next
// request on the same fd, without touching FD or Generation, after a
// keep-alive response has fully drained.
func (c *Connection) ReinitForKeepAlive() {
	c.InBuf.RetrieveAll()
	c.OutBuf.RetrieveAll()
	c.Request.Reset()
}

// Open reports whether Init has been called more recently than Close.
func (c *Connection) Open() bool { return c.open }

// Read drains the socket into InBuf. Under edge-triggered readiness the
// caller must loop calling Read until it returns syscall.EAGAIN; Read
// itself performs exactly one ReadFD call per invocation so the caller
// controls the EAGAIN loop (and can interleave with EAGAIN detection
// cleanly rather than hiding it here).
func (c *Connection) Read() (int, error) {
	return c.InBuf.ReadFD(c.FD)
}

// Write flushes OutBuf to the socket. As with Read, one WriteFD call per
// invocation; the caller loops under ET semantics until EAGAIN or drained.
func (c *Connection) Write() (int, error) {
	return c.OutBuf.WriteFD(c.FD)
}

// Process drives the request parser over InBuf and, once a request is
// fully parsed, resolves its path against DocRoot and builds the response
// into OutBuf. It returns true if the request finished parsing (whether or
// not the response indicates success), false if more input is needed.
// verifier is threaded through to httpx.Request.Parse for the auth side
// effect on /login.html and /register.html.
func (c *Connection) Process(verifier httpx.Verifier) (bool, error) {
	if err := c.Request.Parse(c.InBuf, verifier); err != nil {
		c.IsKeepAlive = false
		return true, httpx.BuildResponse(c.OutBuf, "", false, httpx.StatusBadRequest)
	}
	if !c.Request.Done() {
		return false, nil
	}

	c.IsKeepAlive = c.Request.IsKeepAlive()
	full, status := httpx.Resolve(c.DocRoot, c.Request.Path)
	if err := httpx.BuildResponse(c.OutBuf, full, c.IsKeepAlive, status); err != nil {
		return true, err
	}
	return true, nil
}


// Close releases the fd. It bumps Generation first so concurrently-running
// worker tasks that still reference this fd observe the mismatch on their
// next table lookup and exit as no-ops, per the Design Notes' callback
// re-validation requirement.
func (c *Connection) Close() error {
	if !c.open {
		return nil
	}
	c.open = false
	c.Generation++
	fd := c.FD
	c.FD = -1
	return syscall.Close(fd)
}
