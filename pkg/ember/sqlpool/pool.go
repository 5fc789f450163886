// Package sqlpool bounds concurrent SQL usage with a counting semaphore (a
// buffered channel of tokens) in front of a database/sql.DB, applied to
// connection checkout. The underlying driver is
// github.com/go-sql-driver/mysql, imported for its side-effecting
// registration with database/sql.
package sqlpool

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// ErrPoolExhausted is returned by TryAcquire when no slot is free.
var ErrPoolExhausted = errors.New("sqlpool: pool exhausted")

// Pool wraps a *sql.DB with an explicit admission semaphore of MaxConns,
// independent of database/sql's own internal pooling, so the reactor's
// Verifier can observe exhaustion (PoolExhausted) rather than blocking the
// caller indefinitely. The semaphore is a buffered channel of tokens: easy
// to select on alongside a context's Done channel, unlike a condvar.
type Pool struct {
	db *sql.DB

	sem      chan struct{}
	maxConns int

	mu     sync.Mutex
	closed bool
}

// Config describes how to reach the backing MySQL instance and how many
// concurrent checkouts to admit.
type Config struct {
	DSN      string
	MaxConns int
}

// Open dials the database (lazily, per database/sql semantics — the first
// real network activity happens on first use) and returns a Pool bounding
// concurrent checkouts to cfg.MaxConns.
func Open(cfg Config) (*Pool, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 8
	}
	db.SetMaxOpenConns(maxConns)

	p := &Pool{db: db, maxConns: maxConns, sem: make(chan struct{}, maxConns)}
	for i := 0; i < maxConns; i++ {
		p.sem <- struct{}{}
	}
	return p, nil
}

// Conn is a checked-out handle; Release must be called on every successful
// Acquire/TryAcquire, on all exit paths (including panics recovered higher
// up), to keep the semaphore accurate. Calls after the first are no-ops.
type Conn struct {
	pool *sql.DB
	p    *Pool
	once sync.Once
}

// DB exposes the underlying *sql.DB for queries while the semaphore slot is
// held.
func (c *Conn) DB() *sql.DB { return c.pool }

// Release returns the semaphore slot. Safe to call more than once; only the
// first call has effect.
func (c *Conn) Release() {
	c.once.Do(func() {
		c.p.sem <- struct{}{}
	})
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errors.New("sqlpool: pool closed")
	}
	select {
	case <-p.sem:
		return &Conn{pool: p.db, p: p}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire returns ErrPoolExhausted immediately rather than blocking,
// which is what verify_user's "PoolExhausted" error kind models: the
// caller observes a null handle and returns false rather than waiting.
func (p *Pool) TryAcquire() (*Conn, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errors.New("sqlpool: pool closed")
	}
	select {
	case <-p.sem:
		return &Conn{pool: p.db, p: p}, nil
	default:
		return nil, ErrPoolExhausted
	}
}

// AcquireTimeout is a convenience wrapper around Acquire with a
// context.WithTimeout, used by callers (like auth.Verifier) that want a
// bounded wait rather than an unbounded block or an immediate failure.
func (p *Pool) AcquireTimeout(d time.Duration) (*Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return p.Acquire(ctx)
}

// Close marks the pool closed and closes the underlying *sql.DB. Any
// Acquire already blocked in select will only return once its ctx expires
// or a slot frees up and is observed before the next Acquire checks closed;
// callers are expected to be winding down by the time Close runs.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.db.Close()
}
