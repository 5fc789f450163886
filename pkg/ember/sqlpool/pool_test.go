package sqlpool

import (
	"context"
	"testing"
	"time"
)

func TestTryAcquireExhaustion(t *testing.T) {
	p, err := Open(Config{DSN: "user:pass@tcp(127.0.0.1:3306)/db", MaxConns: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	c1, err := p.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}
	c2, err := p.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.TryAcquire(); err != ErrPoolExhausted {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}

	c1.Release()
	c3, err := p.TryAcquire()
	if err != nil {
		t.Fatalf("expected a slot to free up after Release, got %v", err)
	}
	c2.Release()
	c3.Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	p, err := Open(Config{DSN: "user:pass@tcp(127.0.0.1:3306)/db", MaxConns: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	c, err := p.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}
	c.Release()
	c.Release() // must not release the slot twice

	if _, err := p.TryAcquire(); err != nil {
		t.Fatal(err)
	}
}

func TestAcquireBlocksUntilSlotFrees(t *testing.T) {
	p, err := Open(Config{DSN: "user:pass@tcp(127.0.0.1:3306)/db", MaxConns: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	held, err := p.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		held.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := p.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	c.Release()
}

func TestAcquireRespectsContextTimeout(t *testing.T) {
	p, err := Open(Config{DSN: "user:pass@tcp(127.0.0.1:3306)/db", MaxConns: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	held, err := p.TryAcquire()
	if err != nil {
		t.Fatal(err)
	}
	defer held.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}
