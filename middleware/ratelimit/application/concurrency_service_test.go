package application

import (
	"context"
	"errors"
	"testing"
	"time"
)

// waitingPool never has a free slot; it only returns when ctx ends.
type waitingPool struct {
	deadline time.Time
	hadDL    bool
}

func (p *waitingPool) Acquire(ctx context.Context) (func(), bool) {
	p.deadline, p.hadDL = ctx.Deadline()
	<-ctx.Done()
	return nil, false
}

type freePool struct {
	acquired, released int
}

func (p *freePool) Acquire(context.Context) (func(), bool) {
	p.acquired++
	return func() { p.released++ }, true
}

func TestConcurrencyService_Acquire_AllowsWhenNoPool(t *testing.T) {
	release, ok := ConcurrencyService{}.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	release()
}

func TestConcurrencyService_Acquire_BoundsWaitByTimeout(t *testing.T) {
	pool := &waitingPool{}
	svc := ConcurrencyService{Pool: pool, AcquireTimeout: 10 * time.Millisecond}

	start := time.Now()
	if _, ok := svc.Acquire(context.Background()); ok {
		t.Fatalf("expected ok=false after the timeout")
	}
	if !pool.hadDL {
		t.Fatalf("expected the pool to see a deadline")
	}
	if waited := time.Since(start); waited > time.Second {
		t.Fatalf("waited %s, expected about 10ms", waited)
	}
}

func TestConcurrencyService_Acquire_WithoutTimeoutFollowsCaller(t *testing.T) {
	pool := &waitingPool{}
	svc := ConcurrencyService{Pool: pool}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := svc.Acquire(ctx); ok {
		t.Fatalf("expected ok=false for a cancelled caller")
	}
	if pool.hadDL {
		t.Fatalf("expected no deadline to be added without AcquireTimeout")
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatalf("unexpected ctx state: %v", ctx.Err())
	}
}

func TestConcurrencyService_Acquire_ReturnsPoolRelease(t *testing.T) {
	pool := &freePool{}
	release, ok := ConcurrencyService{Pool: pool, AcquireTimeout: time.Second}.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	release()
	if pool.acquired != 1 || pool.released != 1 {
		t.Fatalf("expected one acquire and one release, got %d/%d", pool.acquired, pool.released)
	}
}
