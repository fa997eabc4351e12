package buffer

import (
	"context"
	"testing"
	"time"
)

func TestNewPoolRejectsBadArgs(t *testing.T) {
	if _, err := NewPool(0, 16); err == nil {
		t.Error("NewPool with numBuffers=0 should error")
	}
	if _, err := NewPool(2, 0); err == nil {
		t.Error("NewPool with capacity=0 should error")
	}
}

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	p, err := NewPool(2, 8)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if p.Size() != 2 {
		t.Errorf("Size() = %d, want 2", p.Size())
	}

	b, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if p.InUse() != 1 {
		t.Errorf("InUse() = %d, want 1", p.InUse())
	}

	p.Release(b)
	if p.InUse() != 0 {
		t.Errorf("InUse() after Release = %d, want 0", p.InUse())
	}
}

func TestPoolTryAcquireExhaustion(t *testing.T) {
	p, _ := NewPool(1, 8)
	b, ok := p.TryAcquire()
	if !ok || b == nil {
		t.Fatal("TryAcquire on fresh pool should succeed")
	}
	if _, ok := p.TryAcquire(); ok {
		t.Error("TryAcquire on exhausted pool should fail")
	}
	p.Release(b)
	if _, ok := p.TryAcquire(); !ok {
		t.Error("TryAcquire after Release should succeed")
	}
}

func TestPoolAcquireBlocksUntilContextCancelled(t *testing.T) {
	p, _ := NewPool(1, 8)
	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx); err == nil {
		t.Error("Acquire on an exhausted pool should block until ctx is cancelled")
	}
}
