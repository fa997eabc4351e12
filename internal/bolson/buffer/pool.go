package buffer

import (
	"context"
	"fmt"
)

// Pool owns a fixed set of Buffers, each of the same capacity. It hands
// them out via Acquire and takes them back via Release. If
// the pool size equals the number of converter workers plus one (the
// receiver's current buffer), the pipeline is guaranteed non-blocking at
// the buffer layer so long as the converter keeps draining.
type Pool struct {
	free chan *Buffer
	all  []*Buffer
}

// NewPool preallocates numBuffers buffers of the given capacity.
func NewPool(numBuffers, capacity int) (*Pool, error) {
	if numBuffers < 1 {
		return nil, fmt.Errorf("buffer pool: numBuffers must be >= 1, got %d", numBuffers)
	}
	if capacity < 1 {
		return nil, fmt.Errorf("buffer pool: capacity must be >= 1, got %d", capacity)
	}
	p := &Pool{
		free: make(chan *Buffer, numBuffers),
		all:  make([]*Buffer, numBuffers),
	}
	for i := 0; i < numBuffers; i++ {
		b := newBuffer(i, capacity)
		p.all[i] = b
		p.free <- b
	}
	return p, nil
}

// Size returns the total number of buffers owned by the pool.
func (p *Pool) Size() int {
	return len(p.all)
}

// Acquire blocks until a buffer is available or ctx is cancelled.
func (p *Pool) Acquire(ctx context.Context) (*Buffer, error) {
	select {
	case b := <-p.free:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire returns a buffer immediately if one is free, without blocking.
func (p *Pool) TryAcquire() (*Buffer, bool) {
	select {
	case b := <-p.free:
		return b, true
	default:
		return nil, false
	}
}

// Release resets the buffer and returns it to the free list. Callers must
// not touch the buffer again after releasing it.
func (p *Pool) Release(b *Buffer) {
	b.Reset()
	p.free <- b
}

// InUse returns the number of buffers currently checked out, for the
// bolson_buffer_pool_in_use gauge.
func (p *Pool) InUse() int {
	return len(p.all) - len(p.free)
}
