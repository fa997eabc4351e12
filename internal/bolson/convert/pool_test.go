package convert

import (
	"context"
	"testing"
	"time"

	bolsonbuffer "github.com/bolson-project/bolson/internal/bolson/buffer"
	"github.com/bolson-project/bolson/internal/bolson/config"
	"github.com/bolson-project/bolson/internal/bolson/latency"
	"github.com/bolson-project/bolson/internal/bolson/model"
	"github.com/bolson-project/bolson/internal/bolson/queue"
)

func TestNewPoolRejectsZeroWorkers(t *testing.T) {
	pool, _ := bolsonbuffer.NewPool(1, 64)
	in := queue.New[*bolsonbuffer.Buffer](1)
	out := queue.New[model.SerializedBatch](1)
	factory := NewCPUParserFactory(nil, config.ConvertConfig{})

	if _, err := NewPool(0, pool, in, out, factory, 1<<20, 0.9, latency.New(), nil, nil, config.ReceiverConfig{PollIntervalUs: 1000}); err == nil {
		t.Error("NewPool with numWorkers=0 should error")
	}
}

func TestPoolStartAndWaitDrainsAllBuffers(t *testing.T) {
	cols := []config.SchemaColumn{{Name: "id", Type: "int64"}}
	bufPool, err := bolsonbuffer.NewPool(4, 4096)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	in := queue.New[*bolsonbuffer.Buffer](4)
	out := queue.New[model.SerializedBatch](8)
	factory := NewCPUParserFactory(cols, config.ConvertConfig{UnexpectedFieldBehavior: config.FieldIgnore})

	pool, err := NewPool(2, bufPool, in, out, factory, 1<<20, 0.9, latency.New(), nil, nil, config.ReceiverConfig{PollIntervalUs: 5000})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 3; i++ {
		buf, err := bufPool.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		buf.Append([]byte(`{"id":1}` + "\n"))
		buf.Range.First, buf.Range.Last = uint64(i), uint64(i)
		if err := in.Put(context.Background(), buf); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	in.Close()

	results, err := pool.Wait()
	cancel()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (one per worker)", len(results))
	}
	var totalParsed uint64
	for _, r := range results {
		totalParsed += r.RowsParsed
	}
	if totalParsed != 3 {
		t.Errorf("total RowsParsed = %d, want 3", totalParsed)
	}

	published := 0
	for {
		if _, ok, _ := out.TimedGet(20 * time.Millisecond); ok {
			published++
			continue
		}
		break
	}
	if published != 3 {
		t.Errorf("published messages = %d, want 3", published)
	}
}

func TestPoolDoneClosesWhenAWorkerHitsAFatalError(t *testing.T) {
	cols := []config.SchemaColumn{{Name: "id", Type: "int64"}}
	bufPool, err := bolsonbuffer.NewPool(2, 4096)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	in := queue.New[*bolsonbuffer.Buffer](2)
	out := queue.New[model.SerializedBatch](2)
	factory := NewCPUParserFactory(cols, config.ConvertConfig{UnexpectedFieldBehavior: config.FieldIgnore})

	// A tiny maxIPCSize guarantees even a single row cannot fit, forcing
	// the worker to report a fatal error.
	pool, err := NewPool(1, bufPool, in, out, factory, 1, 0.9, latency.New(), nil, nil, config.ReceiverConfig{PollIntervalUs: 1000})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	buf, err := bufPool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	buf.Append([]byte(`{"id":1}` + "\n"))
	buf.Range.First, buf.Range.Last = 0, 0
	if err := in.Put(context.Background(), buf); err != nil {
		t.Fatalf("Put: %v", err)
	}

	select {
	case <-pool.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done did not close after a worker's fatal error")
	}

	results, err := pool.Wait()
	if err == nil {
		t.Error("Wait should report the fatal error surfaced by the worker")
	}
	var sawErr bool
	for _, r := range results {
		if r.Err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Error("no worker result carries the fatal error")
	}
}

func TestPoolInstallsNoExclusiveLockForCPUParser(t *testing.T) {
	// The CPU parser factory reports NeedsExclusiveAccess=false; NewPool
	// must not give any of its workers a shared token channel.
	bufPool, _ := bolsonbuffer.NewPool(1, 64)
	in := queue.New[*bolsonbuffer.Buffer](1)
	out := queue.New[model.SerializedBatch](1)

	factory := NewCPUParserFactory(nil, config.ConvertConfig{})
	pool, err := NewPool(3, bufPool, in, out, factory, 1<<20, 0.9, latency.New(), nil, nil, config.ReceiverConfig{PollIntervalUs: 1000})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	if len(pool.workers) != 3 {
		t.Fatalf("len(workers) = %d, want 3", len(pool.workers))
	}
	// The CPU parser never needs exclusive access, so no worker should have
	// a lock channel installed.
	for _, w := range pool.workers {
		if w.exclusive != nil {
			t.Error("CPU-backed workers should not share an exclusive-access lock")
		}
	}
}
