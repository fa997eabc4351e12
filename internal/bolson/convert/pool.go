package convert

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	bolsonbuffer "github.com/bolson-project/bolson/internal/bolson/buffer"
	"github.com/bolson-project/bolson/internal/bolson/config"
	"github.com/bolson-project/bolson/internal/bolson/latency"
	bolsonmetrics "github.com/bolson-project/bolson/internal/bolson/metrics"
	"github.com/bolson-project/bolson/internal/bolson/model"
	"github.com/bolson-project/bolson/internal/bolson/parse"
	"github.com/bolson-project/bolson/internal/bolson/queue"
	"github.com/bolson-project/bolson/internal/bolson/stats"
)

// Pool owns the fixed set of converter workers and starts them on
// separate goroutines.
type Pool struct {
	workers []*Worker
	group   *errgroup.Group
	results []stats.Worker

	done    chan struct{}
	waitErr error
}

// NewCPUParserFactory returns a ParserFactory that builds a fresh CPU
// parser per worker, sharing the same schema and options.
func NewCPUParserFactory(cols []config.SchemaColumn, cfg config.ConvertConfig) ParserFactory {
	return func() (parse.Parser, error) {
		return parse.NewCPU(cols, cfg)
	}
}

// NewPool constructs numWorkers converter workers reading from in and
// writing to out. If any built parser reports NeedsExclusiveAccess, a
// single shared token channel serializes all such workers' Parse calls.
func NewPool(numWorkers int, buffers *bolsonbuffer.Pool, in *queue.Queue[*bolsonbuffer.Buffer], out *queue.Queue[model.SerializedBatch], factory ParserFactory, maxIPCSize int, sizeHintFraction float64, tracker *latency.Tracker, m *bolsonmetrics.Metrics, live *stats.LiveCounters, pollEvery config.ReceiverConfig) (*Pool, error) {
	if numWorkers < 1 {
		return nil, fmt.Errorf("convert: numWorkers must be >= 1, got %d", numWorkers)
	}
	var exclusiveLock chan struct{}
	p := &Pool{}
	for i := 0; i < numWorkers; i++ {
		parser, err := factory()
		if err != nil {
			return nil, fmt.Errorf("convert: building parser for worker %d: %w", i, err)
		}
		if parser.NeedsExclusiveAccess() && exclusiveLock == nil {
			exclusiveLock = make(chan struct{}, 1)
		}
		var lock chan struct{}
		if parser.NeedsExclusiveAccess() {
			lock = exclusiveLock
		}
		w := NewWorker(i, buffers, in, out, parser, maxIPCSize, sizeHintFraction, tracker, m, live, lock, pollEvery.PollInterval())
		p.workers = append(p.workers, w)
	}
	return p, nil
}

// Start launches every worker on its own goroutine. A worker that reports
// a fatal error returns it to errgroup, which cancels gctx so every
// sibling worker sees ctx.Err() != nil at its next poll and stops too,
// instead of continuing to drain a queue whose consumer has failed.
//
// Start also launches a watcher goroutine that joins the group and closes
// Done, so a caller busy-waiting on some other condition (like the
// supervisor's published-count check) can also wake up the moment the
// pool stops on its own, rather than only on its own ctx.
func (p *Pool) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	p.group = g
	p.results = make([]stats.Worker, len(p.workers))
	p.done = make(chan struct{})
	for i, w := range p.workers {
		i, w := i, w
		g.Go(func() error {
			p.results[i] = w.Run(gctx)
			return p.results[i].Err
		})
	}
	go func() {
		p.waitErr = g.Wait()
		close(p.done)
	}()
}

// Done returns a channel that closes once every worker has exited, whether
// because its input queue drained or because one of them hit a fatal
// error and cancelled the rest.
func (p *Pool) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until every worker has exited and returns their final
// counters plus the first fatal error any of them reported, if any.
func (p *Pool) Wait() ([]stats.Worker, error) {
	<-p.done
	return p.results, p.waitErr
}
