// Package supervisor starts the receiver, converter pool and publisher,
// waits for every published row to catch up with what was received, and
// joins all three stages, aggregating their statistics futures into one
// final report.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	bolsonbuffer "github.com/bolson-project/bolson/internal/bolson/buffer"
	"github.com/bolson-project/bolson/internal/bolson/config"
	"github.com/bolson-project/bolson/internal/bolson/convert"
	"github.com/bolson-project/bolson/internal/bolson/latency"
	bolsonmetrics "github.com/bolson-project/bolson/internal/bolson/metrics"
	"github.com/bolson-project/bolson/internal/bolson/model"
	"github.com/bolson-project/bolson/internal/bolson/publish"
	"github.com/bolson-project/bolson/internal/bolson/queue"
	"github.com/bolson-project/bolson/internal/bolson/receive"
	"github.com/bolson-project/bolson/internal/bolson/stats"
)

// Supervisor wires the three pipeline stages together and drives their
// lifecycle for one run.
type Supervisor struct {
	cfg     *config.Config
	pool    *bolsonbuffer.Pool
	jsonQ   *queue.Queue[*bolsonbuffer.Buffer]
	ipcQ    *queue.Queue[model.SerializedBatch]
	tracker *latency.Tracker
	metrics *bolsonmetrics.Metrics
	live    *stats.LiveCounters

	receiver *receive.Receiver
	convert  *convert.Pool
	pub      *publish.Publisher

	log *slog.Logger
}

// New wires the pipeline stages from cfg but does not start them.
func New(cfg *config.Config, m *bolsonmetrics.Metrics) (*Supervisor, error) {
	pool, err := bolsonbuffer.NewPool(cfg.Receiver.NumBuffers, cfg.Receiver.BufferCapacity)
	if err != nil {
		return nil, err
	}

	jsonQ := queue.New[*bolsonbuffer.Buffer](cfg.Receiver.NumBuffers)
	ipcQ := queue.New[model.SerializedBatch](cfg.Convert.NumWorkers * 2)
	tracker := latency.New()
	live := &stats.LiveCounters{}

	receiver, err := receive.New(cfg.Receiver, pool, jsonQ, tracker, m)
	if err != nil {
		return nil, err
	}

	factory := convert.NewCPUParserFactory(cfg.Schema, cfg.Convert)
	cpool, err := convert.NewPool(cfg.Convert.NumWorkers, pool, jsonQ, ipcQ, factory, cfg.Convert.MaxIPCSize, cfg.Convert.SizeHintFraction, tracker, m, live, cfg.Receiver)
	if err != nil {
		return nil, err
	}

	pub, err := publish.New(publish.Config{
		URL:         cfg.Publish.URL,
		Topic:       cfg.Publish.Topic,
		Tenant:      cfg.Publish.Tenant,
		Namespace:   cfg.Publish.Namespace,
		SendTimeout: cfg.Publish.SendTimeout,
	}, ipcQ, tracker, m, live, cfg.Receiver.PollInterval())
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		cfg:      cfg,
		pool:     pool,
		jsonQ:    jsonQ,
		ipcQ:     ipcQ,
		tracker:  tracker,
		metrics:  m,
		live:     live,
		receiver: receiver,
		convert:  cpool,
		pub:      pub,
		log:      slog.Default().With("component", "supervisor"),
	}, nil
}

// Run drives one end-to-end pipeline lifetime and returns the aggregated
// stats. If inputFile is non-empty, rows are read from that file instead
// of the configured TCP listener, terminating cleanly at EOF; otherwise
// the receiver listens on the network until the connection closes.
// ctx cancellation (SIGINT/SIGTERM) is bolson's external shutdown signal,
// but the pipeline can also stop itself: a fatal error from any converter
// worker or the publisher cancels a pipeline-scoped derivative of ctx, so
// every other stage observes it at its next bounded poll interval instead
// of waiting forever for a busy-wait condition a dropped message can no
// longer satisfy.
func (s *Supervisor) Run(ctx context.Context, inputFile string) (stats.Totals, error) {
	start := time.Now()
	defer s.pub.Close()

	pipelineCtx, cancelPipeline := context.WithCancel(ctx)
	defer cancelPipeline()

	recvErrCh := make(chan error, 1)
	go func() {
		if inputFile != "" {
			recvErrCh <- s.receiver.RunFile(pipelineCtx, inputFile)
		} else {
			recvErrCh <- s.receiver.Run(pipelineCtx)
		}
	}()

	s.convert.Start(pipelineCtx)

	pubDone := make(chan stats.Worker, 1)
	go func() {
		pubDone <- s.pub.Run(pipelineCtx)
	}()

	recvErr := <-recvErrCh
	totalReceived := s.receiver.Rows()

	// Busy-wait until every received row has either been published or
	// dropped as unparseable/oversized, bounded by the same poll interval
	// every other stage uses. Watching only pipelineCtx.Done() here would
	// miss an internal fatal error: errgroup cancels the pool's own
	// derived context, not pipelineCtx itself, so a converter or
	// publisher that stops early on a fatal condition would otherwise
	// leave PublishedCount() permanently short of totalReceived with
	// nothing left to move it. convertDone is watched only until the pool
	// finishes: a normal drain (workers exiting because their queue
	// closed, no error) commonly happens before the publisher catches up
	// on its last few queued batches, and is not itself a reason to stop
	// waiting, so once it fires without error the case is disabled by
	// nil-ing the channel rather than treated as a shutdown signal.
	convertDone := s.convert.Done()
	var pubStats stats.Worker
	pubFinished := false
	poll := s.cfg.Receiver.PollInterval()
waitLoop:
	for recvErr == nil && !pubFinished {
		if s.pub.PublishedCount() >= totalReceived {
			break
		}
		select {
		case pubStats = <-pubDone:
			pubFinished = true
		case <-convertDone:
			if _, convertErr := s.convert.Wait(); convertErr != nil {
				s.log.Warn("converter pool stopped before publishing finished", "received", totalReceived, "published", s.pub.PublishedCount())
				cancelPipeline()
				break waitLoop
			}
			// The pool drained normally. Some received rows may still never
			// reach PublishedCount() — a buffer dropped by a non-fatal parse
			// error produces no SerializedBatch — so closing ipcQ here is
			// what lets the publisher, blocked polling it, notice there is
			// nothing left to ever arrive and return instead of polling
			// forever for a target totalReceived can no longer reach.
			convertDone = nil
			s.ipcQ.Close()
		case <-pipelineCtx.Done():
			s.log.Warn("shutdown before all rows were published", "received", totalReceived, "published", s.pub.PublishedCount())
			break waitLoop
		case <-time.After(poll):
		}
	}

	workerStats, convertErr := s.convert.Wait()
	s.ipcQ.Close()
	if !pubFinished {
		pubStats = <-pubDone
	}

	if convertErr != nil || pubStats.Err != nil {
		cancelPipeline()
	}

	totals := stats.Totals{RowsReceived: totalReceived, NumWorkers: len(workerStats), Duration: time.Since(start)}
	for _, w := range workerStats {
		totals.Merge(w)
	}
	totals.MergePublisher(pubStats)
	totals.Latency = s.tracker.Summarize()
	if d, ok := s.tracker.FirstSeen(s.cfg.Receiver.SeqStart); ok {
		totals.FirstLatency = d
	}

	if totals.Err != nil {
		return totals, totals.Err
	}
	if recvErr != nil && !errors.Is(recvErr, context.Canceled) {
		return totals, recvErr
	}
	return totals, nil
}

// Snapshot implements admin.StatsProvider, exposing live counters while
// the pipeline is still running.
func (s *Supervisor) Snapshot() map[string]any {
	return map[string]any{
		"rows_received":    s.receiver.Rows(),
		"messages_sent":    s.live.Snapshot().MessagesSent,
		"json_queue_depth": s.jsonQ.Len(),
		"ipc_queue_depth":  s.ipcQ.Len(),
		"buffers_in_use":   s.pool.InUse(),
	}
}

// StatsSnapshot implements stats.Provider, giving Sink a best-effort Totals
// while the pipeline is still running. RowsReceived, MessagesSent, and the
// parse/publish counters reflect live atomics; per-thread timings, Duration
// and FirstLatency are only final once Run returns and are left zero here.
func (s *Supervisor) StatsSnapshot() stats.Totals {
	t := s.live.Snapshot()
	t.RowsReceived = s.receiver.Rows()
	t.Latency = s.tracker.Summarize()
	return t
}

// BufferPoolInUse reports how many receive buffers are currently checked
// out, used by the admin surface's readiness check.
func (s *Supervisor) BufferPoolInUse() int { return s.pool.InUse() }

// BufferPoolSize reports the total number of receive buffers.
func (s *Supervisor) BufferPoolSize() int { return s.pool.Size() }
