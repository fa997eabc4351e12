// Package convert runs the converter worker pool: each worker repeatedly
// drains a filled buffer from the shared JSON queue, parses it, splits it
// to respect the IPC size ceiling, serializes each piece, and hands the
// result to the publish queue.
package convert

import (
	"context"
	"errors"
	"log/slog"
	"time"

	bolsonbuffer "github.com/bolson-project/bolson/internal/bolson/buffer"
	bolsonerrors "github.com/bolson-project/bolson/internal/bolson/errors"
	"github.com/bolson-project/bolson/internal/bolson/latency"
	bolsonmetrics "github.com/bolson-project/bolson/internal/bolson/metrics"
	"github.com/bolson-project/bolson/internal/bolson/model"
	"github.com/bolson-project/bolson/internal/bolson/parse"
	"github.com/bolson-project/bolson/internal/bolson/queue"
	"github.com/bolson-project/bolson/internal/bolson/resize"
	"github.com/bolson-project/bolson/internal/bolson/serialize"
	"github.com/bolson-project/bolson/internal/bolson/stats"
	"github.com/bolson-project/bolson/internal/bolson/tracing"
)

// ParserFactory builds a fresh Parser instance for one worker. Each worker
// owns its Parser exclusively for its lifetime.
type ParserFactory func() (parse.Parser, error)

// Worker owns one Parser, Resizer and Serializer and runs the drain loop.
type Worker struct {
	id         int
	buffers    *bolsonbuffer.Pool
	in         *queue.Queue[*bolsonbuffer.Buffer]
	out        *queue.Queue[model.SerializedBatch]
	parser     parse.Parser
	resizer    *resize.Resizer
	serializer *serialize.Serializer
	tracker    *latency.Tracker
	metrics    *bolsonmetrics.Metrics
	live       *stats.LiveCounters // nil in tests that don't need a running snapshot
	exclusive  chan struct{}       // non-nil when parser.NeedsExclusiveAccess
	pollEvery  time.Duration
	log        *slog.Logger

	stats stats.Worker
}

// NewWorker constructs a converter worker. exclusiveLock is shared across
// every worker whose parser reports NeedsExclusiveAccess, and is nil for
// parsers that may run fully in parallel. live, if non-nil, receives the
// same counters as the returned stats.Worker but is safe to read from
// another goroutine while Run is still executing.
func NewWorker(id int, buffers *bolsonbuffer.Pool, in *queue.Queue[*bolsonbuffer.Buffer], out *queue.Queue[model.SerializedBatch], parser parse.Parser, maxIPCSize int, sizeHintFraction float64, tracker *latency.Tracker, m *bolsonmetrics.Metrics, live *stats.LiveCounters, exclusiveLock chan struct{}, pollEvery time.Duration) *Worker {
	return &Worker{
		id:         id,
		buffers:    buffers,
		in:         in,
		out:        out,
		parser:     parser,
		resizer:    resize.New(maxIPCSize, sizeHintFraction),
		serializer: serialize.New(maxIPCSize),
		tracker:    tracker,
		metrics:    m,
		live:       live,
		exclusive:  exclusiveLock,
		pollEvery:  pollEvery,
		log:        slog.Default().With("component", "convert", "worker", id),
		stats:      stats.Worker{ID: id},
	}
}

// Run drains buffers until the input queue is closed and empty, ctx is
// cancelled as an emergency stop, or process reports a fatal error: an
// oversized row or an IPC encoding failure means the run as a whole cannot
// satisfy its output contract, so the worker stops rather than silently
// dropping the offending rows and continuing.
func (w *Worker) Run(ctx context.Context) (ws stats.Worker) {
	threadStart := time.Now()
	defer func() {
		w.stats.ThreadDuration = time.Since(threadStart)
		ws = w.stats
	}()
	for {
		if ctx.Err() != nil {
			return w.stats
		}
		buf, ok, open := w.in.TimedGet(w.pollEvery)
		if !ok {
			if !open {
				return w.stats
			}
			continue
		}
		if err := w.process(ctx, buf); err != nil {
			w.stats.Err = err
			return w.stats
		}
	}
}

func (w *Worker) process(ctx context.Context, buf *bolsonbuffer.Buffer) error {
	defer w.buffers.Release(buf)

	var span *tracing.Span
	if w.log.Enabled(ctx, slog.LevelDebug) {
		ctx, span = tracing.StartSpan(ctx, "convert", buf.Range.String())
		defer span.Log(w.log)
		defer span.End()
	}

	if w.exclusive != nil {
		w.exclusive <- struct{}{}
	}
	var parseSpan *tracing.Span
	if span != nil {
		_, parseSpan = tracing.StartChildSpan(ctx, "parse")
	}
	parseStart := time.Now()
	parsed, err := w.parser.Parse([]*bolsonbuffer.Buffer{buf})
	w.stats.ParseDuration += time.Since(parseStart)
	if parseSpan != nil {
		parseSpan.SetAttr("batches", len(parsed))
		parseSpan.End()
	}
	if w.exclusive != nil {
		<-w.exclusive
	}
	if err != nil {
		w.handleParseFailure(buf, err)
		return nil
	}

	for _, pb := range parsed {
		w.tracker.RecordParsed(pb.Range.First, time.Now())
		w.stats.RowsParsed += pb.Range.Count()
		if w.live != nil {
			w.live.AddParsed(pb.Range.Count())
		}

		var resizeSpan *tracing.Span
		if span != nil {
			_, resizeSpan = tracing.StartChildSpan(ctx, "resize")
		}
		resized, err := w.resizer.Resize(pb)
		pb.Release()
		if resizeSpan != nil {
			resizeSpan.End()
		}
		if err != nil {
			w.stats.OversizedErrors++
			if w.live != nil {
				w.live.AddOversizedError()
			}
			if w.metrics != nil {
				w.metrics.ParseErrorsTotal.WithLabelValues("oversized").Inc()
			}
			return bolsonerrors.NewFatal("convert", err, pb.Range.String())
		}

		for _, rb := range resized {
			var serializeSpan *tracing.Span
			if span != nil {
				_, serializeSpan = tracing.StartChildSpan(ctx, "serialize")
			}
			payload, err := w.serializer.Serialize(rb)
			rangeStr := rb.Range.String()
			rb.Release()
			if serializeSpan != nil {
				serializeSpan.End()
			}
			if err != nil {
				w.stats.OversizedErrors++
				if w.live != nil {
					w.live.AddOversizedError()
				}
				if w.metrics != nil {
					w.metrics.ParseErrorsTotal.WithLabelValues("ipc").Inc()
				}
				return bolsonerrors.NewFatal("convert", err, rangeStr)
			}
			w.tracker.RecordSerialized(payload.Range.First, time.Now())
			if err := w.out.Put(context.Background(), payload); err != nil {
				w.log.Warn("publish queue closed, dropping message", "range", payload.Range.String())
				continue
			}
		}
	}
	return nil
}

func (w *Worker) handleParseFailure(buf *bolsonbuffer.Buffer, err error) {
	w.stats.BuffersDropped++
	if w.live != nil {
		w.live.AddBufferDropped()
	}
	if errors.Is(err, bolsonerrors.ErrParse) {
		w.stats.ParseErrors++
		if w.live != nil {
			w.live.AddParseError()
		}
		if w.metrics != nil {
			w.metrics.ParseErrorsTotal.WithLabelValues("parse").Inc()
		}
	}
	w.log.Warn("dropping buffer that failed to parse", "buffer", buf.ID, "range", buf.Range.String(), "err", err)
}
