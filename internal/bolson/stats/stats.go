// Package stats accumulates per-worker counters and end-to-end totals for
// the run summary report ("succinct" and verbose stdout report,
// optional metrics_file / latency_file persistence).
package stats

import (
	"sync/atomic"
	"time"

	"github.com/bolson-project/bolson/internal/bolson/latency"
)

// LiveCounters holds the subset of Totals that can be updated concurrently
// by many goroutines while the pipeline is still running, for Sink's
// periodic snapshots. A converter worker or the publisher only owns its
// own stats.Worker until it exits, but Sink needs a running total it can
// read safely at any point in between.
type LiveCounters struct {
	rowsParsed      atomic.Uint64
	buffersDropped  atomic.Uint64
	parseErrors     atomic.Uint64
	oversizedErrors atomic.Uint64
	messagesSent    atomic.Uint64
	bytesSent       atomic.Uint64
}

// AddParsed records that a converter worker finished parsing n rows.
func (c *LiveCounters) AddParsed(n uint64) { c.rowsParsed.Add(n) }

// AddBufferDropped records one buffer dropped for a non-fatal parse error.
func (c *LiveCounters) AddBufferDropped() { c.buffersDropped.Add(1) }

// AddParseError records one parse-error drop, a subset of buffer drops.
func (c *LiveCounters) AddParseError() { c.parseErrors.Add(1) }

// AddOversizedError records one oversized-row fatal condition.
func (c *LiveCounters) AddOversizedError() { c.oversizedErrors.Add(1) }

// AddPublished records that the publisher sent one message of n bytes.
func (c *LiveCounters) AddPublished(n uint64) {
	c.messagesSent.Add(1)
	c.bytesSent.Add(n)
}

// Snapshot returns a partial Totals reflecting the counters' values at the
// moment of the call. Fields with no live counterpart (Duration, NumWorkers,
// per-thread timings, FirstLatency) are left zero; callers that need those
// use the authoritative Totals returned once the pipeline stops.
func (c *LiveCounters) Snapshot() Totals {
	return Totals{
		RowsParsed:      c.rowsParsed.Load(),
		BuffersDropped:  c.buffersDropped.Load(),
		ParseErrors:     c.parseErrors.Load(),
		OversizedErrors: c.oversizedErrors.Load(),
		MessagesSent:    c.messagesSent.Load(),
		BytesSent:       c.bytesSent.Load(),
	}
}

// Worker holds the counters one converter worker or the publisher
// accumulates over its lifetime. It is owned exclusively by its goroutine
// while running and read only after that goroutine has exited, so it
// needs no locking. Err is set when the goroutine stopped because of a
// fatal condition (an oversized row, an IPC encoding failure, or a
// publish failure) rather than because its input queue drained.
//
// ParseDuration and ThreadDuration are populated by converter workers only
// (time spent inside parser.Parse, and the worker goroutine's total wall
// time). PublishDuration and ThreadDuration are populated by the publisher
// only (time spent inside producer.Send, and the publisher goroutine's
// total wall time) — a Worker value is never shared between the two roles,
// so the overlapping ThreadDuration field carries whichever role produced
// it.
type Worker struct {
	ID              int
	RowsParsed      uint64
	BuffersDropped  uint64
	ParseErrors     uint64
	OversizedErrors uint64
	MessagesSent    uint64
	BytesSent       uint64
	ParseDuration   time.Duration
	PublishDuration time.Duration
	ThreadDuration  time.Duration
	Err             error
}

// Totals is the sum of every worker's counters plus pipeline-wide figures
// gathered by the receiver and publisher. Err carries the first fatal
// error reported by any stage, if any.
//
// ParseDuration and ThreadDuration are sums across every converter worker;
// NumWorkers is how many contributed, so the report can divide back down
// to a representative per-thread figure the way the original bolson
// divides its accumulated parse_time by num_threads. PublishDuration and
// PublishThreadDuration come from the single publisher goroutine and need
// no such averaging.
type Totals struct {
	RowsReceived          uint64
	RowsParsed            uint64
	BuffersDropped        uint64
	ParseErrors           uint64
	OversizedErrors       uint64
	MessagesSent          uint64
	BytesSent             uint64
	NumWorkers            int
	ParseDuration         time.Duration
	ThreadDuration        time.Duration
	PublishDuration       time.Duration
	PublishThreadDuration time.Duration
	FirstLatency          time.Duration
	Duration              time.Duration
	Latency               latency.Summary
	Err                   error
}

// Merge folds a converter worker's counters into Totals. The first non-nil
// Err merged in wins; later ones are dropped so the report surfaces the
// original failure rather than whatever secondary errors followed it.
func (t *Totals) Merge(w Worker) {
	t.RowsParsed += w.RowsParsed
	t.BuffersDropped += w.BuffersDropped
	t.ParseErrors += w.ParseErrors
	t.OversizedErrors += w.OversizedErrors
	t.MessagesSent += w.MessagesSent
	t.BytesSent += w.BytesSent
	t.ParseDuration += w.ParseDuration
	t.ThreadDuration += w.ThreadDuration
	if t.Err == nil {
		t.Err = w.Err
	}
}

// MergePublisher folds the publisher's counters into Totals, keeping its
// timings separate from the converter workers' ParseDuration/ThreadDuration
// so the two roles never average together.
func (t *Totals) MergePublisher(w Worker) {
	t.MessagesSent += w.MessagesSent
	t.BytesSent += w.BytesSent
	t.PublishDuration += w.PublishDuration
	t.PublishThreadDuration += w.ThreadDuration
	if t.Err == nil {
		t.Err = w.Err
	}
}

// RowsPerSecond is the pipeline's overall received-rows throughput.
func (t Totals) RowsPerSecond() float64 {
	if t.Duration <= 0 {
		return 0
	}
	return float64(t.RowsReceived) / t.Duration.Seconds()
}

// MBPerSecond is the pipeline's published-bytes throughput in mebibytes.
func (t Totals) MBPerSecond() float64 {
	if t.Duration <= 0 {
		return 0
	}
	return float64(t.BytesSent) / (1024 * 1024) / t.Duration.Seconds()
}

// AvgBytesPerMsg is the mean IPC payload size of every published message.
func (t Totals) AvgBytesPerMsg() float64 {
	if t.MessagesSent == 0 {
		return 0
	}
	return float64(t.BytesSent) / float64(t.MessagesSent)
}

// AvgParseMicros is the mean parse time of one converter thread, following
// the original bolson's parse_time/num_threads convention: the total time
// every worker spent inside Parse, divided by the worker count.
func (t Totals) AvgParseMicros() float64 {
	if t.NumWorkers == 0 {
		return 0
	}
	return float64(t.ParseDuration.Microseconds()) / float64(t.NumWorkers)
}

// AvgThreadSeconds is the mean wall-clock lifetime of one converter thread.
func (t Totals) AvgThreadSeconds() float64 {
	if t.NumWorkers == 0 {
		return 0
	}
	return t.ThreadDuration.Seconds() / float64(t.NumWorkers)
}

// AvgPublishMicros is the mean time spent inside one Send call. Unlike the
// converter side there is exactly one publish thread, so the average is
// taken per published message rather than per thread.
func (t Totals) AvgPublishMicros() float64 {
	if t.MessagesSent == 0 {
		return 0
	}
	return float64(t.PublishDuration.Microseconds()) / float64(t.MessagesSent)
}

// PublishThreadSeconds is the publisher goroutine's total wall-clock
// lifetime.
func (t Totals) PublishThreadSeconds() float64 {
	return t.PublishThreadDuration.Seconds()
}
