// Package receive implements the reception stage: it fills fixed-capacity
// buffers from a TCP byte stream, framing accepted bytes into newline
// delimited JSON ranges tagged with monotonically increasing sequence
// numbers.
package receive

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync/atomic"
	"time"

	bolsonbuffer "github.com/bolson-project/bolson/internal/bolson/buffer"
	"github.com/bolson-project/bolson/internal/bolson/config"
	bolsonerrors "github.com/bolson-project/bolson/internal/bolson/errors"
	"github.com/bolson-project/bolson/internal/bolson/latency"
	bolsonmetrics "github.com/bolson-project/bolson/internal/bolson/metrics"
	"github.com/bolson-project/bolson/internal/bolson/queue"
)

// Receiver owns the TCP listener and the sequence-number counter. It is
// the sole writer of both.
type Receiver struct {
	cfg     config.ReceiverConfig
	pool    *bolsonbuffer.Pool
	out     *queue.Queue[*bolsonbuffer.Buffer]
	tracker *latency.Tracker
	metrics *bolsonmetrics.Metrics
	log     *slog.Logger

	nextSeq uint64
	rows    atomic.Uint64 // read concurrently by the admin surface's live snapshot
	pending []byte        // overflow slab: a partial record carried over a buffer boundary
}

// New creates a Receiver. cfg.Framing must be FramingRaw; zmq-push framing
// is accepted at the configuration layer but rejected here since it is
// not yet implemented.
func New(cfg config.ReceiverConfig, pool *bolsonbuffer.Pool, out *queue.Queue[*bolsonbuffer.Buffer], tracker *latency.Tracker, m *bolsonmetrics.Metrics) (*Receiver, error) {
	if cfg.Framing == config.FramingZMQPush {
		return nil, fmt.Errorf("%w: zmq-push framing", bolsonerrors.ErrNotImplemented)
	}
	if cfg.Framing != config.FramingRaw {
		return nil, fmt.Errorf("%w: unknown framing %q", bolsonerrors.ErrConfig, cfg.Framing)
	}
	return &Receiver{
		cfg:     cfg,
		pool:    pool,
		out:     out,
		tracker: tracker,
		metrics: m,
		log:     slog.Default().With("component", "receive"),
		nextSeq: cfg.SeqStart,
	}, nil
}

// Rows returns the total number of JSON records framed so far. Safe to
// call concurrently with Run.
func (r *Receiver) Rows() uint64 { return r.rows.Load() }

// Run listens on cfg.Host:cfg.Port and processes a single connection,
// exiting cleanly when that connection reaches EOF or ctx is cancelled,
// and closing the output queue on the way out.
func (r *Receiver) Run(ctx context.Context) error {
	defer r.out.Close()

	addr := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: listening on %s: %v", bolsonerrors.ErrNetwork, addr, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	r.log.Info("listening", "addr", addr)
	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("%w: accepting connection: %v", bolsonerrors.ErrNetwork, err)
	}
	defer conn.Close()
	return r.serveReader(ctx, conn)
}

// RunFile reads newline-delimited JSON records from the file at path
// instead of a TCP socket, framing them exactly as Run does, and always
// terminates cleanly at EOF: there is no listener to keep alive, so a
// single pass over the file is the whole run. It closes the output queue
// on the way out, just as Run does.
func (r *Receiver) RunFile(ctx context.Context, path string) error {
	defer r.out.Close()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", bolsonerrors.ErrNetwork, path, err)
	}
	defer f.Close()

	r.log.Info("reading", "path", path)
	if err := r.serveReader(ctx, f); err != nil {
		return err
	}
	return nil
}

// serveReader frames one byte stream, TCP connection or file, into sealed
// buffers until EOF, a read error, or ctx cancellation.
func (r *Receiver) serveReader(ctx context.Context, rd io.Reader) error {
	br := bufio.NewReaderSize(rd, 64*1024)

	for {
		if ctx.Err() != nil {
			return nil
		}

		buf, err := r.pool.Acquire(ctx)
		if err != nil {
			return nil
		}

		eof, err := r.fill(br, buf)
		if err != nil {
			r.pool.Release(buf)
			return fmt.Errorf("%w: reading input: %v", bolsonerrors.ErrNetwork, err)
		}

		if buf.Range.Valid() {
			r.tracker.RecordRecv(buf.Range.First, buf.RecvTimestamp)
			if r.metrics != nil {
				r.metrics.RowsReceivedTotal.Add(float64(buf.Range.Count()))
				r.metrics.BufferPoolInUse.Set(float64(r.pool.InUse()))
			}
			if err := r.out.Put(ctx, buf); err != nil {
				r.pool.Release(buf)
				return nil
			}
		} else {
			r.pool.Release(buf)
		}

		if eof {
			return nil
		}
	}
}

// fill reads newline-terminated JSON records into buf until it is full or
// the stream reaches EOF, tagging buf.Range as it goes. A record already
// read from the wire but too large to fit the current buffer is held in
// r.pending as an overflow slab and appended first on the next call.
func (r *Receiver) fill(br *bufio.Reader, buf *bolsonbuffer.Buffer) (eof bool, err error) {
	buf.RecvTimestamp = time.Now()
	first := true

	appendLine := func(line []byte) {
		seq := r.nextSeq
		buf.Append(line)
		if first {
			buf.Range.First = seq
			first = false
		}
		buf.Range.Last = seq
		r.nextSeq++
		r.rows.Add(1)
	}

	if len(r.pending) > 0 {
		if buf.Remaining() < len(r.pending) {
			return false, fmt.Errorf("record of %d bytes exceeds buffer capacity %d", len(r.pending), buf.Capacity())
		}
		appendLine(r.pending)
		r.pending = nil
	}

	for {
		line, rerr := br.ReadBytes('\n')
		if len(line) > 0 {
			if buf.Remaining() < len(line) {
				r.pending = append([]byte(nil), line...)
				return false, nil
			}
			appendLine(line)
		}
		if rerr != nil {
			if rerr == io.EOF {
				return true, nil
			}
			return false, rerr
		}
		if buf.Remaining() == 0 {
			return false, nil
		}
	}
}
