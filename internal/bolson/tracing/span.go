// Package tracing implements a lightweight in-process span tree for
// diagnosing one buffer's parse/resize/serialize sequence inside a
// converter worker. It is not a distributed tracer: spans never leave the
// process, and nothing but a debug-level log line ever reads them.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey struct{}

// Span is one named interval in a buffer's conversion, optionally holding
// child spans for its sub-phases. RangeID identifies the row range the
// root span covers, so a logged tree can be matched back to the buffer
// that produced it.
type Span struct {
	Name      string
	RangeID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any

	mu sync.Mutex
}

// StartSpan begins a root span named name for the given rangeID and
// returns a context carrying it so StartChildSpan can find it.
func StartSpan(ctx context.Context, name, rangeID string) (context.Context, *Span) {
	s := &Span{Name: name, RangeID: rangeID, StartTime: time.Now()}
	return context.WithValue(ctx, contextKey{}, s), s
}

// StartChildSpan begins a span nested under whatever span ctx carries. If
// ctx carries none, the returned span is a root with no RangeID.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := &Span{Name: name, StartTime: time.Now()}
	if parent != nil {
		child.RangeID = parent.RangeID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, contextKey{}, child), child
}

// SpanFromContext returns the span ctx carries, or nil.
func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(contextKey{}).(*Span)
	return s
}

// End records the span's finish time and duration.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// SetAttr attaches a key/value pair logged alongside the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Attrs == nil {
		s.Attrs = make(map[string]any)
	}
	s.Attrs[key] = value
}

// Log emits the span and every descendant as debug-level log records via
// logger, one record per span, depth-first.
func (s *Span) Log(logger *slog.Logger) {
	s.logRecursive(logger, 0)
}

func (s *Span) logRecursive(logger *slog.Logger, depth int) {
	s.mu.Lock()
	args := []any{"span", s.Name, "range", s.RangeID, "depth", depth, "duration", s.Duration}
	for k, v := range s.Attrs {
		args = append(args, k, v)
	}
	children := s.Children
	s.mu.Unlock()

	logger.Debug("trace", args...)
	for _, c := range children {
		c.logRecursive(logger, depth+1)
	}
}
