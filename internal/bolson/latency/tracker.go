// Package latency implements the per-sequence-number timestamp log used to
// measure first-JSON end-to-end latency across the pipeline's stages: an
// internally synchronized map written incrementally by every stage and
// queried once at stats emission.
package latency

import (
	"sort"
	"sync"
	"time"
)

// Entry records the four stage timestamps for one sampled sequence number.
// A zero time.Time means the stage has not yet stamped this entry.
type Entry struct {
	Recv       time.Time
	Parsed     time.Time
	Serialized time.Time
	Published  time.Time
}

// Tracker maps a sampled sequence number to its Entry. Every stamping
// method is first-write-wins: the first stamp for a given seq sticks.
type Tracker struct {
	mu      sync.Mutex
	entries map[uint64]*Entry
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[uint64]*Entry)}
}

// RecordRecv stamps t_recv for seq if it has not already been stamped.
// This is the only stage allowed to create a new Entry; later stages
// stamp an existing one and are no-ops if it was never sampled.
func (t *Tracker) RecordRecv(seqNum uint64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[seqNum]; ok {
		return
	}
	t.entries[seqNum] = &Entry{Recv: at}
}

// RecordParsed stamps t_parsed for seq, first-write-wins.
func (t *Tracker) RecordParsed(seqNum uint64, at time.Time) {
	t.stamp(seqNum, at, func(e *Entry) bool { return e.Parsed.IsZero() }, func(e *Entry, at time.Time) { e.Parsed = at })
}

// RecordSerialized stamps t_serialized for seq, first-write-wins.
func (t *Tracker) RecordSerialized(seqNum uint64, at time.Time) {
	t.stamp(seqNum, at, func(e *Entry) bool { return e.Serialized.IsZero() }, func(e *Entry, at time.Time) { e.Serialized = at })
}

// RecordPublished stamps t_published for seq, first-write-wins.
func (t *Tracker) RecordPublished(seqNum uint64, at time.Time) {
	t.stamp(seqNum, at, func(e *Entry) bool { return e.Published.IsZero() }, func(e *Entry, at time.Time) { e.Published = at })
}

func (t *Tracker) stamp(seqNum uint64, at time.Time, shouldSet func(*Entry) bool, set func(*Entry, time.Time)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[seqNum]
	if !ok {
		// Not a sampled sequence number (only range.first of each buffer is
		// sampled); nothing to stamp.
		return
	}
	if shouldSet(e) {
		set(e, at)
	}
}

// Get returns a copy of the entry for seq, if it was sampled.
func (t *Tracker) Get(seqNum uint64) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[seqNum]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Summary aggregates recv-to-published latency across every complete
// sample, for the metrics_file / verbose-stats output.
type Summary struct {
	Samples  int
	MinTotal time.Duration
	AvgTotal time.Duration
	MaxTotal time.Duration
	P50Total time.Duration
	P99Total time.Duration
}

// Summarize computes end-to-end latency statistics across every entry that
// has been stamped through t_published. Entries still in flight are
// excluded.
func (t *Tracker) Summarize() Summary {
	t.mu.Lock()
	totals := make([]time.Duration, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Recv.IsZero() || e.Published.IsZero() {
			continue
		}
		totals = append(totals, e.Published.Sub(e.Recv))
	}
	t.mu.Unlock()

	if len(totals) == 0 {
		return Summary{}
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i] < totals[j] })
	var sum time.Duration
	for _, d := range totals {
		sum += d
	}
	return Summary{
		Samples:  len(totals),
		MinTotal: totals[0],
		MaxTotal: totals[len(totals)-1],
		AvgTotal: sum / time.Duration(len(totals)),
		P50Total: totals[len(totals)*50/100],
		P99Total: totals[percentileIndex(len(totals), 99)],
	}
}

func percentileIndex(n, pct int) int {
	idx := pct * n / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

// FirstSeen reports whether the first-published entry's recv-to-published
// duration is available yet.
func (t *Tracker) FirstSeen(seqStart uint64) (time.Duration, bool) {
	e, ok := t.Get(seqStart)
	if !ok || e.Recv.IsZero() || e.Published.IsZero() {
		return 0, false
	}
	return e.Published.Sub(e.Recv), true
}
