package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Provider supplies a point-in-time Totals snapshot. Supervisor implements
// this with its live atomic counters while the pipeline is running.
type Provider interface {
	StatsSnapshot() Totals
}

// latencySnapshot is the JSON shape written to latency_file: summary
// statistics of the end-to-end (recv to published) latency over every
// sampled sequence number, plus the pipeline's very first end-to-end
// latency. Per-stage deltas are not included.
type latencySnapshot struct {
	Samples      int           `json:"samples"`
	MinTotal     time.Duration `json:"min_total_ns"`
	AvgTotal     time.Duration `json:"avg_total_ns"`
	P50Total     time.Duration `json:"p50_total_ns"`
	P99Total     time.Duration `json:"p99_total_ns"`
	MaxTotal     time.Duration `json:"max_total_ns"`
	FirstLatency time.Duration `json:"first_latency_ns"`
}

// Sink persists periodic Stats snapshots to metrics_file and latency_file,
// modeled on the teacher's aggregator.Store.StartPeriodicSave: a ticker
// drives regular writes and a final write happens once more when ctx is
// cancelled. Where the teacher inserts a row per snapshot into Postgres,
// Sink overwrites a local JSON file in place, since metrics_file and
// latency_file name a single current-state file, not a history table.
type Sink struct {
	metricsPath string
	latencyPath string
	interval    time.Duration
	log         *slog.Logger
}

// NewSink constructs a Sink. Either path may be empty, in which case Sink
// silently skips writing that file (matching WriteFile's own no-op-on-empty
// behavior). interval defaults to 10s if non-positive.
func NewSink(metricsPath, latencyPath string, interval time.Duration) *Sink {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Sink{
		metricsPath: metricsPath,
		latencyPath: latencyPath,
		interval:    interval,
		log:         slog.Default().With("component", "stats-sink"),
	}
}

// Run polls provider on a ticker, writing both files on every tick, then
// writes once more with a final snapshot when ctx is cancelled before
// returning. It blocks until ctx is done, so callers run it on its own
// goroutine alongside the pipeline.
func (s *Sink) Run(ctx context.Context, provider Provider) {
	if s.metricsPath == "" && s.latencyPath == "" {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.WriteSnapshot(provider.StatsSnapshot()); err != nil {
				s.log.Error("periodic stats snapshot failed", "error", err)
			}
		case <-ctx.Done():
			if err := s.WriteSnapshot(provider.StatsSnapshot()); err != nil {
				s.log.Error("final stats snapshot failed", "error", err)
			}
			return
		}
	}
}

// WriteSnapshot marshals t as JSON and atomically writes metrics_file and
// latency_file, skipping whichever path is unconfigured.
func (s *Sink) WriteSnapshot(t Totals) error {
	if s.metricsPath != "" {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshaling metrics snapshot: %w", err)
		}
		if err := WriteFile(s.metricsPath, data); err != nil {
			return err
		}
	}
	if s.latencyPath != "" {
		snap := latencySnapshot{
			Samples:      t.Latency.Samples,
			MinTotal:     t.Latency.MinTotal,
			AvgTotal:     t.Latency.AvgTotal,
			P50Total:     t.Latency.P50Total,
			P99Total:     t.Latency.P99Total,
			MaxTotal:     t.Latency.MaxTotal,
			FirstLatency: t.FirstLatency,
		}
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshaling latency snapshot: %w", err)
		}
		if err := WriteFile(s.latencyPath, data); err != nil {
			return err
		}
	}
	return nil
}
