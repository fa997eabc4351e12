package stats

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeProvider struct{ t Totals }

func (f fakeProvider) StatsSnapshot() Totals { return f.t }

func TestSinkWriteSnapshotWritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "metrics.json")
	latencyPath := filepath.Join(dir, "latency.json")
	sink := NewSink(metricsPath, latencyPath, time.Second)

	totals := Totals{RowsReceived: 42, MessagesSent: 7, FirstLatency: 3 * time.Millisecond}
	totals.Latency.Samples = 1
	if err := sink.WriteSnapshot(totals); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}

	metricsData, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("ReadFile metrics: %v", err)
	}
	var decoded Totals
	if err := json.Unmarshal(metricsData, &decoded); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	if decoded.RowsReceived != 42 || decoded.MessagesSent != 7 {
		t.Errorf("decoded totals = %+v, want RowsReceived=42 MessagesSent=7", decoded)
	}

	latencyData, err := os.ReadFile(latencyPath)
	if err != nil {
		t.Fatalf("ReadFile latency: %v", err)
	}
	var latencyDecoded latencySnapshot
	if err := json.Unmarshal(latencyData, &latencyDecoded); err != nil {
		t.Fatalf("unmarshal latency: %v", err)
	}
	if latencyDecoded.Samples != 1 || latencyDecoded.FirstLatency != 3*time.Millisecond {
		t.Errorf("decoded latency = %+v, want Samples=1 FirstLatency=3ms", latencyDecoded)
	}
}

func TestSinkWriteSnapshotSkipsUnconfiguredPaths(t *testing.T) {
	sink := NewSink("", "", time.Second)
	if err := sink.WriteSnapshot(Totals{}); err != nil {
		t.Errorf("WriteSnapshot with no paths configured should be a no-op, got %v", err)
	}
}

func TestSinkRunWritesOnTickAndAtShutdown(t *testing.T) {
	dir := t.TempDir()
	metricsPath := filepath.Join(dir, "metrics.json")
	sink := NewSink(metricsPath, "", 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx, fakeProvider{t: Totals{RowsReceived: 1}})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	if _, err := os.Stat(metricsPath); err != nil {
		t.Fatalf("expected a tick to have written metrics file: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx was cancelled")
	}
}

func TestSinkRunWithNoPathsJustWaitsForCancellation(t *testing.T) {
	sink := NewSink("", "", 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx, fakeProvider{})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Run returned before ctx was cancelled")
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after ctx was cancelled")
	}
}
