package stats

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Report writes the run summary to w. In succinct mode it emits a single
// CSV line, fields in order: received, num_jsons, total_ipc_bytes,
// avg_bytes_per_msg, avg_parse_us, avg_thread_s, num_published,
// avg_publish_us, publish_thread_s, first_latency_s. Otherwise it emits a
// multi-line human-readable report carrying the same figures.
func Report(w io.Writer, t Totals, succinct bool) error {
	if succinct {
		_, err := fmt.Fprintf(w, "%d,%d,%d,%.2f,%.2f,%.6f,%d,%.2f,%.6f,%.6f\n",
			t.RowsReceived, t.RowsParsed, t.BytesSent, t.AvgBytesPerMsg(),
			t.AvgParseMicros(), t.AvgThreadSeconds(), t.MessagesSent,
			t.AvgPublishMicros(), t.PublishThreadSeconds(), t.FirstLatency.Seconds())
		return err
	}

	lines := []string{
		fmt.Sprintf("received:          %d", t.RowsReceived),
		fmt.Sprintf("num_jsons:         %d", t.RowsParsed),
		fmt.Sprintf("buffers dropped:   %d", t.BuffersDropped),
		fmt.Sprintf("parse errors:      %d", t.ParseErrors),
		fmt.Sprintf("oversized errors:  %d", t.OversizedErrors),
		fmt.Sprintf("num_published:     %d", t.MessagesSent),
		fmt.Sprintf("total_ipc_bytes:   %d", t.BytesSent),
		fmt.Sprintf("avg_bytes_per_msg: %.2f", t.AvgBytesPerMsg()),
		fmt.Sprintf("avg_parse_us:      %.2f", t.AvgParseMicros()),
		fmt.Sprintf("avg_thread_s:      %.6f (n=%d workers)", t.AvgThreadSeconds(), t.NumWorkers),
		fmt.Sprintf("avg_publish_us:    %.2f", t.AvgPublishMicros()),
		fmt.Sprintf("publish_thread_s:  %.6f", t.PublishThreadSeconds()),
		fmt.Sprintf("first_latency_s:   %.6f", t.FirstLatency.Seconds()),
		fmt.Sprintf("duration:          %s", t.Duration),
		fmt.Sprintf("throughput:        %.2f rows/s, %.2f MB/s", t.RowsPerSecond(), t.MBPerSecond()),
	}
	if t.Latency.Samples > 0 {
		lines = append(lines,
			fmt.Sprintf("latency (n=%d):    min=%s avg=%s p50=%s p99=%s max=%s",
				t.Latency.Samples, t.Latency.MinTotal, t.Latency.AvgTotal,
				t.Latency.P50Total, t.Latency.P99Total, t.Latency.MaxTotal))
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile atomically writes data to path via a temp file plus rename, so
// a reader never observes a partially written stats or latency file.
func WriteFile(path string, data []byte) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bolson-stats-*")
	if err != nil {
		return fmt.Errorf("creating temp stats file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp stats file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp stats file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp stats file into place: %w", err)
	}
	return nil
}
