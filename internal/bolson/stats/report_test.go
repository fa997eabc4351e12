package stats

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReportSuccinct(t *testing.T) {
	var buf bytes.Buffer
	totals := Totals{
		RowsReceived: 100, RowsParsed: 100, MessagesSent: 10, BytesSent: 2048,
		NumWorkers: 2, ParseDuration: 4 * time.Millisecond, ThreadDuration: time.Second,
		PublishDuration: time.Millisecond, PublishThreadDuration: 900 * time.Millisecond,
		FirstLatency: 250 * time.Microsecond, Duration: time.Second,
	}
	if err := Report(&buf, totals, true); err != nil {
		t.Fatalf("Report: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	fields := strings.Split(line, ",")
	if len(fields) != 10 {
		t.Fatalf("succinct report has %d fields, want 10: %q", len(fields), line)
	}
	if fields[0] != "100" {
		t.Errorf("received = %q, want 100", fields[0])
	}
	if fields[1] != "100" {
		t.Errorf("num_jsons = %q, want 100", fields[1])
	}
	if fields[2] != "2048" {
		t.Errorf("total_ipc_bytes = %q, want 2048", fields[2])
	}
	if fields[6] != "10" {
		t.Errorf("num_published = %q, want 10", fields[6])
	}
}

func TestReportVerboseIncludesTimingFields(t *testing.T) {
	var buf bytes.Buffer
	totals := Totals{
		RowsReceived: 5, NumWorkers: 2, ParseDuration: 2 * time.Millisecond,
		ThreadDuration: 500 * time.Millisecond, PublishDuration: time.Millisecond,
		PublishThreadDuration: 400 * time.Millisecond, FirstLatency: time.Millisecond,
		Duration: time.Second,
	}
	if err := Report(&buf, totals, false); err != nil {
		t.Fatalf("Report: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"avg_parse_us", "avg_thread_s", "avg_publish_us", "publish_thread_s", "first_latency_s"} {
		if !strings.Contains(out, want) {
			t.Errorf("verbose report missing %q line:\n%s", want, out)
		}
	}
}

func TestReportVerboseIncludesLatencyOnlyWhenSampled(t *testing.T) {
	var buf bytes.Buffer
	totals := Totals{RowsReceived: 5, Duration: time.Second}
	if err := Report(&buf, totals, false); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if strings.Contains(buf.String(), "latency (n=") {
		t.Error("verbose report should omit the sampled-latency line when no samples exist")
	}

	buf.Reset()
	totals.Latency.Samples = 3
	if err := Report(&buf, totals, false); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if !strings.Contains(buf.String(), "latency (n=3)") {
		t.Error("verbose report should include a latency line once samples exist")
	}
}

func TestWriteFileAtomicRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.txt")
	if err := WriteFile(path, []byte("hello")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("file contents = %q, want hello", got)
	}

	// No stray temp files should remain in the directory.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries after WriteFile, want 1", len(entries))
	}
}

func TestWriteFileEmptyPathIsNoop(t *testing.T) {
	if err := WriteFile("", []byte("ignored")); err != nil {
		t.Errorf("WriteFile with empty path should be a no-op, got %v", err)
	}
}
