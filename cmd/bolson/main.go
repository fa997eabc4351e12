// Command bolson streams newline-delimited JSON, converts it to Arrow
// record batches, and publishes them to Apache Pulsar as Arrow IPC
// messages.
//
// Usage:
//
//	bolson stream [-config bolson.yaml] [-log-level debug] [-succinct]
//	bolson file -input records.jsonl [-config bolson.yaml] [-log-level debug] [-succinct]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bolson-project/bolson/internal/bolson/admin"
	"github.com/bolson-project/bolson/internal/bolson/config"
	bolsonerrors "github.com/bolson-project/bolson/internal/bolson/errors"
	"github.com/bolson-project/bolson/internal/bolson/health"
	"github.com/bolson-project/bolson/internal/bolson/logger"
	bolsonmetrics "github.com/bolson-project/bolson/internal/bolson/metrics"
	"github.com/bolson-project/bolson/internal/bolson/stats"
	"github.com/bolson-project/bolson/internal/bolson/supervisor"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bolson stream [-config PATH] [-log-level LEVEL] [-succinct]")
	fmt.Fprintln(os.Stderr, "       bolson file -input PATH [-config PATH] [-log-level LEVEL] [-succinct]")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var inputFile string
	var fs *flag.FlagSet
	switch os.Args[1] {
	case "stream":
		fs = flag.NewFlagSet("stream", flag.ExitOnError)
	case "file":
		fs = flag.NewFlagSet("file", flag.ExitOnError)
		fs.StringVar(&inputFile, "input", "", "path to a newline-delimited JSON file to read instead of the network")
	case "-h", "-help", "--help":
		usage()
		os.Exit(0)
	default:
		usage()
		os.Exit(1)
	}

	configPath := fs.String("config", "", "path to bolson YAML config file")
	logLevel := fs.String("log-level", "", "override the configured log level (debug, info, warn, error)")
	succinct := fs.Bool("succinct", false, "print a single CSV summary line instead of a full report")
	fs.Parse(os.Args[2:])

	if os.Args[1] == "file" && inputFile == "" {
		fmt.Fprintln(os.Stderr, "bolson: file mode requires -input")
		usage()
		os.Exit(1)
	}

	os.Exit(run(*configPath, *logLevel, *succinct, inputFile))
}

func run(configPath, logLevel string, succinct bool, inputFile string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bolson: %v\n", err)
		return bolsonerrors.ExitCode(fmt.Errorf("%w: %v", bolsonerrors.ErrConfig, err))
	}
	if succinct {
		cfg.Output.Succinct = true
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if inputFile != "" {
		slog.Info("starting bolson", "mode", "file", "input", inputFile, "topic", cfg.Publish.Topic, "workers", cfg.Convert.NumWorkers)
	} else {
		slog.Info("starting bolson", "mode", "stream", "listen", fmt.Sprintf("%s:%d", cfg.Receiver.Host, cfg.Receiver.Port), "topic", cfg.Publish.Topic, "workers", cfg.Convert.NumWorkers)
	}

	reg := prometheus.NewRegistry()
	m := bolsonmetrics.New(reg)

	sup, err := supervisor.New(cfg, m)
	if err != nil {
		slog.Error("failed to initialize pipeline", "error", err)
		return bolsonerrors.ExitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var adminSrv *admin.Server
	if cfg.Admin.Enabled {
		checker := health.NewChecker()
		checker.Register("buffer_pool", func(ctx context.Context) health.ComponentHealth {
			if sup.BufferPoolInUse() >= sup.BufferPoolSize() {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "all receive buffers checked out"}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
		adminSrv = admin.New(cfg.Admin, reg, m, checker, sup)
		go func() {
			if err := adminSrv.Run(ctx); err != nil {
				slog.Error("admin server error", "error", err)
			}
		}()
		slog.Info("admin surface listening", "addr", cfg.Admin.Addr)
	}

	sink := stats.NewSink(cfg.Output.MetricsFile, cfg.Output.LatencyFile, 10*time.Second)
	sinkCtx, cancelSink := context.WithCancel(ctx)
	sinkDone := make(chan struct{})
	go func() {
		sink.Run(sinkCtx, sup)
		close(sinkDone)
	}()

	totals, runErr := sup.Run(ctx, inputFile)
	cancelSink()
	<-sinkDone

	if err := stats.Report(os.Stdout, totals, cfg.Output.Succinct); err != nil {
		slog.Error("failed to write stats report", "error", err)
	}
	// Sink's final write on shutdown already persisted the last live
	// snapshot; write once more with the authoritative post-join totals
	// (per-thread timings, Duration, FirstLatency) since those are only
	// ever computed after every stage has returned.
	if err := sink.WriteSnapshot(totals); err != nil {
		slog.Error("failed to persist final stats snapshot", "error", err)
	}

	if runErr != nil {
		slog.Error("pipeline exited with error", "error", runErr)
		return bolsonerrors.ExitCode(runErr)
	}
	slog.Info("bolson finished", "duration", totals.Duration, "rows_received", totals.RowsReceived, "messages_sent", totals.MessagesSent)
	return 0
}
