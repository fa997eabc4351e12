// Package admin exposes bolson's optional operational HTTP surface:
// Prometheus metrics, liveness/readiness probes, and a live stats
// snapshot.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bolson-project/bolson/internal/bolson/config"
	"github.com/bolson-project/bolson/internal/bolson/health"
	bolsonmetrics "github.com/bolson-project/bolson/internal/bolson/metrics"
	"github.com/bolson-project/bolson/internal/bolson/middleware"
	"github.com/bolson-project/bolson/internal/bolson/ratelimit"
)

// StatsProvider supplies a point-in-time snapshot for the /stats endpoint.
// The supervisor implements this by reporting live counters while the
// pipeline runs.
type StatsProvider interface {
	Snapshot() map[string]any
}

// Server is bolson's admin HTTP surface.
type Server struct {
	httpServer *http.Server
	checker    *health.Checker
}

// New builds the admin server's handler tree but does not start listening.
func New(cfg config.AdminConfig, reg *prometheus.Registry, m *bolsonmetrics.Metrics, checker *health.Checker, provider StatsProvider) *Server {
	limiter := ratelimit.New(time.Minute)

	mux := http.NewServeMux()
	mux.Handle("/metrics", bolsonmetrics.Handler(reg))
	mux.HandleFunc("/healthz", checker.LiveHandler())
	mux.HandleFunc("/readyz", checker.ReadyHandler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(provider.Snapshot())
	})

	var handler http.Handler = mux
	handler = middleware.RateLimit(limiter, 60)(handler)
	handler = middleware.Metrics(m)(handler)
	handler = middleware.Timeout(5 * time.Second)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		checker: checker,
	}
}

// Run starts serving until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
