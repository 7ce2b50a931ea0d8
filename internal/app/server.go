package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/review-insights/internal/config"
	"github.com/fairyhunter13/review-insights/internal/domain"
)

// StatusServer exposes liveness, queue depth, and metrics endpoints for the
// worker process.
type StatusServer struct {
	queue      domain.ReliableQueue
	thresholds config.HealthThresholds
	srv        *http.Server
}

// NewStatusServer builds the HTTP surface: GET /healthz, GET /queuez,
// GET /metrics.
func NewStatusServer(cfg config.Config, q domain.ReliableQueue, thresholds config.HealthThresholds) *StatusServer {
	s := &StatusServer{queue: q, thresholds: thresholds}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httprate.LimitByIP(cfg.StatusRatePerMin, time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/queuez", s.handleQueuez)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.StatusPort),
		Handler:           otelhttp.NewHandler(r, "status"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *StatusServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server listening", slog.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("op=status.serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("op=status.shutdown: %w", err)
	}
	return nil
}

// handleHealthz reports overall health: the store must answer and the
// in-flight claim count must stay under twice the alert threshold.
func (s *StatusServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	connected := s.queue.Ping(r.Context())
	healthy := connected
	var stats domain.QueueStats
	if connected {
		var err error
		stats, err = s.queue.Stats(r.Context())
		if err != nil {
			healthy = false
		} else if stats.VisibilityKeys >= 2*s.thresholds.InFlight {
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"healthy":         healthy,
		"store_connected": connected,
		"queue_stats":     stats,
		"timestamp":       float64(time.Now().UnixNano()) / 1e9,
	})
}

// handleQueuez returns a depth snapshot of all logical queues.
func (s *StatusServer) handleQueuez(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_stats": stats,
		"total":       stats.Total(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
