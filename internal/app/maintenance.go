package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/review-insights/internal/adapter/observability"
	"github.com/fairyhunter13/review-insights/internal/config"
	"github.com/fairyhunter13/review-insights/internal/domain"
)

const statsLogInterval = 5 * time.Minute

// MaintenanceLoop periodically promotes due retries, reaps expired claims,
// and publishes queue depth metrics. It is safe to run alongside any number
// of workers and other maintenance instances.
type MaintenanceLoop struct {
	queue      domain.ReliableQueue
	interval   time.Duration
	thresholds config.HealthThresholds

	lastStatsLog time.Time
}

// NewMaintenanceLoop constructs a MaintenanceLoop.
func NewMaintenanceLoop(q domain.ReliableQueue, interval time.Duration, thresholds config.HealthThresholds) *MaintenanceLoop {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &MaintenanceLoop{queue: q, interval: interval, thresholds: thresholds}
}

// Run executes maintenance cycles until the context is cancelled.
func (m *MaintenanceLoop) Run(ctx context.Context) {
	slog.Info("queue maintenance started", slog.Duration("interval", m.interval))
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("queue maintenance stopping")
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// runCycle performs one maintenance pass. A dead store skips the cycle
// entirely; the next tick tries again.
func (m *MaintenanceLoop) runCycle(ctx context.Context) {
	tracer := otel.Tracer("app.maintenance")
	ctx, span := tracer.Start(ctx, "maintenance.Cycle")
	defer span.End()

	start := time.Now()
	if !m.queue.Ping(ctx) {
		slog.Error("queue store unreachable, skipping maintenance cycle")
		return
	}

	promoted, err := m.queue.PromoteRetries(ctx)
	if err != nil {
		slog.Error("retry promotion failed", slog.Any("error", err))
		return
	}
	reaped, err := m.queue.ReapExpired(ctx)
	if err != nil {
		slog.Error("expired claim reap failed", slog.Any("error", err))
		return
	}

	stats, err := m.queue.Stats(ctx)
	if err != nil {
		slog.Error("queue stats failed", slog.Any("error", err))
		return
	}
	observability.RecordQueueStats(stats)

	elapsed := time.Since(start)
	observability.MaintenanceCycleDuration.Observe(elapsed.Seconds())
	span.SetAttributes(
		attribute.Int("promoted", promoted),
		attribute.Int("reaped", reaped),
	)
	if promoted > 0 || reaped > 0 {
		slog.Info("maintenance cycle completed",
			slog.Duration("elapsed", elapsed),
			slog.Int("promoted", promoted),
			slog.Int("reaped", reaped))
	}

	if time.Since(m.lastStatsLog) >= statsLogInterval {
		m.lastStatsLog = time.Now()
		slog.Info("queue statistics",
			slog.Int64("main_queue", stats.Main),
			slog.Int64("processing_queue", stats.Processing),
			slog.Int64("retry_queue", stats.Retry),
			slog.Int64("failed_queue", stats.Failed),
			slog.Int64("processing_keys", stats.VisibilityKeys),
			slog.Int64("total", stats.Total()))
	}
	m.checkHealth(stats)
}

// checkHealth warns when any queue crosses its configured backlog threshold.
func (m *MaintenanceLoop) checkHealth(stats domain.QueueStats) {
	if stats.Main > m.thresholds.MainBacklog {
		slog.Warn("main queue backlog above threshold",
			slog.Int64("depth", stats.Main),
			slog.Int64("threshold", m.thresholds.MainBacklog))
	}
	if stats.VisibilityKeys > m.thresholds.InFlight {
		slog.Warn("in-flight claims above threshold",
			slog.Int64("depth", stats.VisibilityKeys),
			slog.Int64("threshold", m.thresholds.InFlight))
	}
	if stats.Failed > m.thresholds.Failed {
		slog.Warn("failed queue above threshold",
			slog.Int64("depth", stats.Failed),
			slog.Int64("threshold", m.thresholds.Failed))
	}
	if stats.Retry > m.thresholds.RetryBacklog {
		slog.Warn("retry backlog above threshold",
			slog.Int64("depth", stats.Retry),
			slog.Int64("threshold", m.thresholds.RetryBacklog))
	}
}
