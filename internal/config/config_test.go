package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "localhost:6379", cfg.StoreAddr())
	require.Equal(t, "customer_reviews_queue", cfg.MainQueue)
	require.Equal(t, "customer_reviews_processing", cfg.ProcessingQueue)
	require.Equal(t, "customer_reviews_failed", cfg.FailedQueue)
	require.Equal(t, "customer_reviews_queue:retry", cfg.RetryQueue())
	require.Equal(t, 300*time.Second, cfg.VisibilityTimeout)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, time.Second, cfg.ClaimBlockTimeout)
	require.Equal(t, 30*time.Second, cfg.MaintenanceInterval)
	require.True(t, cfg.IsDev())
	require.False(t, cfg.IsProd())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STORE_HOST", "queue.internal")
	t.Setenv("STORE_PORT", "6380")
	t.Setenv("MAIN_QUEUE", "reviews")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "queue.internal:6380", cfg.StoreAddr())
	require.Equal(t, "reviews:retry", cfg.RetryQueue())
	require.Equal(t, 5, cfg.MaxRetries)
	require.True(t, cfg.IsProd())
}

func TestThresholdsEnvDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	th, err := cfg.Thresholds()
	require.NoError(t, err)
	require.Equal(t, int64(1000), th.MainBacklog)
	require.Equal(t, int64(100), th.InFlight)
	require.Equal(t, int64(50), th.Failed)
	require.Equal(t, int64(100), th.RetryBacklog)
}

func TestThresholdsFileOverride(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "health.yaml")
	require.NoError(t, os.WriteFile(file, []byte("main_backlog: 5000\nfailed: 10\n"), 0o600))
	t.Setenv("HEALTH_CONFIG_FILE", file)

	cfg, err := Load()
	require.NoError(t, err)
	th, err := cfg.Thresholds()
	require.NoError(t, err)

	// Overridden values come from the file, the rest from env defaults.
	require.Equal(t, int64(5000), th.MainBacklog)
	require.Equal(t, int64(10), th.Failed)
	require.Equal(t, int64(100), th.InFlight)
	require.Equal(t, int64(100), th.RetryBacklog)
}

func TestThresholdsBadFileFallsBack(t *testing.T) {
	t.Setenv("HEALTH_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	th, err := cfg.Thresholds()
	require.Error(t, err)
	require.Equal(t, int64(1000), th.MainBacklog)
}
