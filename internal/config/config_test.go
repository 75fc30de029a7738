package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Worker.Concurrency)
	assert.Equal(t, 3*time.Second, cfg.Callback.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Storage.URLTTL)
	assert.Equal(t, "@every 30s", cfg.Reconcile.Schedule)
	assert.Equal(t, time.Minute, cfg.Reconcile.StaleAfter)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "pipeworks.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
worker:
  concurrency: 8
storage:
  bucket: runs
  url_ttl: 1h
reconcile:
  schedule: "*/5 * * * *"
`), 0o644))

	t.Setenv("PIPEWORKS_STORAGE_BUCKET", "from-env")
	t.Setenv("PIPEWORKS_CALLBACK_TIMEOUT", "500ms")
	t.Setenv("PIPEWORKS_TRACING_EXPORTER", "otlp")
	t.Setenv("PIPEWORKS_TRACING_ENDPOINT", "collector:4318")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "from-env", cfg.Storage.Bucket)
	assert.Equal(t, time.Hour, cfg.Storage.URLTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Callback.Timeout)
	assert.Equal(t, "*/5 * * * *", cfg.Reconcile.Schedule)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, "collector:4318", cfg.Tracing.Endpoint)
}

func TestLoad_SearchPath(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "pipeworks.yaml"), []byte("api:\n  port: 9090\n"), 0o644))
	t.Chdir(dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Chdir(t.TempDir())
	t.Setenv("PIPEWORKS_WORKER_CONCURRENCY", "0")
	_, err = Load("")
	assert.ErrorContains(t, err, "worker.concurrency")

	t.Setenv("PIPEWORKS_WORKER_CONCURRENCY", "2")
	t.Setenv("PIPEWORKS_TRACING_SAMPLE_RATIO", "1.5")
	_, err = Load("")
	assert.ErrorContains(t, err, "tracing.sample_ratio")
}
