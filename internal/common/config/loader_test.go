package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	t.Setenv("API_BASE", "")
	path := writeConfig(t, "app:\n  name: fertismart\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultInferenceBaseURL, cfg.Inference.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Inference.RequestTimeout())
	assert.Equal(t, 10000, cfg.Inference.MetadataTimeout)
	assert.False(t, cfg.Inference.StrictCrops)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, "fertismart:metadata", cfg.Cache.Key)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadFromFile_ValuesAndWorkerDefaults(t *testing.T) {
	path := writeConfig(t, `
inference:
  base_url: http://inference.internal:9000/
  timeout: 5000
  strict_crops: true
cache:
  backend: redis
  ttl: 60000
database:
  redis:
    address: localhost:6379
workers:
  predict-fertilizer:
    enabled: true
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://inference.internal:9000", cfg.Inference.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Inference.RequestTimeout())
	assert.True(t, cfg.Inference.StrictCrops)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, time.Minute, GetDuration(cfg.Cache.TTL))

	w := GetWorkerConfig(cfg, "predict-fertilizer")
	assert.True(t, w.Enabled)
	assert.Equal(t, 5, w.MaxJobsActive)
	assert.Equal(t, 30000, w.Timeout)

	assert.True(t, IsWorkerEnabled(cfg, "unknown-worker"))
}

func TestLoadFromFile_APIBaseFallback(t *testing.T) {
	t.Setenv("API_BASE", "http://from-env:8000")
	path := writeConfig(t, "app:\n  name: fertismart\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:8000", cfg.Inference.BaseURL)
}

func TestLoadFromFile_EnvOverridesFile(t *testing.T) {
	t.Setenv("INFERENCE_BASE_URL", "http://override:1234")
	path := writeConfig(t, "inference:\n  base_url: http://file:8000\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:1234", cfg.Inference.BaseURL)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"relative base url", "inference:\n  base_url: not-a-url\n"},
		{"redis without address", "cache:\n  backend: redis\n"},
		{"unknown backend", "cache:\n  backend: memcached\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("REDIS_ADDR", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromFile_UnsetPlaceholders(t *testing.T) {
	t.Setenv("API_BASE", "")
	t.Setenv("REDIS_ADDR", "")
	path := writeConfig(t, `
inference:
  base_url: ${API_BASE}
database:
  redis:
    address: ${REDIS_ADDR}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultInferenceBaseURL, cfg.Inference.BaseURL)
	assert.Empty(t, cfg.Database.Redis.Address)
}

func TestLoad_RepositoryConfig(t *testing.T) {
	t.Setenv("API_BASE", "http://inference:8000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://inference:8000", cfg.Inference.BaseURL)
	assert.True(t, IsWorkerEnabled(cfg, "predict-fertilizer"))
	assert.Equal(t, 10, GetWorkerConfig(cfg, "predict-fertilizer").MaxJobsActive)
}
