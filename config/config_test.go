package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
transport:
  base_url: https://api.example.com
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.Transport.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, 8, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "store-status", cfg.Batch.Strategy)
	assert.Equal(t, "fetchkit", cfg.Metrics.Prefix)
	assert.Equal(t, "batchctl", cfg.Metrics.JobName)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
}

func TestLoadConfig_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
transport:
  base_url: https://api.example.com
  timeout: 5s
  rate_limit: 10
  max_retries: 3
batch:
  max_concurrent: 2
  strategy: store-none
metrics:
  push_url: http://victoria:8428
logging:
  level: debug
  format: text
schedule: "0 2 * * *"
operations: ops.yaml
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, float64(10), cfg.Transport.RateLimit)
	assert.Equal(t, uint64(3), cfg.Transport.MaxRetries)
	assert.Equal(t, 2, cfg.Batch.MaxConcurrent)
	assert.Equal(t, "store-none", cfg.Batch.Strategy)
	assert.Equal(t, "http://victoria:8428", cfg.Metrics.PushURL)
	assert.Equal(t, "0 2 * * *", cfg.Schedule)
	assert.Equal(t, "ops.yaml", cfg.Operations)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"NegativeConcurrency", "batch:\n  max_concurrent: -1\n"},
		{"UnknownStrategy", "batch:\n  strategy: store-sometimes\n"},
		{"NegativeRateLimit", "transport:\n  rate_limit: -2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
