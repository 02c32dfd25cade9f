package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
environment: test
ingest:
  backend: clickhouse
stream:
  assets: ["BINANCE:BTCUSDT"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Simulation.MaxSimulations)
	assert.Equal(t, 0.02, cfg.Simulation.RandomWalk.Sigma)
	assert.Equal(t, 0.0001, cfg.Simulation.GBM.Mu)
	assert.Equal(t, 0.015, cfg.Simulation.GBM.Sigma)
	assert.Equal(t, 0.1, cfg.Simulation.MeanReversion.Alpha)
	assert.Equal(t, []float64{0.2, 0.5, 0.3}, cfg.Simulation.Ensemble.Weights)
	assert.Equal(t, 6*time.Hour, cfg.Calibration.TTL)
	assert.Equal(t, 48*time.Hour, cfg.Calibration.Window)
	assert.Equal(t, 5*time.Second, cfg.Calibration.FetchTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Scoring.Delay)
	assert.Equal(t, 2, cfg.Scoring.Workers)
	assert.Equal(t, "synthcast.logs", cfg.Kafka.LogsTopic)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing environment", `
ingest:
  backend: kafka
stream:
  assets: ["X"]
`},
		{"bad backend", `
environment: test
ingest:
  backend: rabbitmq
stream:
  assets: ["X"]
`},
		{"no assets", `
environment: test
ingest:
  backend: kafka
`},
		{"wrong weight count", `
environment: test
ingest:
  backend: kafka
stream:
  assets: ["X"]
simulation:
  ensemble:
    weights: [0.5, 0.5]
`},
		{"negative weight", `
environment: test
ingest:
  backend: kafka
stream:
  assets: ["X"]
simulation:
  ensemble:
    weights: [0.5, -0.2, 0.7]
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("STREAM_API_KEY", "k-123")
	t.Setenv("ASSETS", "A,B")
	t.Setenv("INGEST_BACKEND", "kafka")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := LoadWithEnv(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "k-123", cfg.Stream.APIKey)
	assert.Equal(t, []string{"A", "B"}, cfg.Stream.Assets)
	assert.Equal(t, "kafka", cfg.Ingest.Backend)
	assert.Equal(t, "redis:6379", cfg.Calibration.Redis.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
