package config

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "ohlcv-snapshot", config.AppName)
	assert.Equal(t, "ETH-USD", config.Snapshot.Symbol)
	assert.Equal(t, 60, config.Snapshot.GranularitySeconds)
	assert.Equal(t, time.Minute, config.Snapshot.Granularity())
	assert.Equal(t, 200, config.Snapshot.MaxSamplesPerCall)
	assert.Equal(t, 7, config.Snapshot.WaveSize)
	assert.Equal(t, "https://api.exchange.coinbase.com", config.Exchange.BaseURL)
	assert.Equal(t, 30*time.Second, config.Exchange.TimeoutDuration())
	assert.Equal(t, 0, config.Exchange.RetryAttempts)
	assert.Equal(t, "snapshot.csv", config.Output.Path)
	assert.Equal(t, "csv", config.Output.Format)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestConfigValidation(t *testing.T) {
	cm := NewConfigManager("", testLogger())

	t.Run("valid config passes validation", func(t *testing.T) {
		assert.NoError(t, cm.Validate(DefaultConfig()))
	})

	tests := []struct {
		name     string
		mutate   func(*AppConfig)
		field    string
		contains string
	}{
		{
			name:     "missing symbol",
			mutate:   func(c *AppConfig) { c.Snapshot.Symbol = "" },
			field:    "snapshot.symbol",
			contains: "snapshot.symbol is required",
		},
		{
			name:     "zero granularity",
			mutate:   func(c *AppConfig) { c.Snapshot.GranularitySeconds = 0 },
			field:    "snapshot.granularity_seconds",
			contains: "snapshot.granularity_seconds must be greater than 0",
		},
		{
			name:     "negative cap",
			mutate:   func(c *AppConfig) { c.Snapshot.MaxSamplesPerCall = -1 },
			field:    "snapshot.max_samples_per_call",
			contains: "snapshot.max_samples_per_call must be greater than 0",
		},
		{
			name:     "zero wave size",
			mutate:   func(c *AppConfig) { c.Snapshot.WaveSize = 0 },
			field:    "snapshot.wave_size",
			contains: "snapshot.wave_size must be greater than 0",
		},
		{
			name:     "bad timeout",
			mutate:   func(c *AppConfig) { c.Exchange.Timeout = "soon" },
			field:    "exchange.timeout",
			contains: "exchange.timeout must be a valid duration",
		},
		{
			name:     "bad base url",
			mutate:   func(c *AppConfig) { c.Exchange.BaseURL = "not a url" },
			field:    "exchange.base_url",
			contains: "exchange.base_url must be a valid URL",
		},
		{
			name:     "unknown output format",
			mutate:   func(c *AppConfig) { c.Output.Format = "parquet" },
			field:    "output.format",
			contains: "output.format must be one of: csv, duckdb",
		},
		{
			name: "file logging without path",
			mutate: func(c *AppConfig) {
				c.Logging.Output = "file"
				c.Logging.FilePath = ""
			},
			field:    "logging.file_path",
			contains: "logging.file_path is required when Output is file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := cm.Validate(config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)

			var ce *snaperrors.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	t.Run("multiple failures are all reported", func(t *testing.T) {
		config := DefaultConfig()
		config.Snapshot.WaveSize = 0
		config.Snapshot.GranularitySeconds = 0

		err := cm.Validate(config)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "snapshot.wave_size")
		assert.Contains(t, err.Error(), "snapshot.granularity_seconds")
		assert.True(t, snaperrors.IsConfiguration(err))
	})
}

func TestLoadConfigFromFile(t *testing.T) {
	ctx := context.Background()
	tempDir := t.TempDir()

	t.Run("json file", func(t *testing.T) {
		fileConfig := DefaultConfig()
		fileConfig.Snapshot.Symbol = "BTC-USD"
		fileConfig.Snapshot.WaveSize = 3
		fileConfig.Output.Format = "duckdb"
		fileConfig.Output.Path = "btc.duckdb"

		data, err := json.MarshalIndent(fileConfig, "", "  ")
		require.NoError(t, err)
		path := filepath.Join(tempDir, "config.json")
		require.NoError(t, os.WriteFile(path, data, 0644))

		config, err := NewConfigManager(path, testLogger()).LoadConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, "BTC-USD", config.Snapshot.Symbol)
		assert.Equal(t, 3, config.Snapshot.WaveSize)
		assert.Equal(t, "duckdb", config.Output.Format)
		assert.Equal(t, path, config.ConfigPath)
	})

	t.Run("yaml file keeps defaults for missing keys", func(t *testing.T) {
		yamlData := `
snapshot:
  symbol: LTC-USD
  granularity_seconds: 300
exchange:
  rate_limit: 2.5
`
		path := filepath.Join(tempDir, "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yamlData), 0644))

		config, err := NewConfigManager(path, testLogger()).LoadConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, "LTC-USD", config.Snapshot.Symbol)
		assert.Equal(t, 300, config.Snapshot.GranularitySeconds)
		assert.Equal(t, 200, config.Snapshot.MaxSamplesPerCall)
		assert.Equal(t, 7, config.Snapshot.WaveSize)
		assert.Equal(t, 2.5, config.Exchange.RateLimit)
	})

	t.Run("missing file falls back to defaults", func(t *testing.T) {
		config, err := NewConfigManager(filepath.Join(tempDir, "absent.json"), testLogger()).LoadConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ETH-USD", config.Snapshot.Symbol)
	})

	t.Run("malformed file fails", func(t *testing.T) {
		path := filepath.Join(tempDir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		_, err := NewConfigManager(path, testLogger()).LoadConfig(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load config from file")
	})

	t.Run("invalid values in file fail validation", func(t *testing.T) {
		path := filepath.Join(tempDir, "invalid.yml")
		require.NoError(t, os.WriteFile(path, []byte("snapshot:\n  wave_size: 0\n"), 0644))

		_, err := NewConfigManager(path, testLogger()).LoadConfig(ctx)
		require.Error(t, err)
		assert.True(t, snaperrors.IsConfiguration(err))
	})
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("SNAPSHOT_SYMBOL", "SOL-USD")
	t.Setenv("SNAPSHOT_GRANULARITY", "900")
	t.Setenv("SNAPSHOT_MAX_SAMPLES", "300")
	t.Setenv("SNAPSHOT_WAVE_SIZE", "4")
	t.Setenv("SNAPSHOT_RETRY_ATTEMPTS", "2")
	t.Setenv("SNAPSHOT_OUTPUT_PATH", "/tmp/sol.csv")
	t.Setenv("SNAPSHOT_LOG_LEVEL", "debug")
	t.Setenv("SNAPSHOT_RATE_LIMIT", "not-a-number")

	config, err := NewConfigManager("", testLogger()).LoadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "SOL-USD", config.Snapshot.Symbol)
	assert.Equal(t, 900, config.Snapshot.GranularitySeconds)
	assert.Equal(t, 300, config.Snapshot.MaxSamplesPerCall)
	assert.Equal(t, 4, config.Snapshot.WaveSize)
	assert.Equal(t, 2, config.Exchange.RetryAttempts)
	assert.Equal(t, "/tmp/sol.csv", config.Output.Path)
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, float64(10), config.Exchange.RateLimit, "unparseable values are ignored")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("snapshot:\n  symbol: BTC-USD\n  wave_size: 5\n"), 0644))
	t.Setenv("SNAPSHOT_SYMBOL", "ETH-EUR")

	cm := NewConfigManager(path, testLogger())
	config, err := cm.LoadConfig(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ETH-EUR", config.Snapshot.Symbol)
	assert.Equal(t, 5, config.Snapshot.WaveSize)
	assert.Same(t, config, cm.GetConfig())
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, `"symbol": "ETH-USD"`)
	assert.Contains(t, s, `"wave_size": 7`)
}
