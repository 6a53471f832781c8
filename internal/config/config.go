// Package config provides configuration management for the snapshot tool.
// Configuration is layered: built-in defaults, then an optional JSON or YAML
// file, then SNAPSHOT_* environment variables. The result is validated with
// struct tags before any component is constructed.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Application metadata
	AppName    string `json:"app_name" yaml:"app_name" validate:"required"`
	Version    string `json:"version" yaml:"version"`
	ConfigPath string `json:"-" yaml:"-"`

	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
	Exchange ExchangeConfig `json:"exchange" yaml:"exchange"`
	Output   OutputConfig   `json:"output" yaml:"output"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// SnapshotConfig holds the partitioning and scheduling constants of a run
type SnapshotConfig struct {
	Symbol             string `json:"symbol" yaml:"symbol" validate:"required"`                           // Product to snapshot, e.g. "ETH-USD"
	GranularitySeconds int    `json:"granularity_seconds" yaml:"granularity_seconds" validate:"gt=0"`    // Sampling interval
	MaxSamplesPerCall  int    `json:"max_samples_per_call" yaml:"max_samples_per_call" validate:"gt=0"` // API page cap
	WaveSize           int    `json:"wave_size" yaml:"wave_size" validate:"gt=0"`                        // Max concurrent in-flight fetches
}

// Granularity returns the sampling interval as a duration.
func (s SnapshotConfig) Granularity() time.Duration {
	return time.Duration(s.GranularitySeconds) * time.Second
}

// ExchangeConfig configures the remote data source adapter
type ExchangeConfig struct {
	BaseURL       string  `json:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout       string  `json:"timeout" yaml:"timeout" validate:"required,duration"` // HTTP request timeout
	RateLimit     float64 `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`      // Requests per second, 0 disables pacing
	Burst         int     `json:"burst" yaml:"burst" validate:"gte=0"`
	RetryAttempts int     `json:"retry_attempts" yaml:"retry_attempts" validate:"gte=0,lte=10"` // Transport retries per call, 0 disables
	UserAgent     string  `json:"user_agent" yaml:"user_agent"`
}

// TimeoutDuration parses Timeout. Validation guarantees it parses.
func (e ExchangeConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(e.Timeout)
	return d
}

// OutputConfig configures the run artifact
type OutputConfig struct {
	Path   string `json:"path" yaml:"path" validate:"required"`
	Format string `json:"format" yaml:"format" validate:"oneof=csv duckdb"`
	Table  string `json:"table" yaml:"table" validate:"required_if=Format duckdb"` // DuckDB table name
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format        string            `json:"format" yaml:"format" validate:"oneof=json text"`
	Output        string            `json:"output" yaml:"output" validate:"oneof=stdout stderr file"`
	FilePath      string            `json:"file_path" yaml:"file_path" validate:"required_if=Output file"`
	MaxSize       int               `json:"max_size" yaml:"max_size" validate:"gte=0"`       // Maximum log file size in MB
	MaxBackups    int               `json:"max_backups" yaml:"max_backups" validate:"gte=0"` // Maximum log file backups
	MaxAge        int               `json:"max_age" yaml:"max_age" validate:"gte=0"`         // Maximum log file age in days
	Compress      bool              `json:"compress" yaml:"compress"`
	ContextFields map[string]string `json:"context_fields" yaml:"context_fields"`
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	logger     *slog.Logger
	validate   *validator.Validate
}

// NewConfigManager creates a new configuration manager
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		logger:     logger,
		validate:   newValidator(),
	}
}

// newValidator returns a validator that reports fields by their config
// key and understands Go duration strings.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		_, err := time.ParseDuration(fl.Field().String())
		return err == nil
	})
	return v
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()

	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		config.ConfigPath = cm.configPath
	}

	cm.loadFromEnv(config)

	if err := cm.Validate(config); err != nil {
		return nil, err
	}

	cm.config = config
	cm.logger.Debug("configuration loaded",
		"config_path", cm.configPath,
		"symbol", config.Snapshot.Symbol,
		"granularity_seconds", config.Snapshot.GranularitySeconds,
		"wave_size", config.Snapshot.WaveSize,
		"output_format", config.Output.Format)

	return config, nil
}

// loadFromFile loads configuration from a JSON or YAML file, chosen by extension
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	if _, err := os.Stat(cm.configPath); os.IsNotExist(err) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}

	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	switch strings.ToLower(filepath.Ext(cm.configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// loadFromEnv loads configuration from environment variables. Values that
// do not parse are ignored.
func (cm *ConfigManager) loadFromEnv(config *AppConfig) {
	if val := os.Getenv("SNAPSHOT_SYMBOL"); val != "" {
		config.Snapshot.Symbol = val
	}
	if val := os.Getenv("SNAPSHOT_GRANULARITY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Snapshot.GranularitySeconds = n
		}
	}
	if val := os.Getenv("SNAPSHOT_MAX_SAMPLES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Snapshot.MaxSamplesPerCall = n
		}
	}
	if val := os.Getenv("SNAPSHOT_WAVE_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Snapshot.WaveSize = n
		}
	}

	if val := os.Getenv("SNAPSHOT_BASE_URL"); val != "" {
		config.Exchange.BaseURL = val
	}
	if val := os.Getenv("SNAPSHOT_HTTP_TIMEOUT"); val != "" {
		config.Exchange.Timeout = val
	}
	if val := os.Getenv("SNAPSHOT_RATE_LIMIT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			config.Exchange.RateLimit = f
		}
	}
	if val := os.Getenv("SNAPSHOT_RETRY_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.Exchange.RetryAttempts = n
		}
	}

	if val := os.Getenv("SNAPSHOT_OUTPUT_PATH"); val != "" {
		config.Output.Path = val
	}
	if val := os.Getenv("SNAPSHOT_OUTPUT_FORMAT"); val != "" {
		config.Output.Format = val
	}

	if val := os.Getenv("SNAPSHOT_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("SNAPSHOT_LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("SNAPSHOT_LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}
	if val := os.Getenv("SNAPSHOT_LOG_FILE_PATH"); val != "" {
		config.Logging.FilePath = val
	}
}

// Validate checks the configuration against its struct tags and returns a
// ConfigurationError listing every violation.
func (cm *ConfigManager) Validate(config *AppConfig) error {
	err := cm.validate.Struct(config)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return &snaperrors.ConfigurationError{Message: err.Error()}
	}

	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, describeFieldError(fe))
	}

	field := ""
	if len(validationErrors) == 1 {
		field = fieldKey(validationErrors[0])
	}

	return &snaperrors.ConfigurationError{
		Field:   field,
		Message: fmt.Sprintf("configuration validation errors:\n- %s", strings.Join(messages, "\n- ")),
	}
}

// fieldKey strips the root struct name from the namespace, leaving the
// dotted config key (e.g. "snapshot.wave_size").
func fieldKey(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeFieldError(fe validator.FieldError) string {
	key := fieldKey(fe)
	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "required_if":
		return fmt.Sprintf("%s is required when %s", key, strings.ReplaceAll(fe.Param(), " ", " is "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", key, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", key, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", key, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", key, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return key + " must be a valid URL"
	case "duration":
		return key + " must be a valid duration"
	default:
		return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
	}
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "ohlcv-snapshot",
		Version: "1.0.0",
		Snapshot: SnapshotConfig{
			Symbol:             "ETH-USD",
			GranularitySeconds: 60,
			MaxSamplesPerCall:  200,
			WaveSize:           7,
		},
		Exchange: ExchangeConfig{
			BaseURL:       "https://api.exchange.coinbase.com",
			Timeout:       "30s",
			RateLimit:     10,
			Burst:         7,
			RetryAttempts: 0,
			UserAgent:     "ohlcv-snapshot/1.0",
		},
		Output: OutputConfig{
			Path:   "snapshot.csv",
			Format: "csv",
			Table:  "candles",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
			ContextFields: map[string]string{
				"service": "ohlcv-snapshot",
			},
		},
	}
}

// String returns a JSON representation of the configuration
func (c *AppConfig) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
