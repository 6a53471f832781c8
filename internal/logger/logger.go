// Package logger provides structured logging with run context propagation.
// Every snapshot run carries a run ID and symbol in its context; loggers
// derived from that context attach both to every line.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/johnayoung/ohlcv-snapshot/internal/config"
)

// ContextKey represents keys for context values
type ContextKey string

const (
	// RunIDKey is the context key for the snapshot run ID
	RunIDKey ContextKey = "run_id"
	// SymbolKey is the context key for the product symbol
	SymbolKey ContextKey = "symbol"
	// OperationKey is the context key for operation name
	OperationKey ContextKey = "operation"
)

// Component names used across the tool.
const (
	ComponentSnapshot = "snapshot"
	ComponentExchange = "exchange"
	ComponentOutput   = "output"
	ComponentCLI      = "cli"
)

// LoggerManager manages structured logging for the application
type LoggerManager struct {
	baseLogger *slog.Logger
	config     config.LoggingConfig
	writer     io.WriteCloser

	mu             sync.Mutex
	componentCache map[string]*slog.Logger
}

// ComponentLogger represents a logger for a specific component
type ComponentLogger struct {
	*slog.Logger
	component string
}

// NewLoggerManager creates a new logger manager writing to the configured output
func NewLoggerManager(cfg config.LoggingConfig) (*LoggerManager, error) {
	writer, err := createWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}
	return newManager(cfg, writer), nil
}

// NewLoggerManagerWithWriter creates a logger manager writing to w,
// ignoring cfg.Output.
func NewLoggerManagerWithWriter(cfg config.LoggingConfig, w io.Writer) *LoggerManager {
	return newManager(cfg, nopWriteCloser{w})
}

func newManager(cfg config.LoggingConfig, writer io.WriteCloser) *LoggerManager {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	baseAttrs := make([]slog.Attr, 0, len(cfg.ContextFields))
	for key, value := range cfg.ContextFields {
		baseAttrs = append(baseAttrs, slog.String(key, value))
	}
	if len(baseAttrs) > 0 {
		handler = handler.WithAttrs(baseAttrs)
	}

	return &LoggerManager{
		baseLogger:     slog.New(handler),
		config:         cfg,
		writer:         writer,
		componentCache: make(map[string]*slog.Logger),
	}
}

// createWriter creates the appropriate writer based on configuration
func createWriter(cfg config.LoggingConfig) (io.WriteCloser, error) {
	switch cfg.Output {
	case "stdout":
		return nopWriteCloser{os.Stdout}, nil
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file path is required when output is 'file'")
		}

		dir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}, nil
	default:
		// stdout may carry the artifact, so logs go to stderr unless asked otherwise
		return nopWriteCloser{os.Stderr}, nil
	}
}

// nopWriteCloser wraps an io.Writer to provide a Close method
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns the base logger instance
func (lm *LoggerManager) GetLogger() *slog.Logger {
	return lm.baseLogger
}

// GetComponentLogger returns a logger for the specified component
func (lm *LoggerManager) GetComponentLogger(component string) *ComponentLogger {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	cached, ok := lm.componentCache[component]
	if !ok {
		cached = lm.baseLogger.With(slog.String("component", component))
		lm.componentCache[component] = cached
	}
	return &ComponentLogger{Logger: cached, component: component}
}

// WithComponentContext creates a component logger that includes context values
func (lm *LoggerManager) WithComponentContext(ctx context.Context, component string) *ComponentLogger {
	attrs := extractContextAttributes(ctx)
	attrs = append(attrs, slog.String("component", component))
	return &ComponentLogger{Logger: lm.baseLogger.With(attrs...), component: component}
}

// Close closes the logger and any associated resources
func (lm *LoggerManager) Close() error {
	if lm.writer != nil {
		return lm.writer.Close()
	}
	return nil
}

func extractContextAttributes(ctx context.Context) []interface{} {
	var attrs []interface{}

	if runID := GetRunID(ctx); runID != "" {
		attrs = append(attrs, slog.String(string(RunIDKey), runID))
	}
	if symbol := GetSymbol(ctx); symbol != "" {
		attrs = append(attrs, slog.String(string(SymbolKey), symbol))
	}
	if operation, ok := ctx.Value(OperationKey).(string); ok && operation != "" {
		attrs = append(attrs, slog.String(string(OperationKey), operation))
	}

	return attrs
}

// NewRunID returns a fresh identifier for a snapshot run.
func NewRunID() string {
	return uuid.NewString()
}

// WithRun adds a run ID and symbol to the context
func WithRun(ctx context.Context, runID, symbol string) context.Context {
	ctx = context.WithValue(ctx, RunIDKey, runID)
	return context.WithValue(ctx, SymbolKey, symbol)
}

// WithOperation adds an operation name to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// GetRunID extracts the run ID from context
func GetRunID(ctx context.Context) string {
	if runID, ok := ctx.Value(RunIDKey).(string); ok {
		return runID
	}
	return ""
}

// GetSymbol extracts the symbol from context
func GetSymbol(ctx context.Context) string {
	if symbol, ok := ctx.Value(SymbolKey).(string); ok {
		return symbol
	}
	return ""
}

// FromContext returns logger annotated with the run attributes carried by ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	attrs := extractContextAttributes(ctx)
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}

// Component returns the component name
func (cl *ComponentLogger) Component() string {
	return cl.component
}

// LogOperation logs the start and end of an operation with timing
func (cl *ComponentLogger) LogOperation(ctx context.Context, operation string, fn func() error) error {
	start := time.Now()
	log := FromContext(ctx, cl.Logger).With(slog.String("operation", operation))
	log.Info("operation started")

	err := fn()
	duration := time.Since(start)

	if err != nil {
		log.Error("operation failed", slog.Duration("duration", duration), slog.Any("error", err))
		return err
	}

	log.Info("operation completed", slog.Duration("duration", duration))
	return nil
}
