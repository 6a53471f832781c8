// Package output provides the writers for the single artifact a snapshot run
// produces. Writers are used from one goroutine only and are not safe for
// concurrent use.
package output

import (
	"fmt"
	"log/slog"

	"github.com/johnayoung/ohlcv-snapshot/internal/config"
	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

// Supported artifact formats.
const (
	FormatCSV    = "csv"
	FormatDuckDB = "duckdb"
)

// Writer receives rows in final order.
type Writer interface {
	// WriteRows appends rows after everything written so far.
	WriteRows(rows []models.Row) error
	// Flush makes everything written so far durable in the artifact.
	Flush() error
	// Close flushes and releases the artifact.
	Close() error
}

// Open creates the writer selected by cfg. The artifact is truncated or
// recreated, so a run that writes no rows still leaves a valid, empty artifact.
func Open(cfg config.OutputConfig, logger *slog.Logger) (Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Format {
	case "", FormatCSV:
		w, err := CreateCSVFile(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	case FormatDuckDB:
		w, err := NewDuckDBWriter(cfg.Path, cfg.Table, logger)
		if err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", cfg.Format)
	}
}
