package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

// StdoutPath selects standard output as the CSV destination.
const StdoutPath = "-"

// CSVWriter writes rows as CSV records under a fixed header.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
	path   string
	rows   int64
	logger *slog.Logger
}

// NewCSVWriter writes the header to w and returns a writer appending to it.
// Closing the CSVWriter does not close w.
func NewCSVWriter(w io.Writer, logger *slog.Logger) (*CSVWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cw := &CSVWriter{w: csv.NewWriter(w), logger: logger}
	if err := cw.w.Write(models.Header); err != nil {
		return nil, &snaperrors.OutputError{Op: "write header", Err: err}
	}
	if err := cw.Flush(); err != nil {
		return nil, err
	}
	return cw, nil
}

// CreateCSVFile truncates or creates the file at path and writes the header.
// A path of "-" writes to standard output.
func CreateCSVFile(path string, logger *slog.Logger) (*CSVWriter, error) {
	if path == StdoutPath {
		return NewCSVWriter(os.Stdout, logger)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &snaperrors.OutputError{Op: "create", Err: fmt.Errorf("failed to create output directory: %w", err)}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, &snaperrors.OutputError{Op: "create", Err: err}
	}

	cw, err := NewCSVWriter(f, logger)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	cw.path = path

	cw.logger.Debug("csv output created", "path", path)
	return cw, nil
}

// WriteRows implements Writer.
func (c *CSVWriter) WriteRows(rows []models.Row) error {
	for _, row := range rows {
		if err := c.w.Write(row.Record()); err != nil {
			return &snaperrors.OutputError{Op: "write", Err: err}
		}
	}
	c.rows += int64(len(rows))
	return nil
}

// Flush implements Writer.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return &snaperrors.OutputError{Op: "flush", Err: err}
	}
	if f, ok := c.closer.(*os.File); ok {
		if err := f.Sync(); err != nil {
			return &snaperrors.OutputError{Op: "sync", Err: err}
		}
	}
	return nil
}

// Close implements Writer.
func (c *CSVWriter) Close() error {
	flushErr := c.Flush()
	if c.closer == nil {
		return flushErr
	}

	closeErr := c.closer.Close()
	c.closer = nil
	if flushErr != nil {
		return flushErr
	}
	if closeErr != nil {
		return &snaperrors.OutputError{Op: "close", Err: closeErr}
	}

	c.logger.Debug("csv output closed", "path", c.path, "rows", c.rows)
	return nil
}
