package output

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

// DuckDBWriter writes rows into a single table of a DuckDB database file
// through the Appender API. The table is recreated when the writer opens.
type DuckDBWriter struct {
	db       *sql.DB
	conn     *sql.Conn
	appender *duckdb.Appender
	dbPath   string
	table    string
	rows     int64
	logger   *slog.Logger
}

// NewDuckDBWriter opens the database at dbPath (":memory:" for an in-memory
// database), recreates table and prepares an appender on it.
func NewDuckDBWriter(dbPath, table string, logger *slog.Logger) (*DuckDBWriter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if table == "" {
		table = "candles"
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, &snaperrors.OutputError{Op: "open", Err: fmt.Errorf("failed to open DuckDB database: %w", err)}
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	w := &DuckDBWriter{db: db, dbPath: dbPath, table: table, logger: logger}
	if err := w.initialize(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("duckdb output created", "db_path", dbPath, "table", table)
	return w, nil
}

func (d *DuckDBWriter) initialize(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE OR REPLACE TABLE %s (
		time TIMESTAMP NOT NULL,
		low DOUBLE NOT NULL,
		high DOUBLE NOT NULL,
		open DOUBLE NOT NULL,
		close DOUBLE NOT NULL,
		volume DOUBLE NOT NULL
	)`, quoteIdent(d.table))

	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return &snaperrors.OutputError{Op: "create table", Err: err}
	}

	conn, err := d.db.Conn(ctx)
	if err != nil {
		return &snaperrors.OutputError{Op: "open", Err: fmt.Errorf("failed to get connection: %w", err)}
	}

	var driverConn *duckdb.Conn
	err = conn.Raw(func(dc interface{}) error {
		var ok bool
		driverConn, ok = dc.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("underlying connection is not a DuckDB connection")
		}
		return nil
	})
	if err != nil {
		conn.Close()
		return &snaperrors.OutputError{Op: "open", Err: fmt.Errorf("failed to get DuckDB connection: %w", err)}
	}

	appender, err := duckdb.NewAppenderFromConn(driverConn, "", d.table)
	if err != nil {
		conn.Close()
		return &snaperrors.OutputError{Op: "open", Err: fmt.Errorf("failed to create appender: %w", err)}
	}

	d.conn = conn
	d.appender = appender
	return nil
}

// WriteRows implements Writer.
func (d *DuckDBWriter) WriteRows(rows []models.Row) error {
	if d.appender == nil {
		return &snaperrors.OutputError{Op: "write", Err: fmt.Errorf("writer is closed")}
	}

	for _, row := range rows {
		if err := d.appendRow(row); err != nil {
			return &snaperrors.OutputError{Op: "write", Err: fmt.Errorf("failed to append row %s: %w", row, err)}
		}
	}
	d.rows += int64(len(rows))
	return nil
}

func (d *DuckDBWriter) appendRow(row models.Row) error {
	// DOUBLE columns; the CSV writer keeps the exact decimal text
	low, _ := row.Low.Float64()
	high, _ := row.High.Float64()
	open, _ := row.Open.Float64()
	close, _ := row.Close.Float64()
	volume, _ := row.Volume.Float64()

	return d.appender.AppendRow(row.Timestamp.UTC(), low, high, open, close, volume)
}

// Flush implements Writer.
func (d *DuckDBWriter) Flush() error {
	if d.appender == nil {
		return nil
	}

	start := time.Now()
	if err := d.appender.Flush(); err != nil {
		return &snaperrors.OutputError{Op: "flush", Err: fmt.Errorf("failed to flush appender: %w", err)}
	}
	d.logger.Debug("flushed duckdb appender", "rows", d.rows, "duration", time.Since(start))
	return nil
}

// Close implements Writer.
func (d *DuckDBWriter) Close() error {
	if d.db == nil {
		return nil
	}

	var firstErr error
	if d.appender != nil {
		if err := d.appender.Close(); err != nil {
			firstErr = &snaperrors.OutputError{Op: "close", Err: fmt.Errorf("failed to close appender: %w", err)}
		}
		d.appender = nil
	}
	if d.conn != nil {
		d.conn.Close()
		d.conn = nil
	}
	if err := d.db.Close(); err != nil && firstErr == nil {
		firstErr = &snaperrors.OutputError{Op: "close", Err: fmt.Errorf("failed to close database: %w", err)}
	}
	d.db = nil

	d.logger.Debug("duckdb output closed", "db_path", d.dbPath, "rows", d.rows)
	return firstErr
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
