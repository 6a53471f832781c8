package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

var testStart = time.Date(2017, time.January, 1, 6, 0, 0, 0, time.UTC)

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockDataSource is a testify mock of exchange.DataSource.
type mockDataSource struct {
	mock.Mock
}

func (m *mockDataSource) HistoricRates(ctx context.Context, symbol string, start, end time.Time, granularitySeconds int) ([]models.RawSample, error) {
	args := m.Called(ctx, symbol, start, end, granularitySeconds)
	samples, _ := args.Get(0).([]models.RawSample)
	return samples, args.Error(1)
}

// funcSource adapts a function to exchange.DataSource.
type funcSource func(ctx context.Context, symbol string, start, end time.Time, granularitySeconds int) ([]models.RawSample, error)

func (f funcSource) HistoricRates(ctx context.Context, symbol string, start, end time.Time, granularitySeconds int) ([]models.RawSample, error) {
	return f(ctx, symbol, start, end, granularitySeconds)
}

// sampleAt returns a deterministic tuple for epoch second t.
func sampleAt(t int64) models.RawSample {
	cents := t / 60 % 500
	s, err := models.NewTuple(t,
		fmt.Sprintf("8.%03d", cents),
		fmt.Sprintf("9.%03d", cents),
		fmt.Sprintf("8.5%02d", cents%100),
		fmt.Sprintf("8.6%02d", cents%100),
		fmt.Sprintf("%d.25", cents+1))
	if err != nil {
		panic(err)
	}
	return s
}

// generateSamples answers an inclusive window newest first, the way the
// Coinbase candles endpoint does.
func generateSamples(from, to time.Time, granularitySeconds int) []models.RawSample {
	var out []models.RawSample
	for t := to.Unix(); t >= from.Unix(); t -= int64(granularitySeconds) {
		out = append(out, sampleAt(t))
	}
	return out
}

func completeSource() funcSource {
	return func(_ context.Context, _ string, start, end time.Time, granularitySeconds int) ([]models.RawSample, error) {
		return generateSamples(start, end, granularitySeconds), nil
	}
}

// memoryWriter is an output.Writer recording written and flushed rows.
type memoryWriter struct {
	rows     []models.Row
	flushed  int
	flushes  int
	closed   bool
	writeErr error
	flushErr error
}

func (w *memoryWriter) WriteRows(rows []models.Row) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.rows = append(w.rows, rows...)
	return nil
}

func (w *memoryWriter) Flush() error {
	if w.flushErr != nil {
		return w.flushErr
	}
	w.flushed = len(w.rows)
	w.flushes++
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return w.Flush()
}

func renderRows(rows []models.Row) string {
	var buf bytes.Buffer
	for _, r := range rows {
		fmt.Fprintln(&buf, r.Record())
	}
	return buf.String()
}
