package snapshot

import (
	"context"
	"log/slog"
	"sort"
	"time"

	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
	"github.com/johnayoung/ohlcv-snapshot/internal/exchange"
	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

// FrameFetcher turns one frame descriptor into one frame result with a
// single data source call. It never retries.
type FrameFetcher struct {
	source             exchange.DataSource
	symbol             string
	granularitySeconds int
	logger             *slog.Logger
	metrics            *runMetrics
}

// NewFrameFetcher creates a fetcher for symbol at the given granularity.
func NewFrameFetcher(source exchange.DataSource, symbol string, granularitySeconds int, logger *slog.Logger) *FrameFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FrameFetcher{
		source:             source,
		symbol:             symbol,
		granularitySeconds: granularitySeconds,
		logger:             logger,
		metrics:            newRunMetrics(),
	}
}

// Fetch requests the frame's window and converts the response into rows.
//
// Samples are consumed in received order up to the first sentinel; the
// sentinel and everything after it are dropped and the result is marked
// Truncated. Rows are returned oldest first. A failed call is returned as a
// *errors.TransientError.
func (f *FrameFetcher) Fetch(ctx context.Context, desc models.FrameDescriptor) (models.FrameResult, error) {
	from, to := desc.Range.FetchWindow(time.Duration(f.granularitySeconds) * time.Second)

	f.metrics.fetchStarted()
	start := time.Now()
	samples, err := f.source.HistoricRates(ctx, f.symbol, from, to, f.granularitySeconds)
	f.metrics.fetchFinished(time.Since(start))

	if err != nil {
		f.metrics.recordFailure()
		if !snaperrors.IsTransient(err) {
			err = snaperrors.NewTransientError("historic rates", 0, err)
		}
		f.logger.Debug("frame fetch failed",
			"frame", desc.Index,
			"range", desc.Range.String(),
			"error_type", snaperrors.Classify(err),
			"error", err)
		return models.FrameResult{}, err
	}

	rows := make([]models.Row, 0, len(samples))
	truncated := false
	for i, s := range samples {
		if s.IsSentinel() {
			truncated = true
			f.logger.Debug("frame truncated by in-band marker",
				"frame", desc.Index,
				"kept", i,
				"dropped", len(samples)-i,
				"marker", s.Message)
			break
		}
		rows = append(rows, s.Row())
	}

	// The source answers newest first.
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp.Before(rows[j].Timestamp)
	})

	f.metrics.recordSuccess(len(rows), truncated)
	f.logger.Debug("frame fetched",
		"frame", desc.Index,
		"rows", len(rows),
		"truncated", truncated,
		"duration", time.Since(start))

	return models.FrameResult{
		Index:     desc.Index,
		Range:     desc.Range,
		Rows:      rows,
		Truncated: truncated,
	}, nil
}

// Stats returns the fetch statistics collected so far.
func (f *FrameFetcher) Stats() Stats {
	return f.metrics.snapshot()
}
