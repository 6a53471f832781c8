// Package snapshot retrieves a long OHLCV history from a page-bounded,
// rate-limited data source and writes it as one chronologically ordered
// artifact.
//
// A run partitions the requested range into frames no larger than one API
// page, fetches the frames concurrently in fixed-size waves, and merges each
// completed wave into the output in frame order before the next wave starts:
//
//	Partition -> WaveScheduler (FrameFetcher x waveSize) -> MergeSink -> output.Writer
//
// Frames cut short by an in-band rate-limit marker keep the rows received
// before the marker. Transport failures abort the run; waves merged before
// the failure stay on disk.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/johnayoung/ohlcv-snapshot/internal/config"
	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
	"github.com/johnayoung/ohlcv-snapshot/internal/exchange"
	"github.com/johnayoung/ohlcv-snapshot/internal/logger"
	"github.com/johnayoung/ohlcv-snapshot/internal/models"
	"github.com/johnayoung/ohlcv-snapshot/internal/output"
)

// Options are the partitioning and scheduling constants of a run.
type Options struct {
	Symbol             string
	GranularitySeconds int
	MaxSamplesPerCall  int
	WaveSize           int
}

// OptionsFromConfig converts the snapshot section of the application config.
func OptionsFromConfig(cfg config.SnapshotConfig) Options {
	return Options{
		Symbol:             cfg.Symbol,
		GranularitySeconds: cfg.GranularitySeconds,
		MaxSamplesPerCall:  cfg.MaxSamplesPerCall,
		WaveSize:           cfg.WaveSize,
	}
}

// Validate reports the first invalid option as a ConfigurationError.
func (o Options) Validate() error {
	switch {
	case strings.TrimSpace(o.Symbol) == "":
		return snaperrors.NewConfigurationError("symbol", "is required")
	case o.GranularitySeconds <= 0:
		return snaperrors.NewConfigurationError("granularity_seconds", "must be greater than 0, got %d", o.GranularitySeconds)
	case o.MaxSamplesPerCall <= 0:
		return snaperrors.NewConfigurationError("max_samples_per_call", "must be greater than 0, got %d", o.MaxSamplesPerCall)
	case o.WaveSize <= 0:
		return snaperrors.NewConfigurationError("wave_size", "must be greater than 0, got %d", o.WaveSize)
	}
	return nil
}

// Plan describes the frames and waves of a run without fetching anything.
type Plan struct {
	Range           models.TimeRange         `json:"range"`
	Frames          []models.FrameDescriptor `json:"frames"`
	Waves           []models.Wave            `json:"waves"`
	ExpectedSamples int64                    `json:"expected_samples"`
}

// Report summarizes a successful run.
type Report struct {
	RunID           string        `json:"run_id"`
	Symbol          string        `json:"symbol"`
	Start           time.Time     `json:"start"`
	End             time.Time     `json:"end"`
	Frames          int           `json:"frames"`
	Waves           int           `json:"waves"`
	Rows            int64         `json:"rows"`
	TruncatedFrames int           `json:"truncated_frames"`
	ExpectedSamples int64         `json:"expected_samples"`
	Duration        time.Duration `json:"duration"`
	Stats           Stats         `json:"stats"`
}

// Coverage returns the fraction of expected samples that were written.
func (r *Report) Coverage() float64 {
	if r.ExpectedSamples == 0 {
		return 1
	}
	return float64(r.Rows) / float64(r.ExpectedSamples)
}

// Runner executes snapshot runs against one data source and one writer.
// The caller owns the writer and closes it after Run returns.
type Runner struct {
	source exchange.DataSource
	writer output.Writer
	opts   Options
	logger *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(source exchange.DataSource, writer output.Writer, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{source: source, writer: writer, opts: opts, logger: logger}
}

// Plan partitions [start, end) and groups the frames into waves.
func (r *Runner) Plan(start, end time.Time) (*Plan, error) {
	if err := r.opts.Validate(); err != nil {
		return nil, err
	}

	frames, err := Partition(start, end, r.opts.GranularitySeconds, r.opts.MaxSamplesPerCall)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Range:           models.TimeRange{Start: start.UTC(), End: end.UTC()},
		Frames:          frames,
		Waves:           Waves(frames, r.opts.WaveSize),
		ExpectedSamples: ExpectedSamples(start, end, r.opts.GranularitySeconds),
	}, nil
}

// Run snapshots [start, end) into the writer.
//
// Invalid options or an invalid range fail with a ConfigurationError before
// anything is fetched. Any other failure is returned as a *errors.RunError
// naming the failing wave and frame and the number of rows already flushed.
func (r *Runner) Run(ctx context.Context, start, end time.Time) (*Report, error) {
	plan, err := r.Plan(start, end)
	if err != nil {
		return nil, err
	}

	runID := logger.NewRunID()
	ctx = logger.WithRun(ctx, runID, r.opts.Symbol)
	log := logger.FromContext(ctx, r.logger)

	began := time.Now()
	log.Info("snapshot started",
		"range", plan.Range.String(),
		"granularity_seconds", r.opts.GranularitySeconds,
		"frames", len(plan.Frames),
		"waves", len(plan.Waves),
		"wave_size", r.opts.WaveSize)

	fetcher := NewFrameFetcher(r.source, r.opts.Symbol, r.opts.GranularitySeconds, log)
	scheduler := NewWaveScheduler(fetcher, log)
	sink := NewMergeSink(r.writer, log)

	err = scheduler.Run(ctx, plan.Frames, r.opts.WaveSize, func(wr WaveResult) error {
		if err := sink.Append(wr.Results); err != nil {
			return err
		}
		log.Info("wave merged",
			"wave", fmt.Sprintf("%d/%d", wr.Wave.Index+1, len(plan.Waves)),
			"rows", sink.RowsWritten())
		return nil
	})
	if err != nil {
		runErr := &snaperrors.RunError{
			Wave:        -1,
			Frame:       -1,
			WavesMerged: sink.WavesMerged(),
			RowsFlushed: sink.RowsFlushed(),
			Err:         err,
		}
		var frameErr *snaperrors.FrameError
		if errors.As(err, &frameErr) {
			runErr.Wave = frameErr.Wave
			runErr.Frame = frameErr.Frame
		}

		log.Error("snapshot aborted",
			"waves_merged", runErr.WavesMerged,
			"rows_flushed", runErr.RowsFlushed,
			"error_type", snaperrors.Classify(err),
			"error", err)
		return nil, runErr
	}

	report := &Report{
		RunID:           runID,
		Symbol:          r.opts.Symbol,
		Start:           plan.Range.Start,
		End:             plan.Range.End,
		Frames:          len(plan.Frames),
		Waves:           len(plan.Waves),
		Rows:            sink.RowsWritten(),
		TruncatedFrames: sink.TruncatedFrames(),
		ExpectedSamples: plan.ExpectedSamples,
		Duration:        time.Since(began),
		Stats:           fetcher.Stats(),
	}

	if report.TruncatedFrames > 0 {
		log.Warn("frames truncated by rate-limit markers", "frames", report.TruncatedFrames)
	}
	log.Info("snapshot completed",
		"rows", report.Rows,
		"returned_expected", fmt.Sprintf("%d/%d", report.Rows, report.ExpectedSamples),
		"duration", report.Duration)

	return report, nil
}
