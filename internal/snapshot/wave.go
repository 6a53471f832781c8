package snapshot

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

// Fetcher fetches a single frame.
type Fetcher interface {
	Fetch(ctx context.Context, desc models.FrameDescriptor) (models.FrameResult, error)
}

// WaveResult holds the results of one completed wave, in frame order.
type WaveResult struct {
	Wave    models.Wave
	Results []models.FrameResult
}

// Waves groups consecutive descriptors into waves of at most size frames.
func Waves(descs []models.FrameDescriptor, size int) []models.Wave {
	if size <= 0 || len(descs) == 0 {
		return nil
	}

	waves := make([]models.Wave, 0, (len(descs)+size-1)/size)
	for i := 0; i < len(descs); i += size {
		end := min(i+size, len(descs))
		waves = append(waves, models.Wave{Index: len(waves), Frames: descs[i:end]})
	}
	return waves
}

// WaveScheduler runs frame fetches wave by wave. All fetches of a wave are
// started together and the wave completes only when every one of them has
// finished; the next wave is not dispatched before that.
type WaveScheduler struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewWaveScheduler creates a scheduler over fetcher.
func NewWaveScheduler(fetcher Fetcher, logger *slog.Logger) *WaveScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WaveScheduler{fetcher: fetcher, logger: logger}
}

// Run fetches descs in waves of waveSize and calls handle with each
// completed wave, in wave order, on the calling goroutine.
//
// A failed fetch aborts the run once its wave has drained: handle is not
// called for that wave and no later wave starts. The returned error is a
// *errors.FrameError for the lowest failing frame index. Cancelling ctx
// stops the run before the next wave; a wave already in flight completes.
func (s *WaveScheduler) Run(ctx context.Context, descs []models.FrameDescriptor, waveSize int, handle func(WaveResult) error) error {
	if waveSize <= 0 {
		return snaperrors.NewConfigurationError("wave_size", "must be greater than 0, got %d", waveSize)
	}

	waves := Waves(descs, waveSize)
	for _, wave := range waves {
		if err := ctx.Err(); err != nil {
			s.logger.Info("run cancelled before wave", "wave", wave.Index, "waves", len(waves))
			return err
		}

		result, err := s.runWave(ctx, wave)
		if err != nil {
			return err
		}

		if err := handle(result); err != nil {
			return err
		}
	}
	return nil
}

func (s *WaveScheduler) runWave(ctx context.Context, wave models.Wave) (WaveResult, error) {
	start := time.Now()
	results := make([]models.FrameResult, len(wave.Frames))
	errs := make([]error, len(wave.Frames))

	// In-flight fetches are not interrupted by cancellation.
	fetchCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, desc := range wave.Frames {
		g.Go(func() error {
			res, err := s.fetcher.Fetch(fetchCtx, desc)
			if err != nil {
				errs[i] = err
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for i, ferr := range errs {
			if ferr == nil {
				continue
			}
			desc := wave.Frames[i]
			s.logger.Error("wave failed",
				"wave", wave.Index,
				"frame", desc.Index,
				"range", desc.Range.String(),
				"error", ferr)
			return WaveResult{}, &snaperrors.FrameError{
				Wave:  wave.Index,
				Frame: desc.Index,
				Range: desc.Range,
				Err:   ferr,
			}
		}
	}

	s.logger.Debug("wave completed",
		"wave", wave.Index,
		"frames", len(wave.Frames),
		"duration", time.Since(start))

	return WaveResult{Wave: wave, Results: results}, nil
}
