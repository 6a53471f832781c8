package snapshot

import (
	"time"

	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

// Partition splits the half-open range [start, end) into contiguous frames
// of at most maxSamplesPerCall samples each. Frames are indexed 0..n-1 in
// time order and that index is the only ordering key used when merging.
//
// A zero-length range yields no frames. A range no longer than one span
// yields a single frame covering it exactly.
func Partition(start, end time.Time, granularitySeconds, maxSamplesPerCall int) ([]models.FrameDescriptor, error) {
	if granularitySeconds <= 0 {
		return nil, snaperrors.NewConfigurationError("granularity_seconds", "must be greater than 0, got %d", granularitySeconds)
	}
	if maxSamplesPerCall <= 0 {
		return nil, snaperrors.NewConfigurationError("max_samples_per_call", "must be greater than 0, got %d", maxSamplesPerCall)
	}
	if end.Before(start) {
		return nil, snaperrors.NewConfigurationError("range", "end %s is before start %s",
			end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	}

	span := time.Duration(maxSamplesPerCall) * time.Duration(granularitySeconds) * time.Second
	if span <= 0 || span/time.Second/time.Duration(granularitySeconds) != time.Duration(maxSamplesPerCall) {
		return nil, snaperrors.NewConfigurationError("max_samples_per_call", "frame span of %d samples of %ds overflows", maxSamplesPerCall, granularitySeconds)
	}

	start, end = start.UTC(), end.UTC()
	if start.Equal(end) {
		return []models.FrameDescriptor{}, nil
	}

	if end.Sub(start) <= span {
		return []models.FrameDescriptor{{Index: 0, Range: models.TimeRange{Start: start, End: end}}}, nil
	}

	frames := make([]models.FrameDescriptor, 0, int(end.Sub(start)/span)+1)
	cursor := start
	for !cursor.Add(span).After(end) {
		frames = append(frames, models.FrameDescriptor{
			Index: len(frames),
			Range: models.TimeRange{Start: cursor, End: cursor.Add(span)},
		})
		cursor = cursor.Add(span)
	}
	if cursor.Before(end) {
		frames = append(frames, models.FrameDescriptor{
			Index: len(frames),
			Range: models.TimeRange{Start: cursor, End: end},
		})
	}

	return frames, nil
}

// ExpectedSamples returns how many sample slots of the given granularity
// start inside [start, end).
func ExpectedSamples(start, end time.Time, granularitySeconds int) int64 {
	if granularitySeconds <= 0 || !end.After(start) {
		return 0
	}
	g := time.Duration(granularitySeconds) * time.Second
	d := end.Sub(start)
	n := int64(d / g)
	if d%g != 0 {
		n++
	}
	return n
}
