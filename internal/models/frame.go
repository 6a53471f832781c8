package models

import (
	"fmt"
	"time"
)

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the range.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Validate checks that the range is non-empty.
func (r TimeRange) Validate() error {
	if !r.End.After(r.Start) {
		return fmt.Errorf("range end %s must be after start %s",
			r.End.UTC().Format(time.RFC3339), r.Start.UTC().Format(time.RFC3339))
	}
	return nil
}

// FetchWindow returns the inclusive [start, end] window to request from a
// source that returns samples on both boundaries. The window ends at the
// last sample slot, counted from Start, that begins before End; the sample
// at End belongs to the next frame.
func (r TimeRange) FetchWindow(granularity time.Duration) (time.Time, time.Time) {
	if granularity <= 0 || !r.End.After(r.Start) {
		return r.Start, r.Start
	}
	slots := (r.Duration() - 1) / granularity
	return r.Start, r.Start.Add(slots * granularity)
}

// String formats the range in RFC3339, UTC.
func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339))
}

// FrameDescriptor identifies one bounded sub-range of a snapshot. Index is
// assigned once at partition time and is the only key used to order output.
type FrameDescriptor struct {
	Index int       `json:"index"`
	Range TimeRange `json:"range"`
}

// FrameResult holds the rows fetched for one frame, oldest first.
// Truncated is set when the response ended early on an in-band marker.
type FrameResult struct {
	Index     int
	Range     TimeRange
	Rows      []Row
	Truncated bool
}

// Wave is a batch of consecutive frames fetched concurrently.
type Wave struct {
	Index  int
	Frames []FrameDescriptor
}

// Size returns the number of frames in the wave.
func (w Wave) Size() int {
	return len(w.Frames)
}
