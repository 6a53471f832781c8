package snapshot

import (
	"sync/atomic"
	"time"
)

// Stats is a point-in-time view of a run's fetch metrics.
type Stats struct {
	FramesFetched   int64         `json:"frames_fetched"`
	FramesFailed    int64         `json:"frames_failed"`
	FramesTruncated int64         `json:"frames_truncated"`
	RowsFetched     int64         `json:"rows_fetched"`
	AvgFetchTime    time.Duration `json:"avg_fetch_time"`
	MaxFetchTime    time.Duration `json:"max_fetch_time"`
	PeakInFlight    int64         `json:"peak_in_flight"`
}

// runMetrics tracks fetch statistics. Fetch goroutines update it
// concurrently, so every field is atomic.
type runMetrics struct {
	framesFetched   int64
	framesFailed    int64
	framesTruncated int64
	rowsFetched     int64

	// Fetch time tracking, nanoseconds
	totalFetchTime int64
	maxFetchTime   int64

	inFlight     int64
	peakInFlight int64
}

func newRunMetrics() *runMetrics {
	return &runMetrics{}
}

// fetchStarted records a fetch entering flight.
func (m *runMetrics) fetchStarted() {
	n := atomic.AddInt64(&m.inFlight, 1)
	for {
		peak := atomic.LoadInt64(&m.peakInFlight)
		if n <= peak || atomic.CompareAndSwapInt64(&m.peakInFlight, peak, n) {
			return
		}
	}
}

// fetchFinished records a fetch leaving flight.
func (m *runMetrics) fetchFinished(duration time.Duration) {
	atomic.AddInt64(&m.inFlight, -1)
	atomic.AddInt64(&m.totalFetchTime, duration.Nanoseconds())
	for {
		cur := atomic.LoadInt64(&m.maxFetchTime)
		if duration.Nanoseconds() <= cur || atomic.CompareAndSwapInt64(&m.maxFetchTime, cur, duration.Nanoseconds()) {
			return
		}
	}
}

func (m *runMetrics) recordSuccess(rows int, truncated bool) {
	atomic.AddInt64(&m.framesFetched, 1)
	atomic.AddInt64(&m.rowsFetched, int64(rows))
	if truncated {
		atomic.AddInt64(&m.framesTruncated, 1)
	}
}

func (m *runMetrics) recordFailure() {
	atomic.AddInt64(&m.framesFailed, 1)
}

// snapshot returns the current statistics.
func (m *runMetrics) snapshot() Stats {
	fetched := atomic.LoadInt64(&m.framesFetched)
	failed := atomic.LoadInt64(&m.framesFailed)

	var avg time.Duration
	if total := fetched + failed; total > 0 {
		avg = time.Duration(atomic.LoadInt64(&m.totalFetchTime) / total)
	}

	return Stats{
		FramesFetched:   fetched,
		FramesFailed:    failed,
		FramesTruncated: atomic.LoadInt64(&m.framesTruncated),
		RowsFetched:     atomic.LoadInt64(&m.rowsFetched),
		AvgFetchTime:    avg,
		MaxFetchTime:    time.Duration(atomic.LoadInt64(&m.maxFetchTime)),
		PeakInFlight:    atomic.LoadInt64(&m.peakInFlight),
	}
}
