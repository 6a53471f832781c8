package snapshot

import (
	"log/slog"
	"sort"

	"github.com/johnayoung/ohlcv-snapshot/internal/models"
	"github.com/johnayoung/ohlcv-snapshot/internal/output"
)

// MergeSink appends completed waves to the output writer in frame index
// order. It keeps counters only; rows are not retained once written.
type MergeSink struct {
	writer output.Writer
	logger *slog.Logger

	rowsWritten     int64
	rowsFlushed     int64
	framesMerged    int
	wavesMerged     int
	truncatedFrames int
}

// NewMergeSink creates a sink writing to w.
func NewMergeSink(w output.Writer, logger *slog.Logger) *MergeSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MergeSink{writer: w, logger: logger}
}

// Append writes the rows of one wave's results, ordered by frame index, and
// flushes the writer so the wave is durable before the next one starts.
func (m *MergeSink) Append(results []models.FrameResult) error {
	ordered := make([]models.FrameResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	for _, r := range ordered {
		if err := m.writer.WriteRows(r.Rows); err != nil {
			return err
		}
		m.rowsWritten += int64(len(r.Rows))
		m.framesMerged++
		if r.Truncated {
			m.truncatedFrames++
		}
	}

	if err := m.writer.Flush(); err != nil {
		return err
	}
	m.rowsFlushed = m.rowsWritten
	m.wavesMerged++

	m.logger.Debug("wave merged",
		"frames", len(ordered),
		"rows_flushed", m.rowsFlushed)
	return nil
}

// RowsWritten returns the number of rows handed to the writer.
func (m *MergeSink) RowsWritten() int64 { return m.rowsWritten }

// RowsFlushed returns the number of rows covered by the last successful flush.
func (m *MergeSink) RowsFlushed() int64 { return m.rowsFlushed }

// WavesMerged returns the number of waves fully written and flushed.
func (m *MergeSink) WavesMerged() int { return m.wavesMerged }

// FramesMerged returns the number of frames written.
func (m *MergeSink) FramesMerged() int { return m.framesMerged }

// TruncatedFrames returns how many merged frames were cut short by an
// in-band marker.
func (m *MergeSink) TruncatedFrames() int { return m.truncatedFrames }
