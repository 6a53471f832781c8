package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

func rowsFor(from time.Time, n int) []models.Row {
	rows := make([]models.Row, n)
	for i := range rows {
		rows[i] = sampleAt(from.Add(time.Duration(i) * time.Minute).Unix()).Row()
	}
	return rows
}

func TestMergeSink_OrdersByIndex(t *testing.T) {
	a := models.FrameResult{Index: 0, Rows: rowsFor(testStart, 3)}
	b := models.FrameResult{Index: 1, Rows: rowsFor(testStart.Add(3*time.Minute), 2), Truncated: true}
	c := models.FrameResult{Index: 2, Rows: rowsFor(testStart.Add(5*time.Minute), 4)}

	inOrder := &memoryWriter{}
	require.NoError(t, NewMergeSink(inOrder, createTestLogger()).Append([]models.FrameResult{a, b, c}))

	shuffled := &memoryWriter{}
	sink := NewMergeSink(shuffled, createTestLogger())
	require.NoError(t, sink.Append([]models.FrameResult{c, a, b}))

	assert.Equal(t, renderRows(inOrder.rows), renderRows(shuffled.rows))
	assert.EqualValues(t, 9, sink.RowsWritten())
	assert.EqualValues(t, 9, sink.RowsFlushed())
	assert.Equal(t, 3, sink.FramesMerged())
	assert.Equal(t, 1, sink.WavesMerged())
	assert.Equal(t, 1, sink.TruncatedFrames())
	for i := 1; i < len(shuffled.rows); i++ {
		assert.True(t, shuffled.rows[i-1].Timestamp.Before(shuffled.rows[i].Timestamp))
	}
}

func TestMergeSink_FlushesEveryWave(t *testing.T) {
	w := &memoryWriter{}
	sink := NewMergeSink(w, createTestLogger())

	require.NoError(t, sink.Append([]models.FrameResult{{Index: 0, Rows: rowsFor(testStart, 2)}}))
	assert.Equal(t, 1, w.flushes)
	assert.Equal(t, 2, w.flushed)

	require.NoError(t, sink.Append([]models.FrameResult{{Index: 1}}))
	assert.Equal(t, 2, w.flushes, "an empty wave still flushes")
	assert.Equal(t, 2, sink.WavesMerged())
}

func TestMergeSink_WriterFailure(t *testing.T) {
	w := &memoryWriter{}
	sink := NewMergeSink(w, createTestLogger())
	require.NoError(t, sink.Append([]models.FrameResult{{Index: 0, Rows: rowsFor(testStart, 2)}}))

	w.flushErr = errors.New("disk full")
	err := sink.Append([]models.FrameResult{{Index: 1, Rows: rowsFor(testStart.Add(2*time.Minute), 3)}})
	require.Error(t, err)

	assert.Equal(t, 1, sink.WavesMerged())
	assert.EqualValues(t, 2, sink.RowsFlushed())
	assert.EqualValues(t, 5, sink.RowsWritten())
}
