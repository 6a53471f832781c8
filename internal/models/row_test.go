package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEpoch = int64(1483250400) // 2017-01-01 06:00:00 UTC

func TestNewTuple(t *testing.T) {
	t.Run("parses decimal fields", func(t *testing.T) {
		s, err := NewTuple(testEpoch, "8.1", "8.5", "8.2", "8.45", "120.75")
		require.NoError(t, err)

		assert.False(t, s.IsSentinel())
		assert.Equal(t, testEpoch, s.Time)
		assert.True(t, decimal.RequireFromString("8.1").Equal(s.Low))
		assert.True(t, decimal.RequireFromString("8.5").Equal(s.High))
		assert.True(t, decimal.RequireFromString("8.2").Equal(s.Open))
		assert.True(t, decimal.RequireFromString("8.45").Equal(s.Close))
		assert.True(t, decimal.RequireFromString("120.75").Equal(s.Volume))
	})

	t.Run("rejects malformed values", func(t *testing.T) {
		_, err := NewTuple(testEpoch, "8.1", "abc", "8.2", "8.45", "1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid high value")
	})
}

func TestRawSampleRow(t *testing.T) {
	s, err := NewTuple(testEpoch, "8.1", "8.5", "8.2", "8.45", "120.75")
	require.NoError(t, err)

	row := s.Row()
	assert.Equal(t, time.Date(2017, time.January, 1, 6, 0, 0, 0, time.UTC), row.Timestamp)
	assert.Equal(t, time.UTC, row.Timestamp.Location())
	assert.Equal(t, []string{"2017-01-01 06:00:00", "8.1", "8.5", "8.2", "8.45", "120.75"}, row.Record())
}

func TestSentinel(t *testing.T) {
	s := NewSentinel(`{"message":"Slow rate limit exceeded"}`)

	assert.True(t, s.IsSentinel())
	assert.Contains(t, s.Message, "rate limit")
}

func TestRecordMatchesHeader(t *testing.T) {
	s, err := NewTuple(testEpoch, "1", "2", "3", "4", "5")
	require.NoError(t, err)
	assert.Len(t, s.Row().Record(), len(Header))
	assert.Equal(t, []string{"time", "low", "high", "open", "close", "volume"}, Header)
}

func TestTimeRange(t *testing.T) {
	start := time.Date(2017, time.January, 1, 6, 0, 0, 0, time.UTC)

	t.Run("validate", func(t *testing.T) {
		assert.NoError(t, TimeRange{Start: start, End: start.Add(time.Minute)}.Validate())
		assert.Error(t, TimeRange{Start: start, End: start}.Validate())
		assert.Error(t, TimeRange{Start: start, End: start.Add(-time.Minute)}.Validate())
	})

	t.Run("fetch window excludes the next frame's first sample", func(t *testing.T) {
		r := TimeRange{Start: start, End: start.Add(200 * time.Minute)}
		from, to := r.FetchWindow(time.Minute)
		assert.Equal(t, start, from)
		assert.Equal(t, start.Add(199*time.Minute), to)
	})

	t.Run("fetch window keeps the last slot of an unaligned end", func(t *testing.T) {
		r := TimeRange{Start: start, End: start.Add(10*time.Minute + 30*time.Second)}
		_, to := r.FetchWindow(time.Minute)
		assert.Equal(t, start.Add(10*time.Minute), to)
	})

	t.Run("fetch window is clamped for sub-granularity ranges", func(t *testing.T) {
		r := TimeRange{Start: start, End: start.Add(30 * time.Second)}
		from, to := r.FetchWindow(time.Minute)
		assert.Equal(t, start, from)
		assert.Equal(t, start, to)
	})
}
