// Package models provides the data structures shared by the snapshot pipeline:
// time ranges and frame descriptors produced by partitioning, raw samples as
// returned by the data source, and the normalized rows written to the output.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TimeLayout is the UTC, locale independent layout used for the time column
// of the output artifact.
const TimeLayout = "2006-01-02 15:04:05"

// Header lists the output columns in write order.
var Header = []string{"time", "low", "high", "open", "close", "volume"}

// Row is one OHLCV sample normalized from a raw data source tuple.
// Prices and volume keep the exact decimal representation sent by the source.
type Row struct {
	Timestamp time.Time       `json:"time"`
	Low       decimal.Decimal `json:"low"`
	High      decimal.Decimal `json:"high"`
	Open      decimal.Decimal `json:"open"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// Record returns the row as output fields, in the order given by Header.
func (r Row) Record() []string {
	return []string{
		r.Timestamp.UTC().Format(TimeLayout),
		r.Low.String(),
		r.High.String(),
		r.Open.String(),
		r.Close.String(),
		r.Volume.String(),
	}
}

// String returns a human-readable representation of the row.
func (r Row) String() string {
	return fmt.Sprintf("Row{Time: %s, L: %s, H: %s, O: %s, C: %s, V: %s}",
		r.Timestamp.UTC().Format(time.RFC3339), r.Low, r.High, r.Open, r.Close, r.Volume)
}

// RawSample is a single element of a data source response. It is either a
// data tuple (epoch seconds, low, high, open, close, volume) or an in-band
// error / rate-limit marker, in which case Sentinel is set and Message holds
// the marker as received.
type RawSample struct {
	Time     int64
	Low      decimal.Decimal
	High     decimal.Decimal
	Open     decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
	Sentinel bool
	Message  string
}

// NewTuple builds a data sample. Values are decimal strings in the order
// low, high, open, close, volume.
func NewTuple(epochSeconds int64, low, high, open, close, volume string) (RawSample, error) {
	values := [5]decimal.Decimal{}
	for i, s := range []string{low, high, open, close, volume} {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return RawSample{}, fmt.Errorf("invalid %s value %q: %w", Header[i+1], s, err)
		}
		values[i] = d
	}

	return RawSample{
		Time:   epochSeconds,
		Low:    values[0],
		High:   values[1],
		Open:   values[2],
		Close:  values[3],
		Volume: values[4],
	}, nil
}

// NewSentinel builds an in-band marker sample.
func NewSentinel(message string) RawSample {
	return RawSample{Sentinel: true, Message: message}
}

// IsSentinel reports whether the sample is an error / rate-limit marker
// rather than data.
func (s RawSample) IsSentinel() bool {
	return s.Sentinel
}

// Row converts a data sample into a Row, turning the epoch seconds field
// into a UTC timestamp. It must not be called on a sentinel.
func (s RawSample) Row() Row {
	return Row{
		Timestamp: time.Unix(s.Time, 0).UTC(),
		Low:       s.Low,
		High:      s.High,
		Open:      s.Open,
		Close:     s.Close,
		Volume:    s.Volume,
	}
}
