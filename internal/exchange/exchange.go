// Package exchange defines the data source capability consumed by the
// snapshot pipeline and provides its Coinbase (formerly GDAX) implementation.
//
// The pipeline only ever asks for one bounded window of historic rates at a
// time. Partitioning, concurrency and ordering belong to the caller.
package exchange

import (
	"context"
	"time"

	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

// DataSource retrieves historic OHLCV samples for one bounded window.
//
// The window is inclusive at both ends, as the remote API treats it. Samples
// are returned in the order the source sent them, which for Coinbase is
// newest first. In-band error or rate-limit markers are returned as sentinel
// samples, not as errors, so the caller can keep the samples received before
// the marker.
//
// Implementations should:
//   - Return a *errors.TransientError for transport failures, non-success
//     status codes and bodies that cannot be decoded at all
//   - Never retry on a sentinel
//   - Be safe for concurrent use by the fetch goroutines of a wave
type DataSource interface {
	HistoricRates(ctx context.Context, symbol string, start, end time.Time, granularitySeconds int) ([]models.RawSample, error)
}

// HealthChecker verifies that a product endpoint is reachable.
type HealthChecker interface {
	// Ping returns nil when the product exists and the API answers.
	Ping(ctx context.Context, symbol string) error
}

// Exchange combines all exchange capabilities.
type Exchange interface {
	DataSource
	HealthChecker
}
