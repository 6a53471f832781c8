package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/johnayoung/ohlcv-snapshot/internal/config"
	snaperrors "github.com/johnayoung/ohlcv-snapshot/internal/errors"
	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

const (
	// Coinbase Exchange public API base URL
	coinbaseBaseURL = "https://api.exchange.coinbase.com"

	productEndpoint = "/products/%s"
	candlesEndpoint = "/products/%s/candles"

	requestTimeout = 30 * time.Second

	// Retry configuration, used only when RetryAttempts > 0
	initialRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 10 * time.Second
	retryMultiplier   = 2.0
	retryJitter       = 0.5

	maxErrorBody = 512
)

// CoinbaseConfig configures a CoinbaseAdapter.
type CoinbaseConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RateLimit     float64 // requests per second, 0 disables pacing
	Burst         int
	RetryAttempts int // transport retries per call, 0 disables
	UserAgent     string
}

// ConfigFromApp converts the exchange section of the application config.
func ConfigFromApp(cfg config.ExchangeConfig) CoinbaseConfig {
	return CoinbaseConfig{
		BaseURL:       cfg.BaseURL,
		Timeout:       cfg.TimeoutDuration(),
		RateLimit:     cfg.RateLimit,
		Burst:         cfg.Burst,
		RetryAttempts: cfg.RetryAttempts,
		UserAgent:     cfg.UserAgent,
	}
}

// CoinbaseAdapter implements Exchange against the Coinbase Exchange candles
// endpoint. It is safe for concurrent use.
type CoinbaseAdapter struct {
	httpClient    *http.Client
	rateLimiter   *rate.Limiter
	baseURL       string
	userAgent     string
	retryAttempts int
	logger        *slog.Logger
}

// NewCoinbaseAdapter creates a Coinbase adapter. Zero fields of cfg fall
// back to defaults.
func NewCoinbaseAdapter(cfg CoinbaseConfig, logger *slog.Logger) *CoinbaseAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = coinbaseBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = requestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "ohlcv-snapshot/1.0"
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}

	return &CoinbaseAdapter{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter:   limiter,
		baseURL:       cfg.BaseURL,
		userAgent:     cfg.UserAgent,
		retryAttempts: max(cfg.RetryAttempts, 0),
		logger:        logger,
	}
}

// HistoricRates implements DataSource.
func (c *CoinbaseAdapter) HistoricRates(ctx context.Context, symbol string, start, end time.Time, granularitySeconds int) ([]models.RawSample, error) {
	params := url.Values{}
	params.Set("start", start.UTC().Format(time.RFC3339))
	params.Set("end", end.UTC().Format(time.RFC3339))
	params.Set("granularity", strconv.Itoa(granularitySeconds))

	requestURL := c.baseURL + fmt.Sprintf(candlesEndpoint, url.PathEscape(symbol)) + "?" + params.Encode()

	c.logger.Debug("fetching historic rates",
		"symbol", symbol,
		"start", start,
		"end", end,
		"granularity", granularitySeconds)

	body, err := c.get(ctx, "candles", requestURL)
	if err != nil {
		return nil, err
	}

	samples, err := decodeCandles(body)
	if err != nil {
		return nil, snaperrors.NewTransientError("candles", 0, err)
	}

	c.logger.Debug("received historic rates", "symbol", symbol, "samples", len(samples))
	return samples, nil
}

// Ping implements HealthChecker.
func (c *CoinbaseAdapter) Ping(ctx context.Context, symbol string) error {
	requestURL := c.baseURL + fmt.Sprintf(productEndpoint, url.PathEscape(symbol))
	if _, err := c.get(ctx, "product", requestURL); err != nil {
		return err
	}
	c.logger.Debug("product endpoint reachable", "symbol", symbol)
	return nil
}

// get performs a paced GET and returns the body of a 2xx response. Failed
// attempts are retried up to retryAttempts times when the failure is
// retryable; everything that still fails is a TransientError.
func (c *CoinbaseAdapter) get(ctx context.Context, op, requestURL string) ([]byte, error) {
	var body []byte

	operation := func() error {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return backoff.Permanent(snaperrors.NewTransientError(op, 0, fmt.Errorf("rate limit wait failed: %w", err)))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return backoff.Permanent(snaperrors.NewTransientError(op, 0, fmt.Errorf("failed to create request: %w", err)))
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retryable(snaperrors.NewTransientError(op, 0, fmt.Errorf("request failed: %w", err)))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retryable(snaperrors.NewTransientError(op, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)))
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return retryable(snaperrors.NewTransientError(op, resp.StatusCode, fmt.Errorf("%s", truncate(data))))
		}

		body = data
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying",
			"op", op,
			"error", err,
			"retry_in", wait)
	}

	if err := backoff.RetryNotify(operation, c.newBackOff(ctx), notify); err != nil {
		if snaperrors.IsTransient(err) {
			return nil, err
		}
		return nil, snaperrors.NewTransientError(op, 0, err)
	}
	return body, nil
}

func (c *CoinbaseAdapter) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialRetryDelay
	b.MaxInterval = maxRetryDelay
	b.Multiplier = retryMultiplier
	b.RandomizationFactor = retryJitter
	b.MaxElapsedTime = 0 // bounded by the attempt count and ctx
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retryAttempts)), ctx)
}

// retryable marks err permanent unless its classification allows a retry.
func retryable(err error) error {
	if snaperrors.Classify(err).Retryable() {
		return err
	}
	return backoff.Permanent(err)
}

func truncate(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}

// decodeCandles decodes a candles response body. An array yields one sample
// per element; elements that are not a six number tuple become sentinels.
// An object body such as {"message": "..."} is a single sentinel.
func decodeCandles(body []byte) ([]models.RawSample, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}

	switch body[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("failed to parse candles response: %w", err)
		}
		return []models.RawSample{models.NewSentinel(string(body))}, nil
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(body, &elems); err != nil {
			return nil, fmt.Errorf("failed to parse candles response: %w", err)
		}
		samples := make([]models.RawSample, 0, len(elems))
		for _, elem := range elems {
			samples = append(samples, decodeTuple(elem))
		}
		return samples, nil
	case 'n':
		if string(body) == "null" {
			return nil, nil
		}
	}

	return nil, fmt.Errorf("unexpected candles response: %s", truncate(body))
}

func decodeTuple(elem json.RawMessage) models.RawSample {
	var fields []json.Number
	if err := json.Unmarshal(elem, &fields); err != nil || len(fields) != 6 {
		return models.NewSentinel(string(elem))
	}

	epoch, err := fields[0].Int64()
	if err != nil {
		f, ferr := fields[0].Float64()
		if ferr != nil || f != math.Trunc(f) {
			return models.NewSentinel(string(elem))
		}
		epoch = int64(f)
	}

	sample, err := models.NewTuple(epoch,
		fields[1].String(), fields[2].String(), fields[3].String(), fields[4].String(), fields[5].String())
	if err != nil {
		return models.NewSentinel(string(elem))
	}
	return sample
}
