// Package errors provides the error taxonomy of the snapshot pipeline.
// Transport failures are TransientErrors, bad inputs are ConfigurationErrors,
// and a failed run is reported as a RunError naming the wave and frame that
// failed and how much output had already been flushed. In-band rate-limit
// markers are not errors at all; they only shorten a frame.
package errors

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/johnayoung/ohlcv-snapshot/internal/models"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	ErrorTypeNetwork       ErrorType = "network"       // Network connectivity issues
	ErrorTypeTimeout       ErrorType = "timeout"       // Request timeout
	ErrorTypeRateLimit     ErrorType = "rate_limit"    // HTTP 429 or equivalent
	ErrorTypeServerError   ErrorType = "server_error"  // HTTP 5xx errors
	ErrorTypeBadRequest    ErrorType = "bad_request"   // HTTP 4xx errors (except rate limit)
	ErrorTypeConfiguration ErrorType = "configuration" // Invalid range or settings
	ErrorTypeOutput        ErrorType = "output"        // Writing the artifact failed
	ErrorTypeUnknown       ErrorType = "unknown"       // Unclassified errors
)

// ConfigurationError reports an invalid setting or range. It is always
// raised before any fetch is attempted.
type ConfigurationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// NewConfigurationError creates a ConfigurationError for a field.
func NewConfigurationError(field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransientError is a transport or API level failure of a data source call:
// network faults, throttling status codes, server errors, unreadable bodies.
type TransientError struct {
	Op         string `json:"op"`
	StatusCode int    `json:"status_code,omitempty"`
	Err        error  `json:"error"`
}

// Error implements the error interface
func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a transport failure of op.
func NewTransientError(op string, statusCode int, err error) *TransientError {
	return &TransientError{Op: op, StatusCode: statusCode, Err: err}
}

// FrameError attributes a fetch failure to one frame of one wave.
type FrameError struct {
	Wave  int
	Frame int
	Range models.TimeRange
	Err   error
}

// Error implements the error interface
func (e *FrameError) Error() string {
	return fmt.Sprintf("wave %d frame %d %s: %v", e.Wave, e.Frame, e.Range, e.Err)
}

// Unwrap returns the underlying error
func (e *FrameError) Unwrap() error {
	return e.Err
}

// RunError is the user-visible report of an aborted run. Wave and Frame
// are -1 when the failure is not attributable to a fetch.
type RunError struct {
	Wave        int
	Frame       int
	WavesMerged int
	RowsFlushed int64
	Err         error
}

// Error implements the error interface
func (e *RunError) Error() string {
	if e.Wave < 0 {
		return fmt.Sprintf("snapshot aborted after %d waves (%d rows flushed): %v",
			e.WavesMerged, e.RowsFlushed, e.Err)
	}
	return fmt.Sprintf("snapshot aborted at wave %d frame %d after %d waves (%d rows flushed): %v",
		e.Wave, e.Frame, e.WavesMerged, e.RowsFlushed, e.Err)
}

// Unwrap returns the underlying error
func (e *RunError) Unwrap() error {
	return e.Err
}

// OutputError reports a failure writing the artifact.
type OutputError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *OutputError) Error() string {
	return fmt.Sprintf("output %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *OutputError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err wraps a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsConfiguration reports whether err wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Classify determines the error type from its structure first and then
// from common message patterns.
func Classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ErrorTypeConfiguration
	}

	var oe *OutputError
	if errors.As(err, &oe) {
		return ErrorTypeOutput
	}

	var te *TransientError
	if errors.As(err, &te) && te.StatusCode != 0 {
		switch {
		case te.StatusCode == 429:
			return ErrorTypeRateLimit
		case te.StatusCode >= 500:
			return ErrorTypeServerError
		case te.StatusCode >= 400:
			return ErrorTypeBadRequest
		}
	}

	if isTimeoutError(err) {
		return ErrorTypeTimeout
	}

	if isNetworkError(err) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests") {
		return ErrorTypeRateLimit
	}

	if strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "service unavailable") {
		return ErrorTypeServerError
	}

	return ErrorTypeUnknown
}

// Retryable reports whether a transport failure of this type is worth
// another attempt at the transport layer.
func (t ErrorType) Retryable() bool {
	switch t {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	default:
		return false
	}
}

// isNetworkError checks if the error is network-related
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"no route to host",
		"host unreachable",
		"network unreachable",
		"no such host",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isTimeoutError checks if the error is timeout-related
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}
