package fetcher

import (
	"errors"
	"fmt"

	"stockdesk/internal/quote"
)

// ErrorType represents the category of error that occurred during a fetch operation
type ErrorType string

const (
	// ErrorTypeNetwork indicates a network-level error (connection refused, DNS, etc.)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeRateLimit indicates the provider throttled the request (HTTP 429 or an in-band note)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeNotFound indicates the provider does not know the requested symbol
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeMalformed indicates the response was received but the quote section was unusable
	ErrorTypeMalformed ErrorType = "malformed_payload"
	// ErrorTypeServer indicates a server error (HTTP 5xx)
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeClient indicates a client error (HTTP 4xx except 429)
	ErrorTypeClient ErrorType = "client"
	// ErrorTypeTimeout indicates the request timed out
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeUnknown indicates an error of unknown type
	ErrorTypeUnknown ErrorType = "unknown"
)

// Sentinels for errors.Is; they match any FetchError of the same Type.
var (
	ErrSymbolNotFound   = &FetchError{Type: ErrorTypeNotFound}
	ErrRateLimited      = &FetchError{Type: ErrorTypeRateLimit}
	ErrMalformedPayload = &FetchError{Type: ErrorTypeMalformed}
	ErrNetwork          = &FetchError{Type: ErrorTypeNetwork}
)

// FetchError represents a structured error from a fetch operation
type FetchError struct {
	Type       ErrorType
	Retryable  bool
	StatusCode int
	Symbol     string
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *FetchError) Error() string {
	msg := e.Message
	if e.Symbol != "" {
		msg = fmt.Sprintf("%s for %s", msg, e.Symbol)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *FetchError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a FetchError of the same type
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	return ok && t.Type == e.Type
}

// NewNetworkError creates a network error
func NewNetworkError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeNetwork,
		Retryable: true,
		Message:   "network request failed",
		Cause:     cause,
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeRateLimit,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "rate limit exceeded",
	}
}

// NewNotFoundError creates a symbol-not-found error
func NewNotFoundError(symbol string) *FetchError {
	return &FetchError{
		Type:      ErrorTypeNotFound,
		Retryable: false,
		Symbol:    symbol,
		Message:   "symbol not found",
	}
}

// NewMalformedError creates a malformed payload error
func NewMalformedError(message string) *FetchError {
	return &FetchError{
		Type:      ErrorTypeMalformed,
		Retryable: false,
		Message:   message,
	}
}

// NewServerError creates a server error
func NewServerError(statusCode int) *FetchError {
	return &FetchError{
		Type:       ErrorTypeServer,
		Retryable:  true,
		StatusCode: statusCode,
		Message:    "server returned an error",
	}
}

// NewClientError creates a client error
func NewClientError(statusCode int, message string) *FetchError {
	return &FetchError{
		Type:       ErrorTypeClient,
		Retryable:  false,
		StatusCode: statusCode,
		Message:    message,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(cause error) *FetchError {
	return &FetchError{
		Type:      ErrorTypeTimeout,
		Retryable: true,
		Message:   "request timed out",
		Cause:     cause,
	}
}

// ClassifyHTTPError classifies an HTTP status code into an appropriate FetchError
func ClassifyHTTPError(statusCode int) *FetchError {
	switch {
	case statusCode == 429:
		return NewRateLimitError(statusCode)
	case statusCode == 404:
		return &FetchError{
			Type:       ErrorTypeNotFound,
			StatusCode: statusCode,
			Message:    "symbol not found",
		}
	case statusCode >= 500:
		return NewServerError(statusCode)
	case statusCode >= 400:
		return NewClientError(statusCode, fmt.Sprintf("client error: HTTP %d", statusCode))
	default:
		return &FetchError{
			Type:       ErrorTypeUnknown,
			Retryable:  false,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		}
	}
}

// FromNormalizeError maps a quote normalizer failure onto a FetchError.
// The normalizer error stays reachable through Unwrap.
func FromNormalizeError(symbol string, err error) *FetchError {
	var fe *FetchError
	switch {
	case errors.Is(err, quote.ErrSymbolNotFound):
		fe = NewNotFoundError(symbol)
	case errors.Is(err, quote.ErrRateLimited):
		fe = NewRateLimitError(0)
		fe.Symbol = symbol
	default:
		fe = NewMalformedError("unusable quote payload")
		fe.Symbol = symbol
	}
	fe.Cause = err
	return fe
}
