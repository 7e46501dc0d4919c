package fetcher

import (
	"log/slog"
	"time"

	"resty.dev/v3"
)

const (
	// Default retry configuration
	defaultRetryCount       = 3
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second
	defaultRequestTimeout   = 15 * time.Second
)

// ClientOptions tunes the HTTP client built by NewHTTPClient.
// Zero values fall back to the defaults above; a negative RetryCount disables retries.
type ClientOptions struct {
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	Timeout          time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	switch {
	case o.RetryCount == 0:
		o.RetryCount = defaultRetryCount
	case o.RetryCount < 0:
		o.RetryCount = 0
	}
	if o.RetryWaitTime <= 0 {
		o.RetryWaitTime = defaultRetryWaitTime
	}
	if o.RetryMaxWaitTime <= 0 {
		o.RetryMaxWaitTime = defaultRetryMaxWaitTime
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultRequestTimeout
	}
	return o
}

// NewHTTPClient creates a new HTTP client with retry logic and exponential backoff
func NewHTTPClient(baseURL string, opts ClientOptions) *resty.Client {
	opts = opts.withDefaults()

	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetRetryMaxWaitTime(opts.RetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)

	return client
}

// retryCondition retries network failures, throttling and server errors
func retryCondition(r *resty.Response, err error) bool {
	if r == nil {
		return err != nil
	}
	// a 2xx body that failed to decode will not decode next time either
	if err != nil {
		return !r.IsSuccess()
	}

	code := r.StatusCode()
	return code >= 500 || code == 429 || code == 408
}

// retryHook logs each retry with the symbol being fetched
func retryHook(r *resty.Response, err error) {
	if r == nil || r.Request == nil {
		slog.Debug("retrying quote request", "error", err)
		return
	}

	attrs := []any{
		"symbol", r.Request.QueryParams.Get("symbol"),
		"function", r.Request.QueryParams.Get("function"),
		"attempt", r.Request.Attempt,
	}
	if err != nil {
		slog.Debug("retrying quote request after error", append(attrs, "error", err.Error())...)
		return
	}
	slog.Debug("retrying quote request after status", append(attrs, "status_code", r.StatusCode())...)
}
