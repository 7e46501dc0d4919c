package ratelimit

import (
	"context"
	"os"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// API represents the different external APIs we interact with
type API string

const (
	// APIAlphaVantage represents the AlphaVantage quote endpoints (GLOBAL_QUOTE, OVERVIEW)
	APIAlphaVantage API = "alphavantage"

	// alphaVantageFreeTierPerMinute is the free tier allowance: 5 requests per minute
	alphaVantageFreeTierPerMinute = 5
)

// Limiter manages rate limits for different APIs
type Limiter struct {
	limiters map[API]*rate.Limiter
	mu       sync.RWMutex
}

var (
	instance *Limiter
	once     sync.Once
)

// GetLimiter returns the shared rate limiter instance
func GetLimiter() *Limiter {
	once.Do(func() {
		instance = New()
		instance.initLimiters()
	})
	return instance
}

// New creates an empty limiter; APIs without a configured limit are not throttled
func New() *Limiter {
	return &Limiter{
		limiters: make(map[API]*rate.Limiter),
	}
}

// initLimiters initializes rate limiters for each API with conservative defaults
func (l *Limiter) initLimiters() {
	// In test mode, use unlimited rate limits to avoid slowing down tests
	if os.Getenv("GO_TESTING") == "1" || isTestMode() {
		l.limiters[APIAlphaVantage] = rate.NewLimiter(rate.Inf, 1)
		return
	}

	l.SetPerMinute(APIAlphaVantage, alphaVantageFreeTierPerMinute)
}

// isTestMode checks if we're running in test mode
func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}
	return false
}

// SetPerMinute configures api to allow perMinute requests per minute with a
// burst of one. A non-positive value removes the limit.
func (l *Limiter) SetPerMinute(api API, perMinute float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perMinute <= 0 {
		l.limiters[api] = rate.NewLimiter(rate.Inf, 1)
		return
	}
	l.limiters[api] = rate.NewLimiter(rate.Limit(perMinute/60.0), 1)
}

// Wait blocks until the rate limiter permits an event for the given API
// It returns an error if the context is canceled before the event can proceed
func (l *Limiter) Wait(ctx context.Context, api API) error {
	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		// If no limiter exists for this API, allow the request without limiting
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event for the given API may happen now
func (l *Limiter) Allow(api API) bool {
	l.mu.RLock()
	limiter, exists := l.limiters[api]
	l.mu.RUnlock()

	if !exists {
		return true
	}

	return limiter.Allow()
}
