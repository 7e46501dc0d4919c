package testutil

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"stockdesk/internal/fetcher"
	"stockdesk/internal/quote"
)

// MockSource is a mock implementation of the fetcher.QuoteSource interface for testing
type MockSource struct {
	FetchQuoteFunc       func(ctx context.Context, symbol string) (quote.Record, error)
	FetchCompanyInfoFunc func(ctx context.Context, symbol string) (quote.CompanyInfo, error)
	NameValue            string

	mu    sync.Mutex
	calls map[string]int
}

// FetchQuote implements the QuoteSource interface
func (m *MockSource) FetchQuote(ctx context.Context, symbol string) (quote.Record, error) {
	m.record(symbol)
	if m.FetchQuoteFunc != nil {
		return m.FetchQuoteFunc(ctx, symbol)
	}
	return quote.Record{}, fetcher.NewNotFoundError(symbol)
}

// FetchCompanyInfo implements the QuoteSource interface
func (m *MockSource) FetchCompanyInfo(ctx context.Context, symbol string) (quote.CompanyInfo, error) {
	if m.FetchCompanyInfoFunc != nil {
		return m.FetchCompanyInfoFunc(ctx, symbol)
	}
	return quote.PlaceholderCompany(symbol), nil
}

// Name implements the QuoteSource interface
func (m *MockSource) Name() string {
	if m.NameValue != "" {
		return m.NameValue
	}
	return "mock"
}

// Calls returns how many times FetchQuote was called for symbol
func (m *MockSource) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

func (m *MockSource) record(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[symbol]++
}

// NewMockSource creates a mock source serving the given records and company names.
// Unknown symbols fail with a not-found FetchError.
func NewMockSource(records []quote.Record, names map[string]string) *MockSource {
	bySymbol := make(map[string]quote.Record, len(records))
	for _, r := range records {
		bySymbol[r.Symbol] = r
	}

	return &MockSource{
		FetchQuoteFunc: func(ctx context.Context, symbol string) (quote.Record, error) {
			if err := ctx.Err(); err != nil {
				return quote.Record{}, fetcher.NewTimeoutError(err)
			}
			r, ok := bySymbol[symbol]
			if !ok {
				return quote.Record{}, fetcher.NewNotFoundError(symbol)
			}
			return r, nil
		},
		FetchCompanyInfoFunc: func(ctx context.Context, symbol string) (quote.CompanyInfo, error) {
			if name, ok := names[symbol]; ok {
				return quote.CompanyInfo{Name: name, Sector: "Technology", Industry: "N/A"}, nil
			}
			return quote.PlaceholderCompany(symbol), nil
		},
	}
}

// Record builds a quote record from decimal strings; it panics on invalid input.
func Record(symbol, price, change string) quote.Record {
	p := decimal.RequireFromString(price)
	c := decimal.RequireFromString(change)
	prev := p.Sub(c)

	pct := decimal.Zero
	if !prev.IsZero() {
		pct = c.Div(prev).Mul(decimal.NewFromInt(100)).Round(4)
	}

	return quote.Record{
		Symbol:        symbol,
		Open:          prev,
		High:          p,
		Low:           prev,
		Price:         p,
		Volume:        1000000,
		PreviousClose: prev,
		Change:        c,
		ChangePercent: pct,
	}
}
