package fetcher

import (
	"context"

	"stockdesk/internal/quote"
)

// QuoteSource is the interface every quote provider implements.
// Implementations perform network I/O and must honour ctx cancellation.
type QuoteSource interface {
	// FetchQuote retrieves and normalizes the latest quote for symbol.
	// Failures are returned as *FetchError.
	FetchQuote(ctx context.Context, symbol string) (quote.Record, error)

	// FetchCompanyInfo retrieves descriptive company data. It is best effort:
	// sources return quote.PlaceholderCompany rather than failing when the
	// overview is unavailable.
	FetchCompanyInfo(ctx context.Context, symbol string) (quote.CompanyInfo, error)

	// Name identifies the source in logs, e.g. "alphavantage" or "demo"
	Name() string
}
