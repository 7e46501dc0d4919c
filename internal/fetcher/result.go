package fetcher

import "stockdesk/internal/quote"

// Result represents the outcome of fetching one symbol.
// Batch lookups return one Result per requested symbol, in request order.
type Result struct {
	// Symbol is the requested ticker, normalized to upper case
	Symbol string

	// Record is the fetched quote
	Record quote.Record

	// Company is the descriptive company data, possibly a placeholder
	Company quote.CompanyInfo

	// Error contains any error that occurred during the fetch.
	// If Error is not nil, Record should be considered invalid.
	Error error
}

// OK reports whether the fetch succeeded
func (r Result) OK() bool {
	return r.Error == nil
}
