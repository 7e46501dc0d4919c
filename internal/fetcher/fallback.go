package fetcher

import (
	"context"
	"log/slog"

	"stockdesk/internal/quote"
)

// Fallback serves quotes from a primary source and falls back to a secondary
// one when the primary fails, e.g. live API with demo data behind it.
type Fallback struct {
	primary   QuoteSource
	secondary QuoteSource
}

// WithFallback wraps primary so that failures are served by secondary.
// A nil secondary returns primary unchanged.
func WithFallback(primary, secondary QuoteSource) QuoteSource {
	if secondary == nil {
		return primary
	}
	return &Fallback{primary: primary, secondary: secondary}
}

// FetchQuote implements QuoteSource
func (f *Fallback) FetchQuote(ctx context.Context, symbol string) (quote.Record, error) {
	rec, err := f.primary.FetchQuote(ctx, symbol)
	if err == nil {
		return rec, nil
	}
	if ctx.Err() != nil {
		return quote.Record{}, err
	}

	slog.Warn("quote source failed, using fallback",
		"symbol", symbol,
		"source", f.primary.Name(),
		"fallback", f.secondary.Name(),
		"error", err)
	return f.secondary.FetchQuote(ctx, symbol)
}

// FetchCompanyInfo implements QuoteSource
func (f *Fallback) FetchCompanyInfo(ctx context.Context, symbol string) (quote.CompanyInfo, error) {
	info, err := f.primary.FetchCompanyInfo(ctx, symbol)
	if err == nil && info.Name != "" && info.Name != symbol {
		return info, nil
	}
	if ctx.Err() != nil {
		return quote.PlaceholderCompany(symbol), ctx.Err()
	}

	fallback, ferr := f.secondary.FetchCompanyInfo(ctx, symbol)
	if ferr != nil {
		if err != nil {
			return quote.PlaceholderCompany(symbol), err
		}
		return info, nil
	}
	return fallback, nil
}

// Name implements QuoteSource
func (f *Fallback) Name() string {
	return f.primary.Name() + "+" + f.secondary.Name()
}
