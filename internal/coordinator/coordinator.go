package coordinator

import (
	"context"
	"fmt"
	"io"

	"github.com/sourcegraph/conc/iter"

	"stockdesk/internal/fetcher"
	"stockdesk/internal/quote"
)

// DefaultMaxConcurrency bounds in-flight fetches when none is configured
const DefaultMaxConcurrency = 4

// Coordinator fetches quotes for many symbols concurrently and aggregates results
type Coordinator struct {
	source         fetcher.QuoteSource
	maxConcurrency int
}

// New creates a new Coordinator over source, running at most maxConcurrency
// fetches at once
func New(source fetcher.QuoteSource, maxConcurrency int) *Coordinator {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}
	return &Coordinator{
		source:         source,
		maxConcurrency: maxConcurrency,
	}
}

// Run fetches a quote for every symbol. Results are returned in the order of
// symbols, one per symbol; per-symbol failures are reported in Result.Error,
// not as the returned error.
func (c *Coordinator) Run(ctx context.Context, symbols []string) ([]fetcher.Result, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols requested")
	}

	mapper := iter.Mapper[string, fetcher.Result]{MaxGoroutines: c.maxConcurrency}
	results := mapper.Map(symbols, func(symbol *string) fetcher.Result {
		sym := quote.NormalizeSymbol(*symbol)
		rec, err := c.source.FetchQuote(ctx, sym)
		return fetcher.Result{
			Symbol: sym,
			Record: rec,
			Error:  err,
		}
	})

	return results, nil
}

// Print writes one line per result:
//   - Success: "SYMBOL: $PRICE (+CHANGE%)"
//   - Error: "SYMBOL: ERROR - error message"
func Print(w io.Writer, results []fetcher.Result) {
	for _, r := range results {
		if r.Error != nil {
			fmt.Fprintf(w, "%s: ERROR - %v\n", r.Symbol, r.Error)
			continue
		}
		fmt.Fprintf(w, "%s: %s (%s)\n", r.Symbol,
			quote.FormatCurrency(r.Record.Price), quote.FormatPercent(r.Record.ChangePercent))
	}
}
