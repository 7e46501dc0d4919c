// Package desk is the application service behind the HTTP API and the CLI.
// It turns user actions into quote fetches and favorites/comparison store calls.
package desk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc"

	"stockdesk/internal/comparison"
	"stockdesk/internal/coordinator"
	"stockdesk/internal/favorites"
	"stockdesk/internal/fetcher"
	"stockdesk/internal/quote"
)

// ErrEmptySymbol is returned when a required symbol is blank
var ErrEmptySymbol = errors.New("symbol is required")

// DefaultPopularSymbols is the popular stocks panel shown when none are configured
var DefaultPopularSymbols = []string{"AAPL", "MSFT", "GOOGL", "AMZN", "TSLA", "META"}

// MarketIndices maps the index ETFs of the market overview to display names, in display order
var MarketIndices = []struct {
	Symbol string
	Name   string
}{
	{"SPY", "S&P 500"},
	{"QQQ", "NASDAQ"},
	{"DIA", "Dow Jones"},
	{"VTI", "Total Market"},
}

// Options configures a Service
type Options struct {
	PopularSymbols []string
	MaxConcurrency int
}

// Service coordinates quote fetching with the favorites and history stores
type Service struct {
	source    fetcher.QuoteSource
	favorites *favorites.Store
	history   *comparison.History
	coord     *coordinator.Coordinator
	popular   []string
}

// New creates a Service
func New(source fetcher.QuoteSource, favs *favorites.Store, history *comparison.History, opts Options) *Service {
	popular := opts.PopularSymbols
	if len(popular) == 0 {
		popular = DefaultPopularSymbols
	}
	return &Service{
		source:    source,
		favorites: favs,
		history:   history,
		coord:     coordinator.New(source, opts.MaxConcurrency),
		popular:   popular,
	}
}

// Lookup is a quote with its company data
type Lookup struct {
	Quote      quote.Record      `json:"quote"`
	Company    quote.CompanyInfo `json:"company"`
	IsFavorite bool              `json:"isFavorite"`
}

// Lookup fetches the quote and company overview for symbol
func (s *Service) Lookup(ctx context.Context, symbol string) (Lookup, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return Lookup{}, ErrEmptySymbol
	}

	l, err := s.fetchWithCompany(ctx, symbol)
	if err != nil {
		return Lookup{}, err
	}
	l.IsFavorite = s.favorites.Contains(symbol)
	return l, nil
}

// Popular fetches the popular stocks panel
func (s *Service) Popular(ctx context.Context) ([]fetcher.Result, error) {
	return s.coord.Run(ctx, s.popular)
}

// IndexQuote is one row of the market overview
type IndexQuote struct {
	Name   string
	Result fetcher.Result
}

// Market fetches the market overview index ETFs
func (s *Service) Market(ctx context.Context) ([]IndexQuote, error) {
	symbols := make([]string, len(MarketIndices))
	for i, idx := range MarketIndices {
		symbols[i] = idx.Symbol
	}

	results, err := s.coord.Run(ctx, symbols)
	if err != nil {
		return nil, err
	}

	out := make([]IndexQuote, len(results))
	for i, r := range results {
		out[i] = IndexQuote{Name: MarketIndices[i].Name, Result: r}
	}
	return out, nil
}

// FavoritesView is the favorites list with its summary counters
type FavoritesView struct {
	Entries  []favorites.Entry `json:"entries"`
	Summary  favorites.Summary `json:"summary"`
	Degraded bool              `json:"degraded"`
}

// Favorites returns the current favorites
func (s *Service) Favorites() FavoritesView {
	return FavoritesView{
		Entries:  s.favorites.List(),
		Summary:  s.favorites.Summary(),
		Degraded: s.favorites.Degraded(),
	}
}

// AddFavorite fetches symbol and adds it to the favorites.
// Duplicates are rejected before any fetch.
func (s *Service) AddFavorite(ctx context.Context, symbol string) (favorites.Entry, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return favorites.Entry{}, ErrEmptySymbol
	}
	if s.favorites.Contains(symbol) {
		return favorites.Entry{}, favorites.ErrDuplicateFavorite
	}

	l, err := s.fetchWithCompany(ctx, symbol)
	if err != nil {
		return favorites.Entry{}, err
	}
	return s.favorites.Add(ctx, l.Quote, l.Company.Name)
}

// ToggleFavorite removes symbol if it is a favorite, otherwise fetches and adds it.
// It reports whether symbol is a favorite afterwards.
func (s *Service) ToggleFavorite(ctx context.Context, symbol string) (bool, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return false, ErrEmptySymbol
	}
	if s.favorites.Contains(symbol) {
		return false, s.favorites.Remove(ctx, symbol)
	}

	l, err := s.fetchWithCompany(ctx, symbol)
	if err != nil {
		return false, err
	}
	return s.favorites.Toggle(ctx, l.Quote, l.Company.Name)
}

// RemoveFavorite removes symbol; absent symbols are ignored
func (s *Service) RemoveFavorite(ctx context.Context, symbol string) error {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return ErrEmptySymbol
	}
	return s.favorites.Remove(ctx, symbol)
}

// ClearFavorites removes every favorite
func (s *Service) ClearFavorites(ctx context.Context) error {
	return s.favorites.Clear(ctx)
}

// RefreshFavorites re-fetches every favorite and updates its snapshot.
// Failed fetches leave the old snapshot in place and are reported in the results.
func (s *Service) RefreshFavorites(ctx context.Context) ([]fetcher.Result, error) {
	symbols := s.favorites.Symbols()
	if len(symbols) == 0 {
		return nil, nil
	}

	results, err := s.coord.Run(ctx, symbols)
	if err != nil {
		return nil, err
	}

	refreshed := 0
	for _, r := range results {
		if !r.OK() {
			slog.Warn("favorite refresh failed", "symbol", r.Symbol, "error", r.Error)
			continue
		}
		if _, err := s.favorites.UpdateSnapshot(ctx, r.Record); err != nil {
			// removed while the refresh was in flight
			if errors.Is(err, favorites.ErrNotFavorite) {
				continue
			}
			return results, err
		}
		refreshed++
	}

	slog.Info("favorites refreshed", "refreshed", refreshed, "total", len(results))
	return results, nil
}

// ImportReport describes the outcome of a legacy ticker import
type ImportReport struct {
	Imported []string          `json:"imported"`
	Skipped  []string          `json:"skipped"`
	Failed   map[string]string `json:"failed"`
}

// ImportTickers adds favorites from a bare list of ticker symbols, the format
// older clients stored. Existing favorites and repeated tickers are skipped.
func (s *Service) ImportTickers(ctx context.Context, tickers []string) (ImportReport, error) {
	report := ImportReport{Imported: []string{}, Skipped: []string{}, Failed: map[string]string{}}

	var pending []string
	seen := make(map[string]bool)
	for _, t := range tickers {
		sym := quote.NormalizeSymbol(t)
		if sym == "" {
			continue
		}
		if seen[sym] || s.favorites.Contains(sym) {
			report.Skipped = append(report.Skipped, sym)
			continue
		}
		seen[sym] = true
		pending = append(pending, sym)
	}
	if len(pending) == 0 {
		return report, nil
	}

	results, err := s.coord.Run(ctx, pending)
	if err != nil {
		return report, err
	}

	for _, r := range results {
		if !r.OK() {
			report.Failed[r.Symbol] = r.Error.Error()
			continue
		}
		_, err := s.favorites.Add(ctx, r.Record, "")
		switch {
		case errors.Is(err, favorites.ErrDuplicateFavorite):
			report.Skipped = append(report.Skipped, r.Symbol)
		case err != nil:
			return report, err
		default:
			report.Imported = append(report.Imported, r.Symbol)
		}
	}
	return report, nil
}

// Comparison is a comparison result with the data it was computed from
type Comparison struct {
	Result   comparison.Result   `json:"result"`
	Analysis comparison.Analysis `json:"analysis"`
	Stock1   Lookup              `json:"stock1"`
	Stock2   Lookup              `json:"stock2"`
}

// Compare fetches both symbols, decides the comparison and records it in the history
func (s *Service) Compare(ctx context.Context, symbol1, symbol2 string) (Comparison, error) {
	symbol1 = quote.NormalizeSymbol(symbol1)
	symbol2 = quote.NormalizeSymbol(symbol2)
	if symbol1 == "" || symbol2 == "" {
		return Comparison{}, ErrEmptySymbol
	}
	if symbol1 == symbol2 {
		return Comparison{}, comparison.ErrIdenticalSymbols
	}

	// Quotes go first so the overviews never hold up a quote at the rate limiter
	var (
		wg         conc.WaitGroup
		l1, l2     Lookup
		err1, err2 error
	)
	wg.Go(func() { l1.Quote, err1 = s.source.FetchQuote(ctx, symbol1) })
	wg.Go(func() { l2.Quote, err2 = s.source.FetchQuote(ctx, symbol2) })
	wg.Wait()

	if err1 != nil {
		return Comparison{}, err1
	}
	if err2 != nil {
		return Comparison{}, err2
	}

	wg.Go(func() { l1.Company = s.company(ctx, symbol1) })
	wg.Go(func() { l2.Company = s.company(ctx, symbol2) })
	wg.Wait()

	a := comparison.Side{Record: l1.Quote, Name: l1.Company.Name}
	b := comparison.Side{Record: l2.Quote, Name: l2.Company.Name}

	result, err := comparison.Compare(a, b)
	if err != nil {
		return Comparison{}, err
	}
	analysis, err := comparison.Analyze(a, b)
	if err != nil {
		return Comparison{}, err
	}

	if err := s.history.Append(ctx, result); err != nil {
		return Comparison{}, fmt.Errorf("record comparison: %w", err)
	}

	l1.IsFavorite = s.favorites.Contains(symbol1)
	l2.IsFavorite = s.favorites.Contains(symbol2)
	return Comparison{Result: result, Analysis: analysis, Stock1: l1, Stock2: l2}, nil
}

// History returns past comparisons, newest first
func (s *Service) History() []comparison.Result {
	return s.history.List()
}

// fetchWithCompany fetches the quote, then the company overview. The quote is
// fetched first so it gets the earlier rate limiter slot; a quote failure is returned.
func (s *Service) fetchWithCompany(ctx context.Context, symbol string) (Lookup, error) {
	rec, err := s.source.FetchQuote(ctx, symbol)
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{Quote: rec, Company: s.company(ctx, symbol)}, nil
}

// company fetches the overview for symbol; failures degrade to the placeholder
func (s *Service) company(ctx context.Context, symbol string) quote.CompanyInfo {
	info, err := s.source.FetchCompanyInfo(ctx, symbol)
	if err != nil {
		slog.Debug("company info unavailable", "symbol", symbol, "error", err)
		return quote.PlaceholderCompany(symbol)
	}
	return info
}
