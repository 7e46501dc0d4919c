// Package demo serves fixed quote data when the live quote API cannot be reached.
package demo

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"time"

	"gopkg.in/yaml.v3"

	"stockdesk/internal/fetcher"
	"stockdesk/internal/quote"
)

//go:embed fixtures.yaml
var embeddedFixtures []byte

type stock struct {
	Quote   map[string]string `yaml:"quote"`
	Company struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
		Sector      string `yaml:"sector"`
		Industry    string `yaml:"industry"`
	} `yaml:"company"`
}

type fixtures struct {
	Default string           `yaml:"default"`
	Stocks  map[string]stock `yaml:"stocks"`
}

// Source implements fetcher.QuoteSource over the embedded fixtures.
// Unknown symbols are served the default stock's figures under the requested symbol.
type Source struct {
	data fixtures
	now  func() time.Time
}

var _ fetcher.QuoteSource = (*Source)(nil)

// New parses the embedded fixtures
func New() (*Source, error) {
	return Parse(embeddedFixtures)
}

// Parse builds a Source from YAML fixture data
func Parse(data []byte) (*Source, error) {
	var f fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse demo fixtures: %w", err)
	}
	if _, ok := f.Stocks[f.Default]; !ok {
		return nil, fmt.Errorf("demo fixtures: default stock %q not defined", f.Default)
	}

	// validate once so FetchQuote can only fail on caller input
	for sym, s := range f.Stocks {
		if _, err := quote.Normalize(quote.Payload{GlobalQuote: s.Quote}); err != nil {
			return nil, fmt.Errorf("demo fixtures: stock %s: %w", sym, err)
		}
	}

	return &Source{data: f, now: time.Now}, nil
}

// Symbols returns the symbols that have their own fixture
func (s *Source) Symbols() []string {
	out := make([]string, 0, len(s.data.Stocks))
	for sym := range s.data.Stocks {
		out = append(out, sym)
	}
	return out
}

// FetchQuote returns the fixture quote for symbol, stamped with today's date
func (s *Source) FetchQuote(ctx context.Context, symbol string) (quote.Record, error) {
	symbol = quote.NormalizeSymbol(symbol)
	if symbol == "" {
		return quote.Record{}, fetcher.NewClientError(0, "symbol is required")
	}

	st, ok := s.data.Stocks[symbol]
	if !ok {
		st = s.data.Stocks[s.data.Default]
	}

	fields := maps.Clone(st.Quote)
	fields[quote.FieldSymbol] = symbol
	fields[quote.FieldLatestTradingDay] = s.now().Format("2006-01-02")

	rec, err := quote.Normalize(quote.Payload{GlobalQuote: fields})
	if err != nil {
		return quote.Record{}, fetcher.FromNormalizeError(symbol, err)
	}
	return rec, nil
}

// FetchCompanyInfo returns the fixture company, or a generic placeholder
func (s *Source) FetchCompanyInfo(ctx context.Context, symbol string) (quote.CompanyInfo, error) {
	symbol = quote.NormalizeSymbol(symbol)

	st, ok := s.data.Stocks[symbol]
	if !ok {
		info := quote.PlaceholderCompany(symbol)
		info.Description = "Company"
		return info, nil
	}

	return quote.CompanyInfo{
		Name:        st.Company.Name,
		Description: st.Company.Description,
		Sector:      st.Company.Sector,
		Industry:    st.Company.Industry,
	}, nil
}

// Name implements fetcher.QuoteSource
func (s *Source) Name() string {
	return "demo"
}
