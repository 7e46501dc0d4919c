package desk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"stockdesk/internal/comparison"
	"stockdesk/internal/favorites"
	"stockdesk/internal/fetcher"
	"stockdesk/internal/quote"
	"stockdesk/internal/storage"
	"stockdesk/internal/testutil"
)

var testNames = map[string]string{
	"AAPL":  "Apple Inc.",
	"MSFT":  "Microsoft Corporation",
	"GOOGL": "Alphabet Inc.",
}

func testRecords() []quote.Record {
	return []quote.Record{
		testutil.Record("AAPL", "152.30", "1.30"),
		testutil.Record("MSFT", "304.20", "2.70"),
		testutil.Record("GOOGL", "2810.50", "5.50"),
		testutil.Record("TSLA", "200.00", "-4.10"),
		testutil.Record("SPY", "500.00", "1.00"),
		testutil.Record("QQQ", "430.00", "2.00"),
		testutil.Record("DIA", "390.00", "-0.50"),
	}
}

func newTestService(t *testing.T) (*Service, *testutil.MockSource) {
	t.Helper()
	ctx := context.Background()
	b := storage.NewMemoryBackend()

	src := testutil.NewMockSource(testRecords(), testNames)
	favs := favorites.Open(ctx, storage.NewCollection[favorites.Entry](b, storage.KeyFavorites))
	hist := comparison.OpenHistory(ctx, storage.NewCollection[comparison.Result](b, storage.KeyComparisonHistory))

	return New(src, favs, hist, Options{MaxConcurrency: 2}), src
}

func TestService_Lookup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	l, err := svc.Lookup(ctx, " aapl ")
	if err != nil {
		t.Fatalf("Lookup() returned error: %v", err)
	}
	if l.Quote.Symbol != "AAPL" || l.Company.Name != "Apple Inc." || l.IsFavorite {
		t.Errorf("Lookup() = %+v", l)
	}

	svc.AddFavorite(ctx, "AAPL")
	l, _ = svc.Lookup(ctx, "AAPL")
	if !l.IsFavorite {
		t.Error("IsFavorite = false after AddFavorite")
	}
}

func TestService_Lookup_Errors(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		symbol  string
		wantErr error
	}{
		{symbol: "", wantErr: ErrEmptySymbol},
		{symbol: "   ", wantErr: ErrEmptySymbol},
		{symbol: "NOPE", wantErr: fetcher.ErrSymbolNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			if _, err := svc.Lookup(context.Background(), tt.symbol); !errors.Is(err, tt.wantErr) {
				t.Errorf("Lookup() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_Lookup_CompanyFailureDegrades(t *testing.T) {
	svc, src := newTestService(t)
	src.FetchCompanyInfoFunc = func(ctx context.Context, symbol string) (quote.CompanyInfo, error) {
		return quote.CompanyInfo{}, errors.New("overview down")
	}

	l, err := svc.Lookup(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Lookup() returned error: %v", err)
	}
	if l.Company != quote.PlaceholderCompany("AAPL") {
		t.Errorf("Company = %+v, want placeholder", l.Company)
	}
}

func TestService_Popular(t *testing.T) {
	svc, _ := newTestService(t)

	results, err := svc.Popular(context.Background())
	if err != nil {
		t.Fatalf("Popular() returned error: %v", err)
	}
	if len(results) != len(DefaultPopularSymbols) {
		t.Fatalf("Popular() returned %d results, want %d", len(results), len(DefaultPopularSymbols))
	}
	for i, sym := range DefaultPopularSymbols {
		if results[i].Symbol != sym {
			t.Errorf("results[%d].Symbol = %q, want %q", i, results[i].Symbol, sym)
		}
	}
	// AMZN and META have no fixture
	if results[3].OK() || results[5].OK() {
		t.Error("expected AMZN and META to fail")
	}
}

func TestService_Market(t *testing.T) {
	svc, _ := newTestService(t)

	rows, err := svc.Market(context.Background())
	if err != nil {
		t.Fatalf("Market() returned error: %v", err)
	}

	want := []struct{ symbol, name string }{
		{"SPY", "S&P 500"}, {"QQQ", "NASDAQ"}, {"DIA", "Dow Jones"}, {"VTI", "Total Market"},
	}
	if len(rows) != len(want) {
		t.Fatalf("Market() returned %d rows, want %d", len(rows), len(want))
	}
	for i, w := range want {
		if rows[i].Result.Symbol != w.symbol || rows[i].Name != w.name {
			t.Errorf("rows[%d] = %s %q, want %s %q", i, rows[i].Result.Symbol, rows[i].Name, w.symbol, w.name)
		}
	}
	if rows[3].Result.OK() {
		t.Error("expected VTI to fail without a fixture")
	}
}

func TestService_AddFavorite(t *testing.T) {
	svc, src := newTestService(t)
	ctx := context.Background()

	e, err := svc.AddFavorite(ctx, "msft")
	if err != nil {
		t.Fatalf("AddFavorite() returned error: %v", err)
	}
	if e.Symbol != "MSFT" || e.Name != "Microsoft Corporation" {
		t.Errorf("AddFavorite() = %+v", e)
	}

	// duplicate is rejected without another fetch
	calls := src.Calls("MSFT")
	if _, err := svc.AddFavorite(ctx, "MSFT"); !errors.Is(err, favorites.ErrDuplicateFavorite) {
		t.Errorf("second AddFavorite() error = %v, want ErrDuplicateFavorite", err)
	}
	if src.Calls("MSFT") != calls {
		t.Error("duplicate AddFavorite() fetched the quote again")
	}

	if _, err := svc.AddFavorite(ctx, "NOPE"); !errors.Is(err, fetcher.ErrSymbolNotFound) {
		t.Errorf("AddFavorite(NOPE) error = %v, want ErrSymbolNotFound", err)
	}
	if _, err := svc.AddFavorite(ctx, ""); !errors.Is(err, ErrEmptySymbol) {
		t.Errorf("AddFavorite(\"\") error = %v, want ErrEmptySymbol", err)
	}
}

func TestService_ToggleFavorite(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	on, err := svc.ToggleFavorite(ctx, "AAPL")
	if err != nil || !on {
		t.Fatalf("first ToggleFavorite() = %v, %v, want true", on, err)
	}
	on, err = svc.ToggleFavorite(ctx, "aapl")
	if err != nil || on {
		t.Fatalf("second ToggleFavorite() = %v, %v, want false", on, err)
	}
	if len(svc.Favorites().Entries) != 0 {
		t.Error("favorites not empty after toggling twice")
	}
}

func TestService_RemoveAndClear(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.AddFavorite(ctx, "AAPL")
	svc.AddFavorite(ctx, "MSFT")

	if err := svc.RemoveFavorite(ctx, "AAPL"); err != nil {
		t.Fatalf("RemoveFavorite() returned error: %v", err)
	}
	if err := svc.RemoveFavorite(ctx, "NFLX"); err != nil {
		t.Errorf("RemoveFavorite() of absent symbol returned error: %v", err)
	}
	if got := svc.Favorites().Summary.Total; got != 1 {
		t.Errorf("Total = %d, want 1", got)
	}

	if err := svc.ClearFavorites(ctx); err != nil {
		t.Fatalf("ClearFavorites() returned error: %v", err)
	}
	if got := svc.Favorites().Summary.Total; got != 0 {
		t.Errorf("Total = %d, want 0", got)
	}
}

func TestService_Favorites_Summary(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, sym := range []string{"AAPL", "MSFT", "TSLA"} {
		if _, err := svc.AddFavorite(ctx, sym); err != nil {
			t.Fatalf("AddFavorite(%s) returned error: %v", sym, err)
		}
	}

	view := svc.Favorites()
	want := favorites.Summary{Total: 3, Positive: 2, Negative: 1}
	if view.Summary != want {
		t.Errorf("Summary = %+v, want %+v", view.Summary, want)
	}
	if view.Degraded {
		t.Error("Degraded = true with memory backend")
	}
}

func TestService_RefreshFavorites(t *testing.T) {
	svc, src := newTestService(t)
	ctx := context.Background()

	if results, err := svc.RefreshFavorites(ctx); err != nil || results != nil {
		t.Errorf("RefreshFavorites() on empty favorites = %v, %v", results, err)
	}

	svc.AddFavorite(ctx, "AAPL")
	svc.AddFavorite(ctx, "MSFT")

	prices := map[string]quote.Record{
		"AAPL": testutil.Record("AAPL", "160.00", "7.70"),
	}
	src.FetchQuoteFunc = func(ctx context.Context, symbol string) (quote.Record, error) {
		if r, ok := prices[symbol]; ok {
			return r, nil
		}
		return quote.Record{}, fetcher.NewNetworkError(errors.New("connection reset"))
	}

	results, err := svc.RefreshFavorites(ctx)
	if err != nil {
		t.Fatalf("RefreshFavorites() returned error: %v", err)
	}
	if len(results) != 2 || !results[0].OK() || results[1].OK() {
		t.Fatalf("RefreshFavorites() results = %+v", results)
	}

	entries := svc.Favorites().Entries
	if entries[0].Price.StringFixed(2) != "160.00" || entries[0].RefreshedAt.IsZero() {
		t.Errorf("AAPL not refreshed: %+v", entries[0])
	}
	if entries[1].Price.StringFixed(2) != "304.20" || !entries[1].RefreshedAt.IsZero() {
		t.Errorf("MSFT snapshot changed after failed refresh: %+v", entries[1])
	}
}

func TestService_ImportTickers(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.AddFavorite(ctx, "AAPL")

	report, err := svc.ImportTickers(ctx, []string{"aapl", "MSFT", "msft", "", "NOPE", "GOOGL"})
	if err != nil {
		t.Fatalf("ImportTickers() returned error: %v", err)
	}

	if len(report.Imported) != 2 || report.Imported[0] != "MSFT" || report.Imported[1] != "GOOGL" {
		t.Errorf("Imported = %v, want [MSFT GOOGL]", report.Imported)
	}
	if len(report.Skipped) != 2 {
		t.Errorf("Skipped = %v, want AAPL and the repeated MSFT", report.Skipped)
	}
	if _, ok := report.Failed["NOPE"]; !ok || len(report.Failed) != 1 {
		t.Errorf("Failed = %v, want NOPE", report.Failed)
	}

	got := svc.Favorites().Entries
	if len(got) != 3 || got[0].Symbol != "AAPL" || got[1].Symbol != "MSFT" || got[2].Symbol != "GOOGL" {
		t.Errorf("favorites after import = %+v", got)
	}
}

func TestService_Compare(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	c, err := svc.Compare(ctx, "aapl", "MSFT")
	if err != nil {
		t.Fatalf("Compare() returned error: %v", err)
	}
	if c.Result.Winner != "MSFT" {
		t.Errorf("Winner = %q, want MSFT", c.Result.Winner)
	}
	if c.Result.Stock1.Name != "Apple Inc." || c.Result.Stock2.Name != "Microsoft Corporation" {
		t.Errorf("names = %q/%q", c.Result.Stock1.Name, c.Result.Stock2.Name)
	}
	if c.Analysis.Winner != "MSFT" || c.Stock1.Quote.Symbol != "AAPL" || c.Stock2.Quote.Symbol != "MSFT" {
		t.Errorf("Compare() = %+v", c)
	}

	hist := svc.History()
	if len(hist) != 1 || hist[0].ID != c.Result.ID {
		t.Errorf("History() = %+v, want the new comparison", hist)
	}
}

func TestService_Compare_Errors(t *testing.T) {
	tests := []struct {
		name    string
		s1, s2  string
		wantErr error
	}{
		{name: "empty first", s1: "", s2: "MSFT", wantErr: ErrEmptySymbol},
		{name: "empty second", s1: "AAPL", s2: " ", wantErr: ErrEmptySymbol},
		{name: "identical", s1: "AAPL", s2: "aapl", wantErr: comparison.ErrIdenticalSymbols},
		{name: "unknown", s1: "AAPL", s2: "NOPE", wantErr: fetcher.ErrSymbolNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, src := newTestService(t)

			_, err := svc.Compare(context.Background(), tt.s1, tt.s2)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Compare() error = %v, want %v", err, tt.wantErr)
			}
			if len(svc.History()) != 0 {
				t.Error("failed comparison was recorded")
			}
			if tt.wantErr == comparison.ErrIdenticalSymbols && src.Calls("AAPL") != 0 {
				t.Error("identical symbols were fetched")
			}
		})
	}
}

func TestService_Compare_QuotesBeforeOverviews(t *testing.T) {
	svc, src := newTestService(t)

	var (
		mu    sync.Mutex
		calls []string
	)
	logCall := func(kind, symbol string) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, kind+" "+symbol)
	}
	fetchQuote, fetchCompany := src.FetchQuoteFunc, src.FetchCompanyInfoFunc
	src.FetchQuoteFunc = func(ctx context.Context, symbol string) (quote.Record, error) {
		logCall("quote", symbol)
		return fetchQuote(ctx, symbol)
	}
	src.FetchCompanyInfoFunc = func(ctx context.Context, symbol string) (quote.CompanyInfo, error) {
		logCall("company", symbol)
		return fetchCompany(ctx, symbol)
	}

	if _, err := svc.Compare(context.Background(), "AAPL", "MSFT"); err != nil {
		t.Fatalf("Compare() returned error: %v", err)
	}
	if len(calls) != 4 {
		t.Fatalf("calls = %v, want 4", calls)
	}
	for i, c := range calls {
		if isQuote := strings.HasPrefix(c, "quote "); isQuote != (i < 2) {
			t.Errorf("calls = %v, want both quotes before any overview", calls)
			break
		}
	}

	// a failed quote skips the overviews entirely
	calls = nil
	if _, err := svc.Compare(context.Background(), "AAPL", "NOPE"); !errors.Is(err, fetcher.ErrSymbolNotFound) {
		t.Fatalf("Compare() error = %v, want not found", err)
	}
	for _, c := range calls {
		if strings.HasPrefix(c, "company ") {
			t.Errorf("overview fetched after a failed quote: %v", calls)
		}
	}
}
