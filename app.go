package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"stockdesk/internal/alphavantage"
	"stockdesk/internal/api"
	"stockdesk/internal/comparison"
	"stockdesk/internal/config"
	"stockdesk/internal/coordinator"
	"stockdesk/internal/demo"
	"stockdesk/internal/desk"
	"stockdesk/internal/favorites"
	"stockdesk/internal/fetcher"
	"stockdesk/internal/quote"
	"stockdesk/internal/ratelimit"
	"stockdesk/internal/relay"
	"stockdesk/internal/scheduler"
	"stockdesk/internal/storage"
)

// errUsage marks a command line that names an unknown command or lacks arguments
var errUsage = errors.New("invalid usage, run stockdesk --help")

// app owns the long-lived collaborators every command shares
type app struct {
	cfg     *config.Config
	client  *alphavantage.Client
	backend storage.Backend
	desk    *desk.Service
}

// newApp wires the quote source, persistence and desk from cfg
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	ratelimit.GetLimiter().SetPerMinute(ratelimit.APIAlphaVantage, cfg.AlphavantageRequestsPerMinute)

	// A configured retry count of zero means no retries
	retries := cfg.HTTPRetryCount
	if retries == 0 {
		retries = -1
	}
	client := alphavantage.NewClient(alphavantage.Options{
		APIKey:  cfg.AlphavantageAPIKey,
		BaseURL: cfg.AlphavantageBaseURL,
		HTTP:    fetcher.ClientOptions{RetryCount: retries},
	})

	var source fetcher.QuoteSource = client
	if cfg.DemoFallback {
		d, err := demo.New()
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("load demo data: %w", err)
		}
		source = fetcher.WithFallback(client, d)
	}

	backend, err := storage.Open(ctx, storage.Options{
		Backend: cfg.StorageBackend,
		Path:    cfg.StoragePath,
		DSN:     cfg.StorageDSN,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open %s storage: %w", cfg.StorageBackend, err)
	}
	slog.Debug("storage ready", "backend", backend.Name())

	favs := favorites.Open(ctx, storage.NewCollection[favorites.Entry](backend, storage.KeyFavorites))
	history := comparison.OpenHistory(ctx, storage.NewCollection[comparison.Result](backend, storage.KeyComparisonHistory))

	return &app{
		cfg:     cfg,
		client:  client,
		backend: backend,
		desk: desk.New(source, favs, history, desk.Options{
			PopularSymbols: cfg.PopularSymbols,
			MaxConcurrency: cfg.MaxConcurrency,
		}),
	}, nil
}

// Close releases the storage backend and the HTTP client
func (a *app) Close() error {
	return errors.Join(a.backend.Close(), a.client.Close())
}

// dispatch runs the command named by args[0]
func (a *app) dispatch(ctx context.Context, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "relay":
		return a.relayOnly(ctx)
	}

	// One-shot commands share the fetch deadline
	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	switch cmd {
	case "quote":
		if len(rest) != 1 {
			return errUsage
		}
		return a.quote(ctx, rest[0], out)
	case "compare":
		if len(rest) != 2 {
			return errUsage
		}
		return a.compare(ctx, rest[0], rest[1], out)
	case "popular":
		results, err := a.desk.Popular(ctx)
		if err != nil {
			return err
		}
		coordinator.Print(out, results)
		return nil
	case "market":
		return a.market(ctx, out)
	case "favorites", "favs":
		return a.favorites(ctx, rest, out)
	case "history":
		printHistory(out, a.desk.History())
		return nil
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

func (a *app) quote(ctx context.Context, symbol string, out io.Writer) error {
	l, err := a.desk.Lookup(ctx, symbol)
	if err != nil {
		return err
	}
	printLookup(out, l)
	return nil
}

func (a *app) compare(ctx context.Context, symbol1, symbol2 string, out io.Writer) error {
	c, err := a.desk.Compare(ctx, symbol1, symbol2)
	if err != nil {
		return err
	}
	printComparison(out, c)
	return nil
}

func (a *app) market(ctx context.Context, out io.Writer) error {
	indices, err := a.desk.Market(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, idx := range indices {
		r := idx.Result
		if !r.OK() {
			fmt.Fprintf(tw, "%s\t%s\tERROR - %v\n", r.Symbol, idx.Name, r.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Symbol, idx.Name,
			quote.FormatCurrency(r.Record.Price), quote.FormatPercent(r.Record.ChangePercent))
	}
	return tw.Flush()
}

func (a *app) favorites(ctx context.Context, args []string, out io.Writer) error {
	sub := "list"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	switch sub {
	case "list", "ls":
		printFavorites(out, a.desk.Favorites())
		return nil
	case "add":
		if len(args) == 0 {
			return errUsage
		}
		for _, sym := range args {
			entry, err := a.desk.AddFavorite(ctx, sym)
			if err != nil {
				return fmt.Errorf("add %s: %w", sym, err)
			}
			fmt.Fprintf(out, "Added %s (%s) at %s\n", entry.Symbol, entry.Name, quote.FormatCurrency(entry.Price))
		}
		return nil
	case "remove", "rm":
		if len(args) == 0 {
			return errUsage
		}
		for _, sym := range args {
			if err := a.desk.RemoveFavorite(ctx, sym); err != nil {
				return fmt.Errorf("remove %s: %w", sym, err)
			}
			fmt.Fprintf(out, "Removed %s\n", quote.NormalizeSymbol(sym))
		}
		return nil
	case "toggle":
		if len(args) != 1 {
			return errUsage
		}
		on, err := a.desk.ToggleFavorite(ctx, args[0])
		if err != nil {
			return err
		}
		state := "removed from"
		if on {
			state = "added to"
		}
		fmt.Fprintf(out, "%s %s favorites\n", quote.NormalizeSymbol(args[0]), state)
		return nil
	case "clear":
		if err := a.desk.ClearFavorites(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Favorites cleared")
		return nil
	case "refresh":
		results, err := a.desk.RefreshFavorites(ctx)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No favorites to refresh")
			return nil
		}
		coordinator.Print(out, results)
		return nil
	case "import":
		if len(args) == 0 {
			return errUsage
		}
		report, err := a.desk.ImportTickers(ctx, args)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Imported: %s\n", joinOrNone(report.Imported))
		fmt.Fprintf(out, "Skipped: %s\n", joinOrNone(report.Skipped))
		for sym, msg := range report.Failed {
			fmt.Fprintf(out, "Failed %s: %s\n", sym, msg)
		}
		return nil
	default:
		return fmt.Errorf("unknown favorites command %q: %w", sub, errUsage)
	}
}

// serve runs the HTTP API until ctx is cancelled, together with the refresh
// scheduler and the relay when they are enabled
func (a *app) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	if a.cfg.RefreshInterval > 0 {
		sched, err := scheduler.New(scheduler.RefreshFunc(func(ctx context.Context) error {
			_, err := a.desk.RefreshFavorites(ctx)
			return err
		}), a.cfg.RefreshInterval, a.cfg.FetchTimeout)
		if err != nil {
			return err
		}
		wg.Go(func() { sched.Run(ctx) })
		slog.Info("favorites refresh scheduled", "interval", a.cfg.RefreshInterval)
	}

	opts := api.Options{
		Addr:        a.cfg.ListenAddr,
		CORSOrigins: a.cfg.CORSOrigins,
		Debug:       a.cfg.LogLevel == "debug",
	}
	if a.cfg.RelayEnabled {
		opts.Relay = a.startRelay(ctx, &wg, cancel)
	}

	return api.New(a.desk, opts).Run(ctx)
}

// relayOnly serves just the relay endpoint and the health check
func (a *app) relayOnly(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg conc.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	hub := a.startRelay(ctx, &wg, cancel)
	return api.New(nil, api.Options{
		Addr:        a.cfg.ListenAddr,
		CORSOrigins: a.cfg.CORSOrigins,
		Relay:       hub,
	}).Run(ctx)
}

// startRelay launches the supervised quote process and the hub. When the
// process exhausts its restart budget stop is called so the server exits too.
func (a *app) startRelay(ctx context.Context, wg *conc.WaitGroup, stop context.CancelFunc) *relay.Hub {
	sup := relay.NewSupervisor(relay.SupervisorOptions{
		Command:     a.cfg.RelayCommand,
		Args:        a.cfg.RelayArgv(),
		MaxRestarts: a.cfg.RelayMaxRestarts,
	})
	hub := relay.NewHub(a.cfg.RelayUpstreamURL)

	wg.Go(func() {
		if err := sup.Run(ctx); err != nil {
			slog.Error("relay process stopped", "error", err)
			stop()
		}
	})
	wg.Go(func() { hub.Run(ctx) })

	slog.Info("relay started", "command", a.cfg.RelayCommand, "upstream", a.cfg.RelayUpstreamURL)
	return hub
}

func printLookup(w io.Writer, l desk.Lookup) {
	q, c := l.Quote, l.Company
	star := ""
	if l.IsFavorite {
		star = " ★"
	}

	fmt.Fprintf(w, "%s  %s%s\n", q.Symbol, c.Name, star)
	fmt.Fprintf(w, "Price:       %s  %s (%s)\n",
		quote.FormatCurrency(q.Price), signedCurrency(q.Change), quote.FormatPercent(q.ChangePercent))
	fmt.Fprintf(w, "Open:        %s\n", quote.FormatCurrency(q.Open))
	fmt.Fprintf(w, "High / Low:  %s / %s\n", quote.FormatCurrency(q.High), quote.FormatCurrency(q.Low))
	fmt.Fprintf(w, "Prev close:  %s\n", quote.FormatCurrency(q.PreviousClose))
	fmt.Fprintf(w, "Volume:      %s\n", quote.FormatNumber(q.Volume))
	fmt.Fprintf(w, "Trading day: %s\n", q.LatestTradingDay)
	fmt.Fprintf(w, "Sector:      %s / %s\n", c.Sector, c.Industry)
	if c.Description != "" {
		fmt.Fprintf(w, "\n%s\n", c.Description)
	}
}

func printComparison(w io.Writer, c desk.Comparison) {
	fmt.Fprintf(w, "%s vs %s\n\n", c.Result.Stock1.Symbol, c.Result.Stock2.Symbol)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, l := range []desk.Lookup{c.Stock1, c.Stock2} {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", l.Quote.Symbol, l.Company.Name,
			quote.FormatCurrency(l.Quote.Price), signedCurrency(l.Quote.Change),
			quote.FormatPercent(l.Quote.ChangePercent))
	}
	tw.Flush()

	an := c.Analysis
	fmt.Fprintf(w, "\n%s\n%s\n%s\n%s\n", an.Headline, an.Summary, an.PriceLine, an.VolatilityNote)
}

func printFavorites(w io.Writer, v desk.FavoritesView) {
	if len(v.Entries) == 0 {
		fmt.Fprintln(w, "No favorites yet")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tNAME\tPRICE\tCHANGE\tADDED")
	for _, e := range v.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s (%s)\t%s\n", e.Symbol, e.Name,
			quote.FormatCurrency(e.Price), signedCurrency(e.Change), quote.FormatPercent(e.ChangePercent),
			e.AddedAt.Local().Format(time.DateTime))
	}
	tw.Flush()

	s := v.Summary
	fmt.Fprintf(w, "\n%d favorites: %d up, %d down, %d unchanged\n", s.Total, s.Positive, s.Negative, s.Unchanged)
	if v.Degraded {
		fmt.Fprintln(w, "Warning: recent favorites changes are not saved")
	}
}

func printHistory(w io.Writer, history []comparison.Result) {
	if len(history) == 0 {
		fmt.Fprintln(w, "No comparisons yet")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range history {
		fmt.Fprintf(tw, "%s\t%s vs %s\twinner %s\n",
			r.Timestamp.Local().Format(time.DateTime), r.Stock1.Symbol, r.Stock2.Symbol, r.Winner)
	}
	tw.Flush()
}

// signedCurrency renders a change with an explicit sign, e.g. +$1.30
func signedCurrency(d decimal.Decimal) string {
	s := quote.FormatCurrency(d)
	if !strings.HasPrefix(s, "-") {
		s = "+" + s
	}
	return s
}

func joinOrNone(symbols []string) string {
	if len(symbols) == 0 {
		return "none"
	}
	return strings.Join(symbols, ", ")
}
