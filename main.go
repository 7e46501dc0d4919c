package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"stockdesk/internal/config"
	"stockdesk/internal/logging"
)

const usage = `Usage: stockdesk [flags] <command> [args]

Commands:
  serve                         run the HTTP API (and the relay with --relay)
  quote SYMBOL                  show a quote with company details
  compare SYMBOL1 SYMBOL2       compare today's performance of two symbols
  popular                       quotes for the popular symbols
  market                        market overview of the major index funds
  favorites [list]              list favorites
  favorites add SYMBOL...       add favorites
  favorites remove SYMBOL...    remove favorites
  favorites toggle SYMBOL       toggle a favorite
  favorites clear               remove every favorite
  favorites refresh             refresh every favorite's quote snapshot
  favorites import SYMBOL...    import bare tickers, skipping duplicates
  history                       recent comparisons, newest first
  relay                         run only the quote streaming relay

Flags:
`

func main() {
	flags := pflag.NewFlagSet("stockdesk", pflag.ExitOnError)
	config.RegisterFlags(flags)
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx, flags, args, os.Stdout); err != nil {
		log.Fatalf("stockdesk: %v", err)
	}
}

// run loads configuration, builds the application and dispatches the command
func run(ctx context.Context, flags *pflag.FlagSet, args []string, out io.Writer) error {
	loader := config.NewLoader(flags)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if _, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	loader.Watch(func(c *config.Config) {
		if err := logging.SetLevel(c.LogLevel); err != nil {
			slog.Warn("ignoring log level from reloaded config", "error", err)
		}
	})

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.dispatch(ctx, args, out)
}
