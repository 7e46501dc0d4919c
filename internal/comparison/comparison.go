// Package comparison decides head-to-head quote comparisons and keeps a
// bounded history of them.
package comparison

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stockdesk/internal/quote"
)

// ErrIdenticalSymbols is returned when both sides of a comparison are the same symbol
var ErrIdenticalSymbols = errors.New("cannot compare a symbol with itself")

// Side is one operand of a comparison
type Side struct {
	Record quote.Record
	Name   string
}

func (s Side) name() string {
	if s.Name == "" {
		return s.Record.Symbol
	}
	return s.Name
}

// Stock is the part of a side kept in the history
type Stock struct {
	Symbol string          `json:"symbol"`
	Name   string          `json:"name"`
	Change decimal.Decimal `json:"change"`
}

// Result is an immutable comparison outcome
type Result struct {
	ID        string    `json:"id"`
	Stock1    Stock     `json:"stock1"`
	Stock2    Stock     `json:"stock2"`
	Winner    string    `json:"winner"`
	Timestamp time.Time `json:"timestamp"`
}

// Analysis is the narrative rendered next to a comparison
type Analysis struct {
	Winner         string `json:"winner"`
	Headline       string `json:"headline"`
	Summary        string `json:"summary"`
	PriceLine      string `json:"priceLine"`
	VolatilityNote string `json:"volatilityNote"`
}

// Compare picks the side with the strictly larger signed change in currency
// units. On a tie the second side wins.
func Compare(a, b Side) (Result, error) {
	if quote.NormalizeSymbol(a.Record.Symbol) == quote.NormalizeSymbol(b.Record.Symbol) {
		return Result{}, ErrIdenticalSymbols
	}

	return Result{
		ID:        uuid.NewString(),
		Stock1:    Stock{Symbol: a.Record.Symbol, Name: a.name(), Change: a.Record.Change},
		Stock2:    Stock{Symbol: b.Record.Symbol, Name: b.name(), Change: b.Record.Change},
		Winner:    winner(a.Record, b.Record).Symbol,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Analyze renders the narrative for a comparison of a and b
func Analyze(a, b Side) (Analysis, error) {
	if quote.NormalizeSymbol(a.Record.Symbol) == quote.NormalizeSymbol(b.Record.Symbol) {
		return Analysis{}, ErrIdenticalSymbols
	}

	w := winner(a.Record, b.Record)

	volatile := b.Record
	if a.Record.Change.Abs().GreaterThan(b.Record.Change.Abs()) {
		volatile = a.Record
	}

	return Analysis{
		Winner:   w.Symbol,
		Headline: fmt.Sprintf("🏆 %s has the better performance today", w.Symbol),
		Summary: fmt.Sprintf("%s is outperforming today with a change of %s.",
			w.Symbol, quote.FormatCurrency(w.Change)),
		PriceLine: fmt.Sprintf("%s trades at %s while %s is at %s.",
			a.Record.Symbol, quote.FormatCurrency(a.Record.Price),
			b.Record.Symbol, quote.FormatCurrency(b.Record.Price)),
		VolatilityNote: fmt.Sprintf("%s is more volatile today with the larger price move.", volatile.Symbol),
	}, nil
}

// winner returns a when its signed change is strictly larger, otherwise b
func winner(a, b quote.Record) quote.Record {
	if a.Change.GreaterThan(b.Change) {
		return a
	}
	return b
}
