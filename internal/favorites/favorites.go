// Package favorites keeps the user's watchlist of quote snapshots.
package favorites

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stockdesk/internal/quote"
	"stockdesk/internal/storage"
)

var (
	// ErrDuplicateFavorite is returned by Add when the symbol is already a favorite
	ErrDuplicateFavorite = errors.New("symbol is already a favorite")

	// ErrNotFavorite is returned when an operation needs an existing favorite
	ErrNotFavorite = errors.New("symbol is not a favorite")

	// ErrEmptySymbol is returned when a record without a symbol is added
	ErrEmptySymbol = errors.New("favorite symbol is required")
)

// Entry is a favorite symbol with the quote snapshot taken when it was added or last refreshed
type Entry struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	AddedAt       time.Time       `json:"addedAt"`
	RefreshedAt   time.Time       `json:"refreshedAt,omitzero"`
}

// Summary counts favorites by the direction of their snapshot change
type Summary struct {
	Total     int `json:"total"`
	Positive  int `json:"positive"`
	Negative  int `json:"negative"`
	Unchanged int `json:"unchanged"`
}

// Store holds favorites in insertion order and persists every mutation.
// A backend that is unavailable at startup turns persistence off for good.
// A failed save is logged and retried with the next mutation, which writes the
// whole list again. Either way the store keeps working from memory.
type Store struct {
	mu          sync.RWMutex
	entries     []Entry
	coll        *storage.Collection[Entry]
	unavailable bool
	saveErr     error
	now         func() time.Time
}

// Open loads the favorites collection. Load failures never prevent the store
// from starting: a corrupt document starts empty and an unavailable backend
// starts empty in degraded mode.
func Open(ctx context.Context, coll *storage.Collection[Entry]) *Store {
	s := &Store{coll: coll, now: time.Now}

	entries, err := coll.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrPersistenceUnavailable):
		slog.Warn("favorites persistence unavailable, continuing in memory", "error", err)
		s.unavailable = true
	default:
		slog.Warn("discarding unreadable favorites", "key", coll.Key(), "error", err)
	}

	// drop duplicates a hand-edited document may contain
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		e.Symbol = quote.NormalizeSymbol(e.Symbol)
		if e.Symbol == "" || seen[e.Symbol] {
			continue
		}
		seen[e.Symbol] = true
		s.entries = append(s.entries, e)
	}
	return s
}

// Add stores a snapshot of rec under its symbol. displayName falls back to the symbol.
func (s *Store) Add(ctx context.Context, rec quote.Record, displayName string) (Entry, error) {
	if quote.NormalizeSymbol(rec.Symbol) == "" {
		return Entry{}, ErrEmptySymbol
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(rec.Symbol) >= 0 {
		return Entry{}, ErrDuplicateFavorite
	}

	e := s.newEntry(rec, displayName)
	s.entries = append(s.entries, e)
	s.persist(ctx)
	return e, nil
}

// Remove deletes symbol. Removing an absent symbol is a no-op.
func (s *Store) Remove(ctx context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(symbol)
	if i < 0 {
		return nil
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	s.persist(ctx)
	return nil
}

// Toggle removes rec's symbol if present, otherwise adds it.
// It reports whether the symbol is a favorite afterwards.
func (s *Store) Toggle(ctx context.Context, rec quote.Record, displayName string) (bool, error) {
	if quote.NormalizeSymbol(rec.Symbol) == "" {
		return false, ErrEmptySymbol
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(rec.Symbol); i >= 0 {
		s.entries = slices.Delete(s.entries, i, i+1)
		s.persist(ctx)
		return false, nil
	}

	s.entries = append(s.entries, s.newEntry(rec, displayName))
	s.persist(ctx)
	return true, nil
}

// Clear removes every favorite
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	s.persist(ctx)
	return nil
}

// UpdateSnapshot refreshes the price fields of an existing favorite from rec.
// AddedAt and Name are preserved.
func (s *Store) UpdateSnapshot(ctx context.Context, rec quote.Record) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(rec.Symbol)
	if i < 0 {
		return Entry{}, ErrNotFavorite
	}

	e := &s.entries[i]
	e.Price = rec.Price
	e.Change = rec.Change
	e.ChangePercent = rec.ChangePercent
	e.RefreshedAt = s.now().UTC()
	s.persist(ctx)
	return *e, nil
}

// List returns a copy of the favorites in insertion order
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Symbols returns the favorite symbols in insertion order
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Symbol
	}
	return out
}

// Get returns the favorite for symbol
func (s *Store) Get(symbol string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(symbol)
	if i < 0 {
		return Entry{}, false
	}
	return s.entries[i], true
}

// Contains reports whether symbol is a favorite
func (s *Store) Contains(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(symbol) >= 0
}

// Len returns the number of favorites
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Summary counts favorites by snapshot change direction
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{Total: len(s.entries)}
	for _, e := range s.entries {
		switch e.Change.Sign() {
		case 1:
			sum.Positive++
		case -1:
			sum.Negative++
		default:
			sum.Unchanged++
		}
	}
	return sum
}

// Degraded reports whether the in-memory favorites may differ from the stored
// ones: persistence is unavailable or the latest save failed.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unavailable || s.saveErr != nil
}

func (s *Store) newEntry(rec quote.Record, displayName string) Entry {
	symbol := quote.NormalizeSymbol(rec.Symbol)
	name := displayName
	if name == "" {
		name = symbol
	}
	return Entry{
		Symbol:        symbol,
		Name:          name,
		Price:         rec.Price,
		Change:        rec.Change,
		ChangePercent: rec.ChangePercent,
		AddedAt:       s.now().UTC(),
	}
}

// indexOf must be called with s.mu held
func (s *Store) indexOf(symbol string) int {
	symbol = quote.NormalizeSymbol(symbol)
	return slices.IndexFunc(s.entries, func(e Entry) bool { return e.Symbol == symbol })
}

// persist must be called with s.mu held for writing
func (s *Store) persist(ctx context.Context) {
	if s.unavailable {
		return
	}

	err := s.coll.Save(ctx, s.entries)
	switch {
	case err != nil && s.saveErr == nil:
		slog.Warn("saving favorites failed, retrying on next change", "key", s.coll.Key(), "error", err)
	case err != nil:
		slog.Debug("saving favorites failed again", "key", s.coll.Key(), "error", err)
	case s.saveErr != nil:
		slog.Info("favorites saved after earlier failure", "key", s.coll.Key())
	}
	s.saveErr = err
}
