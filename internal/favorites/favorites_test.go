package favorites

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"stockdesk/internal/storage"
	"stockdesk/internal/testutil"
)

// flakyBackend fails the next failSaves calls to Save
type flakyBackend struct {
	*storage.MemoryBackend
	failSaves int
	saves     int
}

func (f *flakyBackend) Save(ctx context.Context, key string, data []byte) error {
	f.saves++
	if f.failSaves > 0 {
		f.failSaves--
		return storage.ErrPersistenceUnavailable
	}
	return f.MemoryBackend.Save(ctx, key, data)
}

func newTestStore(t *testing.T) (*Store, *storage.MemoryBackend) {
	t.Helper()
	b := storage.NewMemoryBackend()
	s := Open(context.Background(), storage.NewCollection[Entry](b, storage.KeyFavorites))
	s.now = func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	return s, b
}

func reopen(t *testing.T, b storage.Backend) *Store {
	t.Helper()
	return Open(context.Background(), storage.NewCollection[Entry](b, storage.KeyFavorites))
}

func TestStore_Add(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	e, err := s.Add(ctx, testutil.Record("AAPL", "152.30", "1.30"), "Apple Inc.")
	if err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if e.Symbol != "AAPL" || e.Name != "Apple Inc." || e.Price.StringFixed(2) != "152.30" {
		t.Errorf("Add() = %+v", e)
	}
	if !e.AddedAt.Equal(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("AddedAt = %v", e.AddedAt)
	}

	// persisted before returning
	got := reopen(t, b).List()
	if len(got) != 1 || got[0].Symbol != "AAPL" || !got[0].Price.Equal(e.Price) {
		t.Errorf("persisted favorites = %+v", got)
	}
}

func TestStore_Add_DefaultName(t *testing.T) {
	s, _ := newTestStore(t)

	e, err := s.Add(context.Background(), testutil.Record("TSLA", "200", "-3"), "")
	if err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if e.Name != "TSLA" {
		t.Errorf("Name = %q, want TSLA", e.Name)
	}

	e, err = s.Add(context.Background(), testutil.Record(" nvda", "900", "5"), "")
	if err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if e.Symbol != "NVDA" || e.Name != "NVDA" {
		t.Errorf("Symbol, Name = %q, %q, want NVDA, NVDA", e.Symbol, e.Name)
	}
}

func TestStore_RejectsEmptySymbol(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	for _, sym := range []string{"", "   "} {
		if _, err := s.Add(ctx, testutil.Record(sym, "1", "0"), ""); !errors.Is(err, ErrEmptySymbol) {
			t.Errorf("Add(%q) error = %v, want ErrEmptySymbol", sym, err)
		}
		if _, err := s.Toggle(ctx, testutil.Record(sym, "1", "0"), ""); !errors.Is(err, ErrEmptySymbol) {
			t.Errorf("Toggle(%q) error = %v, want ErrEmptySymbol", sym, err)
		}
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if data, _ := b.Load(ctx, storage.KeyFavorites); data != nil {
		t.Errorf("rejected add was persisted: %s", data)
	}
}

func TestStore_AddDuplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, err := s.Add(ctx, testutil.Record("AAPL", "152.30", "1.30"), "Apple Inc."); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	_, err := s.Add(ctx, testutil.Record("AAPL", "160.00", "2.00"), "Apple")
	if !errors.Is(err, ErrDuplicateFavorite) {
		t.Fatalf("second Add() error = %v, want ErrDuplicateFavorite", err)
	}

	got := s.List()
	if len(got) != 1 || got[0].Price.StringFixed(2) != "152.30" || got[0].Name != "Apple Inc." {
		t.Errorf("favorites changed after duplicate add: %+v", got)
	}
}

func TestStore_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	if _, err := s.Add(ctx, testutil.Record("aapl", "152.30", "1.30"), ""); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if !s.Contains("AAPL") || !s.Contains(" aapl ") {
		t.Error("Contains() should match case-insensitively")
	}
	if _, err := s.Add(ctx, testutil.Record("AAPL", "152.30", "1.30"), ""); !errors.Is(err, ErrDuplicateFavorite) {
		t.Errorf("Add() error = %v, want ErrDuplicateFavorite", err)
	}
}

func TestStore_ToggleTwiceRestoresMembership(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		preAdd    bool
		wantFirst bool
	}{
		{name: "absent", preAdd: false, wantFirst: true},
		{name: "present", preAdd: true, wantFirst: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			rec := testutil.Record("MSFT", "304.20", "2.70")
			if tt.preAdd {
				s.Add(ctx, rec, "Microsoft Corporation")
			}
			before := s.Contains("MSFT")

			first, err := s.Toggle(ctx, rec, "Microsoft Corporation")
			if err != nil || first != tt.wantFirst {
				t.Fatalf("first Toggle() = %v, %v, want %v", first, err, tt.wantFirst)
			}
			second, err := s.Toggle(ctx, rec, "Microsoft Corporation")
			if err != nil || second != before {
				t.Fatalf("second Toggle() = %v, %v, want %v", second, err, before)
			}
			if s.Contains("MSFT") != before {
				t.Errorf("membership = %v, want %v", s.Contains("MSFT"), before)
			}
		})
	}
}

func TestStore_Remove(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	s.Add(ctx, testutil.Record("AAPL", "152.30", "1.30"), "")
	s.Add(ctx, testutil.Record("MSFT", "304.20", "2.70"), "")
	s.Add(ctx, testutil.Record("GOOGL", "2810.50", "5.50"), "")

	if err := s.Remove(ctx, "msft"); err != nil {
		t.Fatalf("Remove() returned error: %v", err)
	}
	if err := s.Remove(ctx, "NFLX"); err != nil {
		t.Errorf("Remove() of absent symbol returned error: %v", err)
	}

	got := reopen(t, b).Symbols()
	want := []string{"AAPL", "GOOGL"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("Symbols() = %v, want %v", got, want)
	}
}

func TestStore_ListIsCopyInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, sym := range []string{"TSLA", "AAPL", "META"} {
		s.Add(ctx, testutil.Record(sym, "100", "1"), "")
	}

	list := s.List()
	list[0].Symbol = "XXXX"

	got := s.Symbols()
	want := []string{"TSLA", "AAPL", "META"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Symbols()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s, b := newTestStore(t)

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() on empty store returned error: %v", err)
	}
	s.Add(ctx, testutil.Record("AAPL", "152.30", "1.30"), "")
	s.Add(ctx, testutil.Record("MSFT", "304.20", "2.70"), "")
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() returned error: %v", err)
	}

	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if got := reopen(t, b).Len(); got != 0 {
		t.Errorf("persisted Len() = %d, want 0", got)
	}
}

func TestStore_UpdateSnapshot(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	added, _ := s.Add(ctx, testutil.Record("AAPL", "152.30", "1.30"), "Apple Inc.")

	refreshedAt := time.Date(2024, 1, 16, 9, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return refreshedAt }

	e, err := s.UpdateSnapshot(ctx, testutil.Record("AAPL", "149.00", "-3.30"))
	if err != nil {
		t.Fatalf("UpdateSnapshot() returned error: %v", err)
	}
	if e.Price.StringFixed(2) != "149.00" || e.Change.StringFixed(2) != "-3.30" {
		t.Errorf("snapshot not refreshed: %+v", e)
	}
	if !e.AddedAt.Equal(added.AddedAt) || e.Name != "Apple Inc." {
		t.Errorf("UpdateSnapshot() changed identity fields: %+v", e)
	}
	if !e.RefreshedAt.Equal(refreshedAt) {
		t.Errorf("RefreshedAt = %v, want %v", e.RefreshedAt, refreshedAt)
	}

	if _, err := s.UpdateSnapshot(ctx, testutil.Record("NFLX", "1", "0")); !errors.Is(err, ErrNotFavorite) {
		t.Errorf("UpdateSnapshot() of absent symbol error = %v, want ErrNotFavorite", err)
	}
}

func TestStore_Summary(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	s.Add(ctx, testutil.Record("AAPL", "152.30", "1.30"), "")
	s.Add(ctx, testutil.Record("MSFT", "304.20", "2.70"), "")
	s.Add(ctx, testutil.Record("TSLA", "200.00", "-4.10"), "")
	s.Add(ctx, testutil.Record("IBM", "180.00", "0"), "")

	want := Summary{Total: 4, Positive: 2, Negative: 1, Unchanged: 1}
	if got := s.Summary(); got != want {
		t.Errorf("Summary() = %+v, want %+v", got, want)
	}
}

func TestStore_SaveFailureRetriedOnNextChange(t *testing.T) {
	ctx := context.Background()
	b := &flakyBackend{MemoryBackend: storage.NewMemoryBackend()}
	s := Open(ctx, storage.NewCollection[Entry](b, storage.KeyFavorites))

	b.failSaves = 1
	if _, err := s.Add(ctx, testutil.Record("AAPL", "152.30", "1.30"), ""); err != nil {
		t.Fatalf("Add() during persistence failure returned error: %v", err)
	}
	if !s.Degraded() {
		t.Error("Degraded() = false after save failure")
	}
	if !s.Contains("AAPL") {
		t.Error("in-memory state lost after save failure")
	}

	if _, err := s.Add(ctx, testutil.Record("MSFT", "304.20", "2.70"), ""); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if b.saves != 2 {
		t.Errorf("saves = %d, want 2", b.saves)
	}
	if s.Degraded() {
		t.Error("Degraded() = true after a successful save")
	}

	got := reopen(t, b.MemoryBackend).Symbols()
	if len(got) != 2 || got[0] != "AAPL" || got[1] != "MSFT" {
		t.Errorf("persisted symbols = %v, want [AAPL MSFT]", got)
	}
}

func TestStore_SavesAfterCallerCancels(t *testing.T) {
	b, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "favorites.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() returned error: %v", err)
	}
	t.Cleanup(func() { b.Close() })

	s := reopen(t, b)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Add(cancelled, testutil.Record("AAPL", "152.30", "1.30"), ""); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if _, err := s.Add(context.Background(), testutil.Record("MSFT", "304.20", "2.70"), ""); err != nil {
		t.Fatalf("Add() returned error: %v", err)
	}
	if s.Degraded() {
		t.Error("Degraded() = true after cancelled request")
	}

	if got := reopen(t, b).Len(); got != 2 {
		t.Errorf("persisted Len() = %d, want 2", got)
	}
}

func TestOpen_UnavailableBackend(t *testing.T) {
	s := Open(context.Background(), storage.NewCollection[Entry](storage.NoneBackend{}, storage.KeyFavorites))

	if !s.Degraded() {
		t.Error("Degraded() = false for unavailable backend")
	}
	if _, err := s.Add(context.Background(), testutil.Record("AAPL", "1", "0"), ""); err != nil {
		t.Errorf("Add() returned error: %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestOpen_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend()
	b.Save(ctx, storage.KeyFavorites, []byte("not json"))

	s := reopen(t, b)
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if s.Degraded() {
		t.Error("corrupt document should not degrade the store")
	}

	// the next mutation overwrites the corrupt document
	s.Add(ctx, testutil.Record("AAPL", "152.30", "1.30"), "")
	if got := reopen(t, b).Len(); got != 1 {
		t.Errorf("persisted Len() = %d, want 1", got)
	}
}

func TestOpen_DropsDuplicates(t *testing.T) {
	ctx := context.Background()
	b := storage.NewMemoryBackend()
	b.Save(ctx, storage.KeyFavorites, []byte(`[{"symbol":"aapl","name":"Apple"},{"symbol":"AAPL","name":"Dup"},{"symbol":""}]`))

	s := reopen(t, b)
	got := s.List()
	if len(got) != 1 || got[0].Symbol != "AAPL" || got[0].Name != "Apple" {
		t.Errorf("List() = %+v", got)
	}
}
