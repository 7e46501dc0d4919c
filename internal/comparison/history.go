package comparison

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"stockdesk/internal/storage"
)

// HistoryLimit is the number of comparisons the history keeps
const HistoryLimit = 10

// History is a newest-first log of comparison results, capped at HistoryLimit
// and persisted whole on every append. A failed save is retried by the next append.
type History struct {
	mu          sync.RWMutex
	results     []Result
	coll        *storage.Collection[Result]
	unavailable bool
	saveErr     error
}

// OpenHistory loads the history collection; load failures start an empty log
func OpenHistory(ctx context.Context, coll *storage.Collection[Result]) *History {
	h := &History{coll: coll}

	results, err := coll.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrPersistenceUnavailable):
		slog.Warn("comparison history persistence unavailable, continuing in memory", "error", err)
		h.unavailable = true
	default:
		slog.Warn("discarding unreadable comparison history", "key", coll.Key(), "error", err)
	}

	if len(results) > HistoryLimit {
		results = results[:HistoryLimit]
	}
	h.results = results
	return h
}

// Append inserts r at the front, drops anything past HistoryLimit and persists
func (h *History) Append(ctx context.Context, r Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make([]Result, 0, min(len(h.results)+1, HistoryLimit))
	next = append(next, r)
	for _, old := range h.results {
		if len(next) == HistoryLimit {
			break
		}
		next = append(next, old)
	}
	h.results = next

	if h.unavailable {
		return nil
	}

	err := h.coll.Save(ctx, h.results)
	switch {
	case err != nil && h.saveErr == nil:
		slog.Warn("saving comparison history failed, retrying on next append", "key", h.coll.Key(), "error", err)
	case err == nil && h.saveErr != nil:
		slog.Info("comparison history saved after earlier failure", "key", h.coll.Key())
	}
	h.saveErr = err
	return nil
}

// List returns a copy of the history, newest first
func (h *History) List() []Result {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Result, len(h.results))
	copy(out, h.results)
	return out
}

// Degraded reports whether persistence is unavailable or the latest save failed
func (h *History) Degraded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.unavailable || h.saveErr != nil
}
