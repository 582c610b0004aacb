package screener

import (
	"sync"
	"time"

	"paper-trader/pkg/types"
)

// Book holds the latest recommendation per symbol. The poller replaces
// entries as fresh screener files land; the executor reads from it when
// a candidate reaches the front of the queue, so a symbol that waited in
// the queue is always validated against the newest data we have.
type Book struct {
	mu      sync.RWMutex
	entries map[string]types.Recommendation
	updated time.Time
}

func NewBook() *Book {
	return &Book{entries: make(map[string]types.Recommendation)}
}

// Update merges a batch of recommendations into the book. A symbol's
// entry is replaced only when the incoming one is at least as new, so a
// re-read of an old file never clobbers a fresher recommendation.
func (b *Book) Update(recs []types.Recommendation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, rec := range recs {
		if existing, ok := b.entries[rec.Symbol]; ok && existing.IssuedAt.After(rec.IssuedAt) {
			continue
		}
		b.entries[rec.Symbol] = rec
	}
	b.updated = time.Now()
}

// Lookup returns the current recommendation for a symbol.
func (b *Book) Lookup(symbol string) (types.Recommendation, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.entries[symbol]
	return rec, ok
}

// Symbols returns the symbols currently tracked, in no particular order.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.entries))
	for sym := range b.entries {
		out = append(out, sym)
	}
	return out
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// IsStale reports whether the book has not been refreshed within maxAge.
// A book that has never been updated is always stale.
func (b *Book) IsStale(maxAge time.Duration) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.updated.IsZero() {
		return true
	}
	return time.Since(b.updated) > maxAge
}

func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}
