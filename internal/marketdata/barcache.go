// barcache.go provides the local tier of the market-data chain: crash-safe
// per-symbol daily-bar files.
//
// Each symbol's bars are stored as a separate gzip JSON file:
// bars_<SYMBOL>.json.gz. Writes use atomic file replacement (write to
// .tmp, then rename) to prevent corruption from partial writes or crashes
// mid-save. The chain writes through on every HTTP hit, so the cache can
// answer when both APIs are down.
package marketdata

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"paper-trader/pkg/types"
)

// Tier names surfaced in Snapshot.Source.
const (
	TierPrimary  = "primary"
	TierCache    = "cache"
	TierFallback = "fallback"
)

// Cached bars older than this are treated as a miss. Three days covers a
// weekend between the last trading session and a Monday restart.
const cacheMaxAge = 72 * time.Hour

// cachedBars is the on-disk format of one symbol's cache file.
type cachedBars struct {
	Symbol        string    `json:"symbol"`
	Closes        []float64 `json:"closes"`
	Volumes       []float64 `json:"volumes"`
	CurrentPrice  float64   `json:"current_price"`
	CurrentVolume float64   `json:"current_volume"`
	SavedAt       time.Time `json:"saved_at"`
}

// BarCache persists daily bars to gzip JSON files in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type BarCache struct {
	dir string     // directory containing bars_*.json.gz files
	mu  sync.Mutex // serializes all file operations
}

// OpenBarCache creates a cache backed by the given directory.
func OpenBarCache(dir string) (*BarCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &BarCache{dir: dir}, nil
}

func (b *BarCache) path(symbol string) string {
	return filepath.Join(b.dir, "bars_"+symbol+".json.gz")
}

// Put atomically persists a snapshot's bars for its symbol. It writes to a
// .tmp file first, then renames over the target so the file is never left
// in a partial state.
func (b *BarCache) Put(snap types.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := cachedBars{
		Symbol:        snap.Symbol,
		Closes:        snap.Closes,
		Volumes:       snap.Volumes,
		CurrentPrice:  snap.CurrentPrice,
		CurrentVolume: snap.CurrentVolume,
		SavedAt:       snap.FetchedAt,
	}
	if entry.SavedAt.IsZero() {
		entry.SavedAt = time.Now().UTC()
	}

	path := b.path(snap.Symbol)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	zw := gzip.NewWriter(f)
	if err := json.NewEncoder(zw).Encode(entry); err != nil {
		zw.Close()
		f.Close()
		return fmt.Errorf("encode bars: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("flush gzip: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	return os.Rename(tmp, path)
}

// Fetch serves a symbol's bars from disk. A missing or stale file is an
// error so the chain moves on to the next tier.
func (b *BarCache) Fetch(ctx context.Context, symbol string) (types.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return types.Snapshot{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return types.Snapshot{}, fmt.Errorf("cache miss for %s", symbol)
		}
		return types.Snapshot{}, fmt.Errorf("open cache file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("open gzip: %w", err)
	}
	defer zr.Close()

	var entry cachedBars
	if err := json.NewDecoder(zr).Decode(&entry); err != nil {
		return types.Snapshot{}, fmt.Errorf("decode bars: %w", err)
	}
	if _, err := io.Copy(io.Discard, zr); err != nil {
		return types.Snapshot{}, fmt.Errorf("verify gzip: %w", err)
	}

	age := time.Since(entry.SavedAt)
	if age > cacheMaxAge {
		return types.Snapshot{}, fmt.Errorf("cache for %s is stale (%s old)", symbol, age.Round(time.Hour))
	}

	return types.Snapshot{
		Symbol:        entry.Symbol,
		Closes:        entry.Closes,
		Volumes:       entry.Volumes,
		CurrentPrice:  entry.CurrentPrice,
		CurrentVolume: entry.CurrentVolume,
		Source:        TierCache,
		FetchedAt:     entry.SavedAt,
	}, nil
}
