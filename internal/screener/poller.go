package screener

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"paper-trader/internal/config"
)

// Poller re-reads the screener file on an interval, refreshes the Book,
// and pushes new symbols onto a bounded candidate queue. Workers drain
// the queue; when they fall behind, overflow candidates are dropped and
// picked up again on a later poll. A per-symbol cooldown keeps a symbol
// that appears in every poll from being enqueued more than once per
// window.
type Poller struct {
	cfg    config.ScreenerConfig
	book   *Book
	logger *slog.Logger

	candidates chan string

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewPoller(cfg config.ScreenerConfig, book *Book, logger *slog.Logger) *Poller {
	return &Poller{
		cfg:        cfg,
		book:       book,
		logger:     logger.With("component", "screener"),
		candidates: make(chan string, cfg.QueueSize),
		seen:       make(map[string]time.Time),
	}
}

// Candidates returns the queue of symbols awaiting processing.
func (p *Poller) Candidates() <-chan string {
	return p.candidates
}

// Run polls until the context is cancelled. The first poll happens
// immediately so a restart does not wait a full interval before work
// resumes.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("poller started",
		"path", p.cfg.Path,
		"interval", p.cfg.PollInterval,
		"queue_size", p.cfg.QueueSize)

	p.poll(ctx)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll reads the screener file once and enqueues whatever is new.
func (p *Poller) poll(ctx context.Context) {
	recs, skipped, err := ReadFile(p.cfg.Path)
	if err != nil {
		p.logger.Warn("screener read failed", "path", p.cfg.Path, "error", err)
		return
	}
	for _, serr := range skipped {
		p.logger.Warn("skipping malformed screener entry", "error", serr)
	}

	p.book.Update(recs)

	enqueued := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return
		}
		if !p.admit(rec.Symbol) {
			continue
		}
		select {
		case p.candidates <- rec.Symbol:
			enqueued++
		default:
			// Queue full. Forget the symbol so the next poll retries it.
			p.forget(rec.Symbol)
			p.logger.Warn("candidate queue full, dropping symbol", "symbol", rec.Symbol)
		}
	}

	p.logger.Info("screener poll complete",
		"entries", len(recs),
		"skipped", len(skipped),
		"enqueued", enqueued,
		"book_size", p.book.Len())
}

// admit reports whether a symbol is outside its cooldown window and, if
// so, starts a new window. Stale windows are pruned on the way through so
// the map tracks only symbols seen recently.
func (p *Poller) admit(symbol string) bool {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()

	for sym, last := range p.seen {
		if now.Sub(last) > p.cfg.Cooldown {
			delete(p.seen, sym)
		}
	}

	if last, ok := p.seen[symbol]; ok && now.Sub(last) <= p.cfg.Cooldown {
		return false
	}
	p.seen[symbol] = now
	return true
}

func (p *Poller) forget(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.seen, symbol)
}
