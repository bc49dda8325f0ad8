// Package books captures order book snapshots for every token in an
// active window: best levels by linear scan, spread, mid and dollar
// depth at the 1% and 5% thresholds, plus up to 10 raw L2 levels per
// side persisted under a per-capture snapshot id.
package books

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
	"github.com/alejandrodnm/polywatch/internal/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// Depth thresholds are fixed: 1% and 5% from the best price.
const (
	depthNear = 0.01
	depthFar  = 0.05
)

// Config holds the collector settings.
type Config struct {
	Interval      time.Duration
	MaxConcurrent int64
	MaxLevels     int // L2 rows persisted per side
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:      2 * time.Second,
		MaxConcurrent: 4,
		MaxLevels:     10,
	}
}

// Collector snapshots the books of all tracked tokens on a fixed interval.
type Collector struct {
	cfg   Config
	books ports.BookProvider
	store ports.BookStorage // nil = no persistence
	log   *slog.Logger
	sem   *semaphore.Weighted

	// inProgress guards against overlapping cycles: an overlap is
	// skipped, never queued.
	inProgress atomic.Bool

	mu      sync.Mutex
	tracked map[string]string          // tokenID → symbol
	latest  map[string]domain.OrderBook // tokenID → last non-empty capture
}

// New creates a Collector.
func New(cfg Config, books ports.BookProvider, store ports.BookStorage) *Collector {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxLevels <= 0 {
		cfg.MaxLevels = 10
	}
	return &Collector{
		cfg:     cfg,
		books:   books,
		store:   store,
		log:     slog.With("module", "books"),
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		tracked: make(map[string]string),
		latest:  make(map[string]domain.OrderBook),
	}
}

// SetTracked re-derives the tracked token set from the currently active
// windows. Tokens no longer in any active window are dropped, along
// with their cached books.
func (c *Collector) SetTracked(windows []domain.Window) {
	next := make(map[string]string)
	for _, w := range windows {
		for _, id := range w.TokenIDs() {
			next[id] = w.Symbol
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.latest {
		if _, ok := next[id]; !ok {
			delete(c.latest, id)
		}
	}
	c.tracked = next
}

// Tracked returns the currently tracked token ids.
func (c *Collector) Tracked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.tracked))
	for id := range c.tracked {
		ids = append(ids, id)
	}
	return ids
}

// LatestBook returns the last non-empty book captured for the token.
func (c *Collector) LatestBook(tokenID string) (domain.OrderBook, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ob, ok := c.latest[tokenID]
	return ob, ok
}

// Run executes the capture loop until the context is cancelled.
func (c *Collector) Run(ctx context.Context) error {
	c.log.Info("book collector starting", "interval", c.cfg.Interval)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("book collector stopped")
			return nil
		case <-ticker.C:
			c.CollectOnce(ctx)
		}
	}
}

// CollectOnce snapshots all tracked tokens concurrently. Returns the
// number of captured (non-empty) books. If a previous cycle is still
// running the call is skipped and returns -1.
func (c *Collector) CollectOnce(ctx context.Context) int {
	if !c.inProgress.CompareAndSwap(false, true) {
		c.log.Debug("capture cycle still in progress, skipping")
		return -1
	}
	defer c.inProgress.Store(false)

	ids := c.Tracked()
	if len(ids) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	captured := make(chan domain.OrderBook, len(ids))
	for _, id := range ids {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(tokenID string) {
			defer wg.Done()
			defer c.sem.Release(1)
			ob, err := c.books.FetchOrderBook(ctx, tokenID)
			if err != nil {
				c.log.Debug("book fetch failed", "token", shortToken(tokenID), "err", err)
				return
			}
			captured <- ob
		}(id)
	}
	wg.Wait()
	close(captured)

	now := time.Now().UTC()
	count := 0
	for ob := range captured {
		// Zero bids and zero asks means no data, not an empty market.
		if ob.Empty() {
			c.log.Debug("empty book skipped", "token", shortToken(ob.TokenID))
			continue
		}

		c.mu.Lock()
		c.latest[ob.TokenID] = ob
		c.mu.Unlock()

		if c.store != nil {
			snap, levels := BuildSnapshot(ob, now, c.cfg.MaxLevels)
			if err := c.store.SaveBookSnapshot(ctx, snap, levels); err != nil {
				c.log.Warn("book snapshot persist failed", "token", shortToken(ob.TokenID), "err", err)
			}
		}
		count++
	}

	return count
}

// BuildSnapshot computes the aggregate row and the L2 rows for a book.
// Levels are persisted in book order (best first), capped per side.
func BuildSnapshot(ob domain.OrderBook, at time.Time, maxLevels int) (domain.BookSnapshot, []domain.BookLevelRow) {
	snap := domain.BookSnapshot{
		ID:           uuid.New().String(),
		TokenID:      ob.TokenID,
		BestBid:      ob.BestBid(),
		BestAsk:      ob.BestAsk(),
		Spread:       ob.Spread(),
		Mid:          ob.Midpoint(),
		BidDepth1Pct: ob.BidDepthUSD(depthNear),
		BidDepth5Pct: ob.BidDepthUSD(depthFar),
		AskDepth1Pct: ob.AskDepthUSD(depthNear),
		AskDepth5Pct: ob.AskDepthUSD(depthFar),
		BidLevels:    len(ob.Bids),
		AskLevels:    len(ob.Asks),
		At:           at,
	}

	levels := make([]domain.BookLevelRow, 0, 2*maxLevels)
	for rank, lvl := range ob.SortedBids() {
		if rank >= maxLevels {
			break
		}
		levels = append(levels, domain.BookLevelRow{
			SnapshotID: snap.ID,
			TokenID:    ob.TokenID,
			Side:       "bid",
			Rank:       rank,
			Price:      lvl.Price,
			Size:       lvl.Size,
			At:         at,
		})
	}
	for rank, lvl := range ob.SortedAsks() {
		if rank >= maxLevels {
			break
		}
		levels = append(levels, domain.BookLevelRow{
			SnapshotID: snap.ID,
			TokenID:    ob.TokenID,
			Side:       "ask",
			Rank:       rank,
			Price:      lvl.Price,
			Size:       lvl.Size,
			At:         at,
		})
	}

	return snap, levels
}

func shortToken(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:10] + "..."
}
