package dedup

import (
	"sort"
	"sync"
	"time"

	"liqfeed/internal/models"
	"liqfeed/logger"
)

// Config holds retention settings. At least one of MaxAge and MaxRecords
// should be positive; zero disables that bound.
type Config struct {
	MaxAge     time.Duration
	MaxRecords int
}

// DefaultConfig keeps 24 hours of fills with no count bound.
func DefaultConfig() Config {
	return Config{MaxAge: 24 * time.Hour}
}

// Stats are cumulative counters since the cache was created.
type Stats struct {
	Admitted   int64
	Duplicates int64
	Expired    int64
	Invalid    int64
	Evicted    int64
	Size       int
}

// Cache is the dedup merge cache. It is safe for concurrent use; writers are
// serialised by a mutex.
type Cache struct {
	cfg Config
	now func() time.Time
	log *logger.Log

	mu      sync.RWMutex
	ordered []models.TradeRecord // newest first
	index   map[string]time.Time // trade id -> stored timestamp
	stats   Stats
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used for age eviction.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Log) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// New creates an empty Cache.
func New(cfg Config, opts ...Option) *Cache {
	c := &Cache{
		cfg:   cfg,
		now:   time.Now,
		log:   logger.GetLogger(),
		index: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Merge admits every record whose trade id has not been seen and returns the
// number of newly admitted records.
func (c *Cache) Merge(records []models.TradeRecord) int {
	return len(c.MergeAdmitted(records))
}

// MergeAdmitted is Merge returning the admitted records themselves, in input
// order. Eviction runs on every call, including calls with no records.
//
// A trade id reported by several vaults is stored once and attributed to the
// lowest vault address, whatever order the merges arrive in.
func (c *Cache) MergeAdmitted(records []models.TradeRecord) []models.TradeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	evicted := c.evictLocked(now)

	cutoff, aged := c.cutoff(now)
	var admitted, dups []models.TradeRecord
	for _, r := range records {
		if r.TradeID == "" {
			c.stats.Invalid++
			continue
		}
		if _, seen := c.index[r.TradeID]; seen {
			c.stats.Duplicates++
			dups = append(dups, r)
			continue
		}
		if aged && r.Timestamp.Before(cutoff) {
			c.stats.Expired++
			continue
		}
		c.index[r.TradeID] = r.Timestamp
		admitted = append(admitted, r)
	}

	if len(admitted) > 0 {
		batch := make([]models.TradeRecord, len(admitted))
		copy(batch, admitted)
		sort.Slice(batch, func(i, j int) bool { return batch[i].Newer(batch[j]) })
		c.ordered = mergeNewestFirst(c.ordered, batch)
	}
	for _, r := range dups {
		c.attributeLocked(r)
	}

	trimmed := c.trimLocked()
	if trimmed > 0 {
		// Records cut by the count bound in this same call were never retained.
		kept := admitted[:0]
		for _, r := range admitted {
			if _, ok := c.index[r.TradeID]; ok {
				kept = append(kept, r)
			}
		}
		admitted = kept
	}
	c.stats.Admitted += int64(len(admitted))
	c.stats.Size = len(c.ordered)

	if evicted+trimmed > 0 {
		c.log.WithComponent("dedup_cache").WithFields(logger.Fields{
			"evicted": evicted + trimmed,
			"size":    len(c.ordered),
		}).Debug("evicted records outside retention")
	}

	return admitted
}

// Evict removes records outside the retention window without merging and
// returns how many were removed.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.evictLocked(c.now()) + c.trimLocked()
	c.stats.Size = len(c.ordered)
	return n
}

// Contains reports whether the trade id is currently retained.
func (c *Cache) Contains(tradeID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[tradeID]
	return ok
}

// Len returns the number of retained records.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ordered)
}

// Records returns up to limit records, newest first. limit <= 0 returns all.
func (c *Cache) Records(limit int) []models.TradeRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := len(c.ordered)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.TradeRecord, n)
	copy(out, c.ordered[:n])
	return out
}

// Stats returns a copy of the cumulative counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// attributeLocked moves a stored trade to dup's vault when that address sorts
// lower.
func (c *Cache) attributeLocked(dup models.TradeRecord) {
	ts, ok := c.index[dup.TradeID]
	if !ok {
		return
	}
	key := models.TradeRecord{TradeID: dup.TradeID, Timestamp: ts}
	i := sort.Search(len(c.ordered), func(i int) bool {
		return !c.ordered[i].Newer(key)
	})
	if i < len(c.ordered) && c.ordered[i].TradeID == dup.TradeID && dup.Vault < c.ordered[i].Vault {
		c.ordered[i].Vault = dup.Vault
	}
}

func (c *Cache) cutoff(now time.Time) (time.Time, bool) {
	if c.cfg.MaxAge <= 0 {
		return time.Time{}, false
	}
	return now.Add(-c.cfg.MaxAge), true
}

// evictLocked drops every record strictly older than the age cutoff.
func (c *Cache) evictLocked(now time.Time) int {
	cutoff, aged := c.cutoff(now)
	if !aged || len(c.ordered) == 0 {
		return 0
	}
	// ordered is newest first, so expired records form a suffix.
	i := sort.Search(len(c.ordered), func(i int) bool {
		return c.ordered[i].Timestamp.Before(cutoff)
	})
	return c.truncateLocked(i)
}

// trimLocked enforces MaxRecords by dropping the oldest records.
func (c *Cache) trimLocked() int {
	if c.cfg.MaxRecords <= 0 || len(c.ordered) <= c.cfg.MaxRecords {
		return 0
	}
	return c.truncateLocked(c.cfg.MaxRecords)
}

func (c *Cache) truncateLocked(keep int) int {
	removed := len(c.ordered) - keep
	if removed <= 0 {
		return 0
	}
	for _, r := range c.ordered[keep:] {
		delete(c.index, r.TradeID)
	}
	clear(c.ordered[keep:])
	c.ordered = c.ordered[:keep]
	c.stats.Evicted += int64(removed)
	return removed
}

// mergeNewestFirst merges two slices that are already sorted newest first.
func mergeNewestFirst(a, b []models.TradeRecord) []models.TradeRecord {
	out := make([]models.TradeRecord, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if b[j].Newer(a[i]) {
			out = append(out, b[j])
			j++
		} else {
			out = append(out, a[i])
			i++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
