// Package health tracks per-vault liveness for the registry.
package health

import (
	"sort"
	"sync"
	"time"

	"liqfeed/internal/models"
	"liqfeed/logger"
)

// DefaultStaleThreshold is the age after which a vault without new fills is stale.
const DefaultStaleThreshold = 5 * time.Minute

// Tracker holds one VaultHealth entry per tracked vault. Vaults enter through
// Track and leave only through Forget.
type Tracker struct {
	now func() time.Time
	log *logger.Log

	mu     sync.RWMutex
	vaults map[models.VaultAddress]*models.VaultHealth
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the clock used for poll timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Log) Option {
	return func(t *Tracker) {
		t.log = log
	}
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		now:    time.Now,
		log:    logger.GetLogger(),
		vaults: make(map[models.VaultAddress]*models.VaultHealth),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track starts tracking vault with empty health. It reports false if the
// vault was already tracked, in which case its state is left unchanged.
func (t *Tracker) Track(vault models.VaultAddress) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.vaults[vault]; ok {
		return false
	}
	t.vaults[vault] = &models.VaultHealth{Vault: vault, DiscoveredAt: t.now()}
	return true
}

// RecordSuccess marks a completed poll. The last-fill timestamp only moves
// when fillCount > 0 and never goes backwards. Untracked vaults are ignored.
func (t *Tracker) RecordSuccess(vault models.VaultAddress, fillCount int, latestFill time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.vaults[vault]
	if !ok {
		return
	}
	now := t.now()
	h.LastPollAt = now
	h.LastSuccessAt = now
	h.TotalPolls++
	h.ConsecutiveFailures = 0
	h.LastError = ""
	if fillCount > 0 && latestFill.After(h.LastFillAt) {
		h.LastFillAt = latestFill
	}
}

// RecordFailure marks a failed poll attempt and returns the new consecutive
// failure count. The last-fill timestamp is left untouched.
func (t *Tracker) RecordFailure(vault models.VaultAddress, err error) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.vaults[vault]
	if !ok {
		return 0
	}
	h.LastPollAt = t.now()
	h.TotalPolls++
	h.TotalFailures++
	h.ConsecutiveFailures++
	if err != nil {
		h.LastError = err.Error()
	}
	if h.ConsecutiveFailures == 1 || h.ConsecutiveFailures%10 == 0 {
		t.log.WithComponent("health_tracker").WithFields(logger.Fields{
			"vault":                vault,
			"consecutive_failures": h.ConsecutiveFailures,
		}).WithError(err).Warn("vault poll failing")
	}
	return h.ConsecutiveFailures
}

// Forget stops tracking vault. It must only be called for vaults rotated out
// by discovery.
func (t *Tracker) Forget(vault models.VaultAddress) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.vaults, vault)
}

// Get returns a copy of the vault's health.
func (t *Tracker) Get(vault models.VaultAddress) (models.VaultHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.vaults[vault]
	if !ok {
		return models.VaultHealth{}, false
	}
	return *h, true
}

// StaleVaults returns, sorted, every vault whose last fill is strictly older
// than threshold. Vaults that never produced a fill are always included.
func (t *Tracker) StaleVaults(threshold time.Duration) []models.VaultAddress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.staleLocked(t.now(), threshold)
}

// AllStale reports whether every tracked vault is stale. With nothing tracked
// there is no live feed, so it returns true.
func (t *Tracker) AllStale(threshold time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.staleLocked(t.now(), threshold)) == len(t.vaults)
}

func (t *Tracker) staleLocked(now time.Time, threshold time.Duration) []models.VaultAddress {
	stale := make([]models.VaultAddress, 0)
	for v, h := range t.vaults {
		if h.IsStale(now, threshold) {
			stale = append(stale, v)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	return stale
}

// Snapshot returns a copy of every entry.
func (t *Tracker) Snapshot() map[models.VaultAddress]models.VaultHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[models.VaultAddress]models.VaultHealth, len(t.vaults))
	for v, h := range t.vaults {
		out[v] = *h
	}
	return out
}

// Vaults returns the tracked vaults, sorted.
func (t *Tracker) Vaults() []models.VaultAddress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.VaultAddress, 0, len(t.vaults))
	for v := range t.vaults {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.vaults)
}
