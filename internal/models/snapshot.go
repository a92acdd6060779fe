package models

import (
	"sort"
	"time"
)

// DiscoveryStatus summarises discovery health across cycles.
type DiscoveryStatus struct {
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       int64     `json:"total_failures"`
	LastError           string    `json:"last_error,omitempty"`
	LastSuccessAt       time.Time `json:"last_success_at"`
	// Degraded is set once consecutive failures reach the configured alert level.
	Degraded bool `json:"degraded"`
}

// Rotation lists the vaults that appeared or disappeared in a cycle.
type Rotation struct {
	Added   []VaultAddress `json:"added,omitempty"`
	Removed []VaultAddress `json:"removed,omitempty"`
}

// Empty reports whether the vault set did not change.
func (r Rotation) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// Snapshot is an immutable view published once per completed cycle. Callers
// must not modify the exported slices and maps; the accessor methods return
// copies.
type Snapshot struct {
	CycleID        string                       `json:"cycle_id"`
	Sequence       uint64                       `json:"sequence"`
	PublishedAt    time.Time                    `json:"published_at"`
	CycleDuration  time.Duration                `json:"cycle_duration"`
	CycleTimedOut  bool                         `json:"cycle_timed_out"`
	Trades         []TradeRecord                `json:"trades"`
	TotalTrades    int                          `json:"total_trades"`
	Vaults         map[VaultAddress]VaultHealth `json:"vaults"`
	StaleThreshold time.Duration                `json:"stale_threshold"`
	StaleVaults    []VaultAddress               `json:"stale_vaults"`
	AllStale       bool                         `json:"all_stale"`
	Discovery      DiscoveryStatus              `json:"discovery"`
	Rotation       Rotation                     `json:"rotation"`
}

// Recent returns up to limit trades, most recent first. limit <= 0 returns all.
func (s *Snapshot) Recent(limit int) []TradeRecord {
	n := len(s.Trades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]TradeRecord, n)
	copy(out, s.Trades[:n])
	return out
}

// TradesForVault returns the trades attributed to vault, most recent first.
func (s *Snapshot) TradesForVault(vault VaultAddress) []TradeRecord {
	var out []TradeRecord
	for _, t := range s.Trades {
		if t.Vault == vault {
			out = append(out, t)
		}
	}
	return out
}

// Health returns the health entry of a tracked vault.
func (s *Snapshot) Health(vault VaultAddress) (VaultHealth, bool) {
	h, ok := s.Vaults[vault]
	return h, ok
}

// VaultList returns the tracked vaults in sorted order.
func (s *Snapshot) VaultList() []VaultAddress {
	out := make([]VaultAddress, 0, len(s.Vaults))
	for v := range s.Vaults {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Alerting reports whether the snapshot carries a user-visible alert
// condition: every feed stale, or discovery failing persistently.
func (s *Snapshot) Alerting() bool {
	return s.AllStale || s.Discovery.Degraded
}
