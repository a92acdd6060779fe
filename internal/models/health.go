package models

import "time"

// VaultHealth is the per-vault liveness record kept by the health tracker.
// A zero LastFillAt means no fill has ever been observed for the vault.
type VaultHealth struct {
	Vault               VaultAddress `json:"vault"`
	DiscoveredAt        time.Time    `json:"discovered_at"`
	LastPollAt          time.Time    `json:"last_poll_at"`
	LastSuccessAt       time.Time    `json:"last_success_at"`
	LastFillAt          time.Time    `json:"last_fill_at"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	TotalFailures       int64        `json:"total_failures"`
	TotalPolls          int64        `json:"total_polls"`
	LastError           string       `json:"last_error,omitempty"`
}

// HasFills reports whether any fill has been observed.
func (h VaultHealth) HasFills() bool {
	return !h.LastFillAt.IsZero()
}

// IsStale reports whether the last observed fill is older than threshold at
// now. A vault that never produced a fill is always stale.
func (h VaultHealth) IsStale(now time.Time, threshold time.Duration) bool {
	if !h.HasFills() {
		return true
	}
	return now.Sub(h.LastFillAt) > threshold
}
