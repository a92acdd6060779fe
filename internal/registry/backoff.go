package registry

import (
	"time"

	"liqfeed/internal/models"
)

// dueVaults returns the vaults whose backoff window has passed. With backoff
// disabled every known vault is due.
func (r *Registry) dueVaults(now time.Time) []models.VaultAddress {
	if r.cfg.Retry.BaseDelay <= 0 {
		out := make([]models.VaultAddress, len(r.vaults))
		copy(out, r.vaults)
		return out
	}

	out := make([]models.VaultAddress, 0, len(r.vaults))
	for _, v := range r.vaults {
		h, ok := r.health.Get(v)
		if !ok || h.ConsecutiveFailures == 0 {
			out = append(out, v)
			continue
		}
		if !now.Before(h.LastPollAt.Add(r.backoffDelay(h.ConsecutiveFailures))) {
			out = append(out, v)
		}
	}
	return out
}

// backoffDelay is base * multiplier^(failures-1), capped at MaxDelay.
func (r *Registry) backoffDelay(failures int) time.Duration {
	retry := r.cfg.Retry
	delay := retry.BaseDelay
	limit := retry.MaxDelay
	if limit <= 0 {
		limit = time.Hour
	}
	for i := 1; i < failures && delay < limit; i++ {
		delay *= time.Duration(retry.BackoffMultiplier)
		if retry.BackoffMultiplier == 1 {
			break
		}
	}
	if delay > limit {
		delay = limit
	}
	return delay
}
