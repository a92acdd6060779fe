package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"liqfeed/internal/metrics"
	"liqfeed/internal/models"
	"liqfeed/logger"
)

type pollResult struct {
	vault   models.VaultAddress
	records []models.TradeRecord
	err     error
}

// cycleOutcome collects what happened in one cycle for the snapshot and the
// cycle report.
type cycleOutcome struct {
	id              string
	started         time.Time
	discoveryFailed bool
	rotation        models.Rotation
	polled          int
	skipped         int
	failures        int
	fills           int
	admitted        int
	timedOut        bool
}

// RunCycle performs one Idle, Discovering, Polling, Publishing pass and
// returns the published snapshot. The error is ErrCycleTimeout when the
// polling phase ran out of time; the snapshot is published regardless.
// Cycles never overlap.
func (r *Registry) RunCycle(ctx context.Context) (*models.Snapshot, error) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()
	defer r.setState(StateIdle)

	out := &cycleOutcome{id: uuid.NewString(), started: r.now()}
	log := r.log.WithComponent("registry").WithFields(logger.Fields{"cycle_id": out.id})

	r.setState(StateDiscovering)
	r.discover(ctx, out, log)

	// A valid empty set still passes through a no-op Polling phase. A failed
	// discovery with nothing known goes straight to Publishing.
	if !out.discoveryFailed || len(r.vaults) > 0 {
		r.setState(StatePolling)
		r.pollAll(ctx, out, log)
	}

	r.setState(StatePublishing)
	snap := r.publish(out)

	metrics.ReportCycle(r.log, metrics.CycleStats{
		CycleID:           out.id,
		Duration:          snap.CycleDuration,
		TimedOut:          out.timedOut,
		VaultsTracked:     len(snap.Vaults),
		VaultsPolled:      out.polled,
		VaultsSkipped:     out.skipped,
		PollFailures:      out.failures,
		FillsReceived:     out.fills,
		TradesAdmitted:    out.admitted,
		CacheSize:         snap.TotalTrades,
		StaleVaults:       len(snap.StaleVaults),
		AllStale:          snap.AllStale,
		DiscoveryFailed:   out.discoveryFailed,
		DiscoveryFailures: snap.Discovery.ConsecutiveFailures,
		DiscoveryDegraded: snap.Discovery.Degraded,
		VaultsAdded:       len(out.rotation.Added),
		VaultsRemoved:     len(out.rotation.Removed),
	})

	if out.timedOut {
		return snap, ErrCycleTimeout
	}
	return snap, nil
}

// discover refreshes the vault set. On failure the last known-good set is
// kept and the failure is counted.
func (r *Registry) discover(ctx context.Context, out *cycleOutcome, log *logger.Entry) {
	dctx, cancel := context.WithTimeout(ctx, r.cfg.DiscoveryTimeout)
	found, err := r.discoverer.Discover(dctx)
	cancel()

	if err != nil {
		out.discoveryFailed = true
		r.discovery.ConsecutiveFailures++
		r.discovery.TotalFailures++
		r.discovery.LastError = err.Error()
		alert := r.cfg.DiscoveryFailureAlert
		r.discovery.Degraded = alert > 0 && r.discovery.ConsecutiveFailures >= alert

		entry := log.WithFields(logger.Fields{
			"consecutive_failures": r.discovery.ConsecutiveFailures,
			"known_vaults":         len(r.vaults),
		}).WithError(err)
		if r.discovery.Degraded {
			entry.Error("vault discovery failing persistently; polling last known vaults")
		} else {
			entry.Warn("vault discovery failed; polling last known vaults")
		}
		return
	}

	r.discovery.ConsecutiveFailures = 0
	r.discovery.LastError = ""
	r.discovery.Degraded = false
	r.discovery.LastSuccessAt = r.now()

	out.rotation = r.rotate(found)
	if !out.rotation.Empty() {
		log.WithFields(logger.Fields{
			"added":   out.rotation.Added,
			"removed": out.rotation.Removed,
			"vaults":  len(r.vaults),
		}).Info("vault set rotated")
	}
}

// rotate installs next as the vault set. Vaults that left are forgotten by
// the health tracker; their merged trades stay in the cache.
func (r *Registry) rotate(next []models.VaultAddress) models.Rotation {
	nextSet := make(map[models.VaultAddress]struct{}, len(next))
	vaults := make([]models.VaultAddress, 0, len(next))
	for _, v := range next {
		if _, dup := nextSet[v]; dup || v == "" {
			continue
		}
		nextSet[v] = struct{}{}
		vaults = append(vaults, v)
	}
	sort.Slice(vaults, func(i, j int) bool { return vaults[i] < vaults[j] })

	prevSet := make(map[models.VaultAddress]struct{}, len(r.vaults))
	for _, v := range r.vaults {
		prevSet[v] = struct{}{}
	}

	var rot models.Rotation
	for _, v := range vaults {
		if _, ok := prevSet[v]; !ok {
			rot.Added = append(rot.Added, v)
			r.health.Track(v)
		}
	}
	for _, v := range r.vaults {
		if _, ok := nextSet[v]; !ok {
			rot.Removed = append(rot.Removed, v)
			r.health.Forget(v)
		}
	}

	r.vaults = vaults
	return rot
}

// pollAll fans out one poll per due vault and collects results until all
// are in or the cycle timeout fires. Results are applied on this goroutine
// only. Stragglers are recorded as failures and their late results dropped.
func (r *Registry) pollAll(ctx context.Context, out *cycleOutcome, log *logger.Entry) {
	targets := r.dueVaults(r.now())
	out.skipped = len(r.vaults) - len(targets)
	out.polled = len(targets)
	if len(targets) == 0 {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, r.cfg.CycleTimeout)
	defer cancel()

	// buffered so abandoned pollers never block
	results := make(chan pollResult, len(targets))
	pending := make(map[models.VaultAddress]struct{}, len(targets))
	for _, v := range targets {
		pending[v] = struct{}{}
		go func(vault models.VaultAddress) {
			vctx, vcancel := context.WithTimeout(pctx, r.cfg.PollTimeout)
			defer vcancel()
			records, err := r.poller.Poll(vctx, vault)
			results <- pollResult{vault: vault, records: records, err: err}
		}(v)
	}

collect:
	for len(pending) > 0 {
		select {
		case res := <-results:
			delete(pending, res.vault)
			r.apply(ctx, res, out, log)
		case <-pctx.Done():
			break collect
		}
	}

	// results already buffered when the deadline fired still count
drain:
	for len(pending) > 0 {
		select {
		case res := <-results:
			delete(pending, res.vault)
			r.apply(ctx, res, out, log)
		default:
			break drain
		}
	}

	if len(pending) == 0 {
		return
	}

	cause := pctx.Err()
	if errors.Is(cause, context.DeadlineExceeded) {
		out.timedOut = true
		cause = ErrCycleTimeout
	}
	abandoned := make([]models.VaultAddress, 0, len(pending))
	for v := range pending {
		abandoned = append(abandoned, v)
		out.failures++
		r.health.RecordFailure(v, fmt.Errorf("poll abandoned: %w", cause))
	}
	sort.Slice(abandoned, func(i, j int) bool { return abandoned[i] < abandoned[j] })
	log.WithFields(logger.Fields{
		"abandoned": abandoned,
		"timeout":   r.cfg.CycleTimeout.String(),
	}).Warn("polling phase ended with outstanding polls")
}

func (r *Registry) apply(ctx context.Context, res pollResult, out *cycleOutcome, log *logger.Entry) {
	if res.err != nil {
		out.failures++
		r.health.RecordFailure(res.vault, res.err)
		log.WithFields(logger.Fields{"vault": res.vault}).WithError(res.err).Debug("vault poll failed")
		return
	}

	var latest time.Time
	for _, t := range res.records {
		if t.Timestamp.After(latest) {
			latest = t.Timestamp
		}
	}
	out.fills += len(res.records)
	r.health.RecordSuccess(res.vault, len(res.records), latest)

	admitted := r.cache.MergeAdmitted(res.records)
	out.admitted += len(admitted)
	r.stream(ctx, admitted)
}

func (r *Registry) stream(ctx context.Context, admitted []models.TradeRecord) {
	if r.trades == nil {
		return
	}
	for _, t := range admitted {
		if !r.trades.SendTrade(ctx, t) && ctx.Err() == nil {
			metrics.EmitDropMetric(r.log, metrics.DropMetricTrades, t.Vault.String(), t.Coin, "registry")
		}
	}
}

// publish builds the snapshot from the cache and tracker and stores it.
func (r *Registry) publish(out *cycleOutcome) *models.Snapshot {
	// eviction must not depend on a merge having happened this cycle
	r.cache.Evict()

	now := r.now()
	vaults := r.health.Snapshot()
	stale := make([]models.VaultAddress, 0)
	for v, h := range vaults {
		if h.IsStale(now, r.cfg.StaleThreshold) {
			stale = append(stale, v)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })

	r.sequence++
	snap := &models.Snapshot{
		CycleID:        out.id,
		Sequence:       r.sequence,
		PublishedAt:    now,
		CycleDuration:  now.Sub(out.started),
		CycleTimedOut:  out.timedOut,
		Trades:         r.cache.Records(r.cfg.SnapshotTradeLimit),
		TotalTrades:    r.cache.Len(),
		Vaults:         vaults,
		StaleThreshold: r.cfg.StaleThreshold,
		StaleVaults:    stale,
		AllStale:       len(stale) == len(vaults),
		Discovery:      r.discovery,
		Rotation:       out.rotation,
	}
	r.snapshot.Store(snap)
	return snap
}
