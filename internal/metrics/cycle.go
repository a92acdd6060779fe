package metrics

import (
	"time"

	"liqfeed/logger"
)

// CycleStats summarises one registry cycle.
type CycleStats struct {
	CycleID           string
	Duration          time.Duration
	TimedOut          bool
	VaultsTracked     int
	VaultsPolled      int
	VaultsSkipped     int
	PollFailures      int
	FillsReceived     int
	TradesAdmitted    int
	CacheSize         int
	StaleVaults       int
	AllStale          bool
	DiscoveryFailed   bool
	DiscoveryFailures int
	DiscoveryDegraded bool
	VaultsAdded       int
	VaultsRemoved     int
}

// ReportCycle emits the cycle metrics and a summary log line. The line is a
// warning when the cycle timed out or every feed is stale.
func ReportCycle(log *logger.Log, stats CycleStats) {
	if log == nil {
		log = logger.GetLogger()
	}
	const component = "registry"
	count := logger.Fields{"unit": "count"}

	if IsFeatureEnabled(FeatureCycle) {
		EmitMetric(log, component, "cycle_duration_ms", stats.Duration, "gauge", logger.Fields{"unit": "milliseconds"})
		EmitMetric(log, component, "cycle_timed_out", stats.TimedOut, "gauge", count)
		EmitMetric(log, component, "cycle_poll_failures", stats.PollFailures, "gauge", count)
		EmitMetric(log, component, "cycle_trades_admitted", stats.TradesAdmitted, "gauge", count)
		EmitMetric(log, component, "cycle_cache_size", stats.CacheSize, "gauge", count)
		EmitMetric(log, component, "vaults_tracked", stats.VaultsTracked, "gauge", count)
		EmitMetric(log, component, "vaults_stale", stats.StaleVaults, "gauge", count)
		EmitMetric(log, component, "vaults_all_stale", stats.AllStale, "gauge", count)
		EmitMetric(log, component, "discovery_consecutive_failures", stats.DiscoveryFailures, "gauge", count)
	}

	entry := log.WithComponent(component).WithFields(logger.Fields{
		"cycle_id":           stats.CycleID,
		"duration_ms":        stats.Duration.Milliseconds(),
		"timed_out":          stats.TimedOut,
		"vaults_tracked":     stats.VaultsTracked,
		"vaults_polled":      stats.VaultsPolled,
		"vaults_skipped":     stats.VaultsSkipped,
		"poll_failures":      stats.PollFailures,
		"fills_received":     stats.FillsReceived,
		"trades_admitted":    stats.TradesAdmitted,
		"cache_size":         stats.CacheSize,
		"stale_vaults":       stats.StaleVaults,
		"all_stale":          stats.AllStale,
		"discovery_failed":   stats.DiscoveryFailed,
		"discovery_failures": stats.DiscoveryFailures,
		"discovery_degraded": stats.DiscoveryDegraded,
		"vaults_added":       stats.VaultsAdded,
		"vaults_removed":     stats.VaultsRemoved,
	})

	if stats.TimedOut || stats.AllStale || stats.DiscoveryDegraded {
		entry.Warn("registry cycle degraded")
		return
	}
	entry.Info("registry cycle published")
}
