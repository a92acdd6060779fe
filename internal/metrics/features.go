package metrics

import (
	"strings"
	"sync/atomic"

	"liqfeed/config"
)

// Feature names a group of metrics that can be switched off in configuration.
type Feature int

const (
	FeatureCycle Feature = iota
	FeatureChannelSize
)

var (
	cycleEnabled       atomic.Bool
	channelSizeEnabled atomic.Bool
)

func init() {
	cycleEnabled.Store(true)
	channelSizeEnabled.Store(true)
}

// Configure applies the metric toggles from configuration.
func Configure(cfg config.MetricsConfig) {
	cycleEnabled.Store(cfg.Cycle)
	channelSizeEnabled.Store(cfg.ChannelSize)
}

func IsFeatureEnabled(f Feature) bool {
	switch f {
	case FeatureCycle:
		return cycleEnabled.Load()
	case FeatureChannelSize:
		return channelSizeEnabled.Load()
	default:
		return true
	}
}

// featureForMetric maps a metric name onto its toggle. Metrics that belong
// to no group are always emitted.
func featureForMetric(name string) (Feature, bool) {
	switch {
	case strings.HasSuffix(name, "_buffer_length"):
		return FeatureChannelSize, true
	case strings.HasPrefix(name, "cycle_"), strings.HasPrefix(name, "vaults_"), strings.HasPrefix(name, "discovery_"):
		return FeatureCycle, true
	default:
		return 0, false
	}
}

func metricEnabled(name string) bool {
	f, ok := featureForMetric(name)
	return !ok || IsFeatureEnabled(f)
}
