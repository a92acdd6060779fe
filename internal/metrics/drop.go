package metrics

import "liqfeed/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricTrades records new trades dropped because the trade buffer was full.
	DropMetricTrades DropMetric = "trades_dropped"
	// DropMetricSink records trades a sink failed to deliver.
	DropMetricSink DropMetric = "sink_trades_dropped"
)

// EmitDropMetric emits a dropped-message counter of one. Empty vault, coin and
// stage values are left out of the fields.
func EmitDropMetric(log *logger.Log, metric DropMetric, vault, coin, stage string) {
	fields := logger.Fields{}
	if vault != "" {
		fields["vault"] = vault
	}
	if coin != "" {
		fields["coin"] = coin
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
