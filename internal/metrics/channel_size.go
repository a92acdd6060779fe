package metrics

import (
	"context"
	"time"

	"liqfeed/internal/channel"
	"liqfeed/logger"
)

// StartChannelSizeMetrics emits occupancy and drop totals for the trade
// buffer every interval until ctx is cancelled. A non-positive interval
// means one second.
func StartChannelSizeMetrics(ctx context.Context, channels *channel.Channels, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) {
		return
	}
	if channels == nil || channels.Liq == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				trades := channels.Liq.Trades
				stats := channels.Liq.GetStats()
				EmitMetric(log, component, "trades_buffer_length", len(trades), "gauge", logger.Fields{
					"buffer":   "trades",
					"capacity": cap(trades),
				})
				EmitMetric(log, component, "trades_sent_total", stats.TradesSent, "counter", logger.Fields{"buffer": "trades"})
				EmitMetric(log, component, "trades_dropped_total", stats.TradesDropped, "counter", logger.Fields{"buffer": "trades"})
			}
		}
	}()
}
