package metrics

import "liqfeed/logger"

// SinkStats holds delivery counters for a trade sink.
type SinkStats struct {
	BatchesPublished int64
	TradesPublished  int64
	ErrorsCount      int64
	BufferLen        int
	BufferCap        int
}

// ReportSink emits delivery metrics for a sink under its component name.
func ReportSink(log *logger.Log, component string, stats SinkStats) {
	if log == nil {
		log = logger.GetLogger()
	}
	l := log.WithComponent(component)

	errorRate := float64(0)
	if stats.BatchesPublished+stats.ErrorsCount > 0 {
		errorRate = float64(stats.ErrorsCount) / float64(stats.BatchesPublished+stats.ErrorsCount)
	}

	EmitMetric(log, component, "sink_batches_published", stats.BatchesPublished, "counter", logger.Fields{"unit": "count"})
	EmitMetric(log, component, "sink_trades_published", stats.TradesPublished, "counter", logger.Fields{"unit": "count"})
	EmitMetric(log, component, "sink_errors", stats.ErrorsCount, "counter", logger.Fields{"unit": "count"})
	EmitMetric(log, component, "sink_error_rate", errorRate*100, "gauge", logger.Fields{"unit": "percent"})

	entry := l.WithFields(logger.Fields{
		"batches_published": stats.BatchesPublished,
		"trades_published":  stats.TradesPublished,
		"errors_count":      stats.ErrorsCount,
		"error_rate":        errorRate,
		"buffer_len":        stats.BufferLen,
		"buffer_cap":        stats.BufferCap,
	})

	if stats.ErrorsCount > 0 {
		entry.Warn(component + " metrics")
		return
	}
	entry.Info(component + " metrics")
}
