package registry

import (
	"context"
	"sync"
	"time"

	liq "liqfeed/internal/channel/liq"
	"liqfeed/internal/metrics"
	"liqfeed/internal/models"
	"liqfeed/logger"
)

// TradeSink receives batches of newly admitted trades. Delivery is
// at-least-once within the dedup window.
type TradeSink interface {
	Name() string
	PublishTrades(ctx context.Context, trades []models.TradeRecord) error
}

// Fanout drains the trade channel and hands batches to every sink.
type Fanout struct {
	channels    *liq.Channels
	sinks       []TradeSink
	batchSize   int
	flushEvery  time.Duration
	reportEvery time.Duration
	log         *logger.Log

	mu    sync.Mutex
	stats map[string]*metrics.SinkStats
}

// NewFanout creates a fanout over ch. batchSize and flushEvery default to
// 100 trades and one second.
func NewFanout(ch *liq.Channels, sinks []TradeSink, batchSize int, flushEvery, reportEvery time.Duration) *Fanout {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushEvery <= 0 {
		flushEvery = time.Second
	}
	f := &Fanout{
		channels:    ch,
		sinks:       sinks,
		batchSize:   batchSize,
		flushEvery:  flushEvery,
		reportEvery: reportEvery,
		log:         logger.GetLogger(),
		stats:       make(map[string]*metrics.SinkStats, len(sinks)),
	}
	for _, s := range sinks {
		f.stats[s.Name()] = &metrics.SinkStats{}
	}
	return f
}

// Run forwards trades until ctx is cancelled or the channel is closed. The
// pending batch is flushed before returning.
func (f *Fanout) Run(ctx context.Context) error {
	flush := time.NewTicker(f.flushEvery)
	defer flush.Stop()

	var report <-chan time.Time
	if f.reportEvery > 0 {
		t := time.NewTicker(f.reportEvery)
		defer t.Stop()
		report = t.C
	}

	batch := make([]models.TradeRecord, 0, f.batchSize)
	send := func(sendCtx context.Context) {
		if len(batch) == 0 {
			return
		}
		f.deliver(sendCtx, batch)
		batch = make([]models.TradeRecord, 0, f.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			f.drainInto(&batch)
			// sinks get a short grace period for the final batch
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			send(final)
			cancel()
			f.report()
			return nil
		case t, ok := <-f.channels.Trades:
			if !ok {
				send(ctx)
				f.report()
				return nil
			}
			batch = append(batch, t)
			if len(batch) >= f.batchSize {
				send(ctx)
			}
		case <-flush.C:
			send(ctx)
		case <-report:
			f.report()
		}
	}
}

func (f *Fanout) drainInto(batch *[]models.TradeRecord) {
	for {
		select {
		case t, ok := <-f.channels.Trades:
			if !ok {
				return
			}
			*batch = append(*batch, t)
		default:
			return
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, batch []models.TradeRecord) {
	for _, s := range f.sinks {
		err := s.PublishTrades(ctx, batch)

		f.mu.Lock()
		st := f.stats[s.Name()]
		if err != nil {
			st.ErrorsCount++
		} else {
			st.BatchesPublished++
			st.TradesPublished += int64(len(batch))
		}
		f.mu.Unlock()

		if err != nil {
			f.log.WithComponent("registry").WithFields(logger.Fields{
				"sink":   s.Name(),
				"trades": len(batch),
			}).WithError(err).Warn("trade sink publish failed")
			for _, t := range batch {
				metrics.EmitDropMetric(f.log, metrics.DropMetricSink, t.Vault.String(), t.Coin, s.Name())
			}
		}
	}
}

// Stats returns a copy of the delivery counters of the named sink.
func (f *Fanout) Stats(name string) (metrics.SinkStats, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.stats[name]
	if !ok {
		return metrics.SinkStats{}, false
	}
	return *st, true
}

func (f *Fanout) report() {
	for _, s := range f.sinks {
		st, _ := f.Stats(s.Name())
		st.BufferLen = len(f.channels.Trades)
		st.BufferCap = cap(f.channels.Trades)
		metrics.ReportSink(f.log, s.Name(), st)
	}
}

// LogSink writes every trade as a structured log line.
type LogSink struct {
	log *logger.Log
}

func NewLogSink(log *logger.Log) *LogSink {
	if log == nil {
		log = logger.GetLogger()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log_sink" }

func (s *LogSink) PublishTrades(_ context.Context, trades []models.TradeRecord) error {
	for _, t := range trades {
		s.log.WithComponent("log_sink").WithFields(logger.Fields{
			"trade_id":  t.TradeID,
			"vault":     t.Vault,
			"coin":      t.Coin,
			"side":      t.Side,
			"price":     t.Price,
			"size":      t.Size,
			"notional":  t.Notional(),
			"timestamp": t.Timestamp,
		}).Info("liquidation")
	}
	return nil
}
