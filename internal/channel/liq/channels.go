package liq

import (
	"context"
	"sync"

	"liqfeed/internal/models"
	"liqfeed/logger"
)

type ChannelStats struct {
	TradesSent    int64
	TradesDropped int64
}

// Channels carries newly admitted trades from the registry to the sinks.
// Sends never block; a full buffer drops the trade and counts it.
type Channels struct {
	Trades chan models.TradeRecord

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewChannels(tradeBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Trades: make(chan models.TradeRecord, tradeBufferSize),
		log:    log,
	}

	log.WithComponent("trade_channel").WithFields(logger.Fields{
		"trade_buffer_size": tradeBufferSize,
	}).Info("trade channel initialized")

	return c
}

// Close closes the trade channel. Senders must have stopped.
func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		close(c.Trades)
		c.log.WithComponent("trade_channel").Info("trade channel closed")
	})
}

func (c *Channels) IncrementTradesSent() {
	c.statsMutex.Lock()
	c.stats.TradesSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementTradesDropped() {
	c.statsMutex.Lock()
	c.stats.TradesDropped++
	c.statsMutex.Unlock()
}

// SendTrade offers one trade to the buffer and reports whether it was queued.
func (c *Channels) SendTrade(ctx context.Context, trade models.TradeRecord) bool {
	select {
	case c.Trades <- trade:
		c.IncrementTradesSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementTradesDropped()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
