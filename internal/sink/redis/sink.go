// Package redis publishes newly admitted trades to Redis pub/sub and a
// capped stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"liqfeed/config"
	"liqfeed/internal/models"
	"liqfeed/logger"
)

// Sink implements registry.TradeSink. A trade is published on Channel and
// appended to Stream; either may be left empty to disable it.
type Sink struct {
	rdb     *redis.Client
	channel string
	stream  string
	maxLen  int64
	log     *logger.Log
}

// New connects to Redis and verifies the connection with a ping.
func New(ctx context.Context, cfg config.RedisConfig) (*Sink, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}

	s := newSink(rdb, cfg)
	s.log.WithComponent("redis_sink").WithFields(logger.Fields{
		"addr":    cfg.Addr,
		"channel": cfg.Channel,
		"stream":  cfg.Stream,
	}).Info("connected to redis")
	return s, nil
}

func newSink(rdb *redis.Client, cfg config.RedisConfig) *Sink {
	return &Sink{
		rdb:     rdb,
		channel: cfg.Channel,
		stream:  cfg.Stream,
		maxLen:  cfg.StreamMaxLen,
		log:     logger.GetLogger(),
	}
}

func (s *Sink) Name() string { return "redis_sink" }

// PublishTrades sends the batch in a single pipeline.
func (s *Sink) PublishTrades(ctx context.Context, trades []models.TradeRecord) error {
	if len(trades) == 0 || (s.channel == "" && s.stream == "") {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, t := range trades {
		payload, err := encodeTrade(t)
		if err != nil {
			return err
		}
		if s.channel != "" {
			pipe.Publish(ctx, s.channel, payload)
		}
		if s.stream != "" {
			pipe.XAdd(ctx, streamArgs(s.stream, s.maxLen, t, payload))
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish %d trades: %w", len(trades), err)
	}
	s.log.WithComponent("redis_sink").WithFields(logger.Fields{"trades": len(trades)}).Debug("published trades")
	return nil
}

func (s *Sink) Close() error {
	return s.rdb.Close()
}

func encodeTrade(t models.TradeRecord) ([]byte, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("redis: encode trade %s: %w", t.TradeID, err)
	}
	return payload, nil
}

// streamArgs builds an XADD trimmed with MAXLEN ~ when maxLen > 0.
func streamArgs(stream string, maxLen int64, t models.TradeRecord, payload []byte) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"trade_id": t.TradeID,
			"vault":    t.Vault.String(),
			"coin":     t.Coin,
			"payload":  payload,
		},
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return args
}
