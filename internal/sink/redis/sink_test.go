package redis

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"liqfeed/config"
	"liqfeed/internal/models"
)

func TestEncodeTrade(t *testing.T) {
	trade := models.TradeRecord{
		TradeID:   "42",
		Vault:     "0xa",
		Coin:      "BTC",
		Side:      models.SideSell,
		Price:     60000,
		Size:      0.1,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	payload, err := encodeTrade(trade)
	if err != nil {
		t.Fatalf("encodeTrade: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["trade_id"] != "42" || decoded["vault"] != "0xa" || decoded["side"] != "SELL" {
		t.Fatalf("unexpected payload %s", payload)
	}
	if _, ok := decoded["liquidation"]; ok {
		t.Fatalf("empty liquidation block should be omitted: %s", payload)
	}
}

func TestStreamArgs(t *testing.T) {
	trade := models.TradeRecord{TradeID: "1", Vault: "0xa", Coin: "ETH"}

	args := streamArgs("liqfeed:trades:stream", 500, trade, []byte("{}"))
	if args.MaxLen != 500 || !args.Approx || args.Stream != "liqfeed:trades:stream" {
		t.Fatalf("unexpected args %+v", args)
	}
	values := args.Values.(map[string]interface{})
	if values["trade_id"] != "1" || values["coin"] != "ETH" {
		t.Fatalf("unexpected values %+v", values)
	}

	if args := streamArgs("s", 0, trade, nil); args.MaxLen != 0 || args.Approx {
		t.Fatalf("untrimmed stream should not set MAXLEN: %+v", args)
	}
}

func TestNewFailsWithoutServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := New(ctx, config.RedisConfig{Addr: addr, Channel: "c"}); err == nil {
		t.Fatalf("expected ping error")
	}
}

func TestPublishEmptyBatchIsNoop(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()

	s := newSink(rdb, config.RedisConfig{Channel: "c", Stream: "s"})
	if err := s.PublishTrades(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if s.Name() != "redis_sink" {
		t.Fatalf("name = %s", s.Name())
	}
}
