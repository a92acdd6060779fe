package liq

import (
	"context"
	"testing"
	"time"

	"liqfeed/internal/models"
)

func TestChannels_SendTrade(t *testing.T) {
	ch := NewChannels(1)
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	trade := models.TradeRecord{TradeID: "t1", Vault: "0xa", Coin: "BTC", Side: models.SideSell}
	if !ch.SendTrade(ctx, trade) {
		t.Fatalf("expected send to succeed")
	}
	if stats := ch.GetStats(); stats.TradesSent != 1 {
		t.Fatalf("expected sent counter to be 1, got %d", stats.TradesSent)
	}

	// buffer full should increment dropped counter
	if ch.SendTrade(ctx, trade) {
		t.Fatalf("expected send to fail due to full buffer")
	}
	if stats := ch.GetStats(); stats.TradesDropped != 1 {
		t.Fatalf("expected dropped counter to be 1, got %d", stats.TradesDropped)
	}

	if got := <-ch.Trades; got.TradeID != "t1" {
		t.Fatalf("unexpected trade %+v", got)
	}
}

func TestChannels_CloseIsIdempotent(t *testing.T) {
	ch := NewChannels(1)
	ch.Close()
	ch.Close()
	if _, ok := <-ch.Trades; ok {
		t.Fatalf("expected closed channel")
	}
}
