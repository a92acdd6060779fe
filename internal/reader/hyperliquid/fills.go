package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"liqfeed/internal/models"
	"liqfeed/logger"
)

// fill is one entry of a userFills response. Numeric fields arrive either
// as JSON strings or numbers.
type fill struct {
	Coin        string           `json:"coin"`
	Px          json.Number      `json:"px"`
	Sz          json.Number      `json:"sz"`
	Side        string           `json:"side"`
	Time        json.Number      `json:"time"`
	Hash        string           `json:"hash"`
	Tid         json.Number      `json:"tid"`
	Liquidation *fillLiquidation `json:"liquidation"`
}

type fillLiquidation struct {
	LiquidatedUser string      `json:"liquidatedUser"`
	MarkPx         json.Number `json:"markPx"`
	Method         string      `json:"method"`
}

// Poll fetches the recent fills of one vault and returns them most recent
// first. Entries that cannot be normalised are skipped; they never fail the
// poll. Poll does not retry.
func (c *Client) Poll(ctx context.Context, vault models.VaultAddress) ([]models.TradeRecord, error) {
	raw, err := c.info(ctx, infoRequest{Type: "userFills", User: vault.String()})
	if err != nil {
		return nil, &PollError{Kind: pollKind(err), Vault: vault, Err: err}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.failures.Add(1)
		return nil, &PollError{Kind: PollMalformed, Vault: vault, Err: fmt.Errorf("unexpected fills shape: %w", err)}
	}

	log := c.log.WithComponent("fill_poller").WithFields(logger.Fields{"vault": vault})
	records := make([]models.TradeRecord, 0, len(entries))
	for i, e := range entries {
		rec, err := normalizeFill(vault, e)
		if err != nil {
			c.skipped.Add(1)
			log.WithFields(logger.Fields{"index": i}).WithError(err).Debug("skipping malformed fill")
			continue
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool { return records[i].Newer(records[j]) })
	return records, nil
}

func pollKind(err error) PollErrorKind {
	switch failureOf(err) {
	case failureTimeout:
		return PollTimeout
	case failureDecode:
		return PollMalformed
	default:
		return PollUnreachable
	}
}

func normalizeFill(vault models.VaultAddress, raw json.RawMessage) (models.TradeRecord, error) {
	var f fill
	if err := json.Unmarshal(raw, &f); err != nil {
		return models.TradeRecord{}, fmt.Errorf("decode fill: %w", err)
	}

	id := f.Tid.String()
	if id == "" {
		id = strings.TrimSpace(f.Hash)
	}
	if id == "" {
		return models.TradeRecord{}, fmt.Errorf("fill has neither tid nor hash")
	}

	side, ok := models.ParseSide(f.Side)
	if !ok {
		return models.TradeRecord{}, fmt.Errorf("unknown side %q", f.Side)
	}
	price, err := f.Px.Float64()
	if err != nil || price <= 0 {
		return models.TradeRecord{}, fmt.Errorf("invalid px %q", f.Px)
	}
	size, err := f.Sz.Float64()
	if err != nil || size <= 0 {
		return models.TradeRecord{}, fmt.Errorf("invalid sz %q", f.Sz)
	}
	ms, err := f.Time.Int64()
	if err != nil || ms <= 0 {
		return models.TradeRecord{}, fmt.Errorf("invalid time %q", f.Time)
	}

	rec := models.TradeRecord{
		TradeID:   id,
		Vault:     vault,
		Coin:      strings.ToUpper(strings.TrimSpace(f.Coin)),
		Side:      side,
		Price:     price,
		Size:      size,
		Timestamp: time.UnixMilli(ms).UTC(),
		Hash:      f.Hash,
	}
	if f.Liquidation != nil {
		mark, _ := f.Liquidation.MarkPx.Float64()
		rec.Liquidation = &models.LiquidationInfo{
			LiquidatedUser: models.NormalizeVault(f.Liquidation.LiquidatedUser).String(),
			MarkPrice:      mark,
			Method:         f.Liquidation.Method,
		}
	}
	return rec, nil
}
