package models

import (
	"strings"
	"time"
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// GENERAL ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// VaultAddress identifies one liquidation vault on the venue. Addresses are
// compared in their normalised (lower case, trimmed) form.
type VaultAddress string

// NormalizeVault trims and lower-cases a raw address.
func NormalizeVault(raw string) VaultAddress {
	return VaultAddress(strings.ToLower(strings.TrimSpace(raw)))
}

func (v VaultAddress) String() string {
	return string(v)
}

// Side is the taker direction of a liquidation fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide maps venue side codes ("B"/"A", "buy"/"sell") onto Side.
func ParseSide(raw string) (Side, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "B", "BUY", "BID":
		return SideBuy, true
	case "A", "S", "SELL", "ASK":
		return SideSell, true
	default:
		return "", false
	}
}

// LiquidationInfo carries the optional liquidation block attached to a fill.
type LiquidationInfo struct {
	LiquidatedUser string  `json:"liquidated_user,omitempty"`
	MarkPrice      float64 `json:"mark_price,omitempty"`
	Method         string  `json:"method,omitempty"`
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// TRADES ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// TradeRecord is one normalised liquidation fill. TradeID is assigned by the
// venue and never changes; it is the dedup key across vaults and cycles.
type TradeRecord struct {
	TradeID     string           `json:"trade_id"`
	Vault       VaultAddress     `json:"vault"`
	Coin        string           `json:"coin"`
	Side        Side             `json:"side"`
	Price       float64          `json:"price"`
	Size        float64          `json:"size"`
	Timestamp   time.Time        `json:"timestamp"`
	Hash        string           `json:"hash,omitempty"`
	Liquidation *LiquidationInfo `json:"liquidation,omitempty"`
}

// Notional returns price * size.
func (t TradeRecord) Notional() float64 {
	return t.Price * t.Size
}

// Newer reports whether t sorts before o in most-recent-first order:
// timestamp descending, then trade id ascending.
func (t TradeRecord) Newer(o TradeRecord) bool {
	if !t.Timestamp.Equal(o.Timestamp) {
		return t.Timestamp.After(o.Timestamp)
	}
	return t.TradeID < o.TradeID
}
