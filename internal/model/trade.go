package model

import "time"

// Trade is the canonical trade shape every feed adapter normalizes into.
// TakerIsSeller=true means the aggressor sold into resting bids.
type Trade struct {
	Price         float64 `json:"price"`
	Quantity      float64 `json:"quantity"`
	TakerIsSeller bool    `json:"taker_is_seller"`
	TimestampMs   int64   `json:"timestamp_ms"`
}

// Time converts the trade timestamp to a time.Time.
func (t Trade) Time() time.Time {
	return time.UnixMilli(t.TimestampMs)
}

// NotionalUSD is the traded value assuming a USD quoted market.
func (t Trade) NotionalUSD() float64 {
	return t.Price * t.Quantity
}

// Liquidation is a forced-close event. Events are folded into a decaying
// accumulator rather than stored individually; the price tags the most recent
// bruise level surfaced by the engine.
type Liquidation struct {
	NotionalUSD float64 `json:"notional_usd"`
	Price       float64 `json:"price"`
	TimestampMs int64   `json:"timestamp_ms"`
}
