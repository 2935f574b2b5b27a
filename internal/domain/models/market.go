package models

import "time"

// Symbol is an opaque tradable-security identifier.
type Symbol string

func (s Symbol) String() string { return string(s) }

// MarketSnapshot is the quote observed for a symbol in one cycle.
type MarketSnapshot struct {
	Symbol           Symbol
	Price            float64
	CumulativeVolume float64
	Timestamp        time.Time
}

// HistoricalAggregate is the summed minute volume over a lookback window.
// Fetched once per symbol per session and never mutated afterwards.
type HistoricalAggregate struct {
	Symbol        Symbol    `json:"symbol"`
	WindowMinutes int       `json:"window_minutes"`
	SummedVolume  float64   `json:"summed_volume"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// BaselineEntry holds per-symbol reference price and volume bookkeeping.
type BaselineEntry struct {
	Symbol               Symbol    `json:"symbol"`
	ReferencePrice       float64   `json:"reference_price"`
	ReferenceSetAt       time.Time `json:"reference_set_at"`
	LastCumulativeVolume float64   `json:"last_cumulative_volume"`
	LastUpdated          time.Time `json:"last_updated"`
}

// HasReference reports whether the write-once reference price was captured.
func (b BaselineEntry) HasReference() bool { return b.ReferencePrice > 0 }

// Trade is a single print from a market feed.
type Trade struct {
	Symbol    string
	Timestamp int64 // unix millis
	Price     float64
	Volume    float64
}

// Position is an open holding reported by the order gateway.
type Position struct {
	Symbol   Symbol  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	IsShort  bool    `json:"is_short"`
}

// Candle is a one-minute OHLCV bar.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Symbol Symbol    `json:"symbol"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
