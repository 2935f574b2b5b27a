package models

import "time"

// SignalResult is recomputed every cycle and never persisted as state.
type SignalResult struct {
	Symbol                     Symbol  `json:"symbol"`
	Price                      float64 `json:"price"`
	ReferencePrice             float64 `json:"reference_price"`
	HistoricalVolume           float64 `json:"historical_volume"`
	MarketCapBillions          float64 `json:"market_cap_billions"`
	NormalizedMarketCap        float64 `json:"normalized_market_cap"`
	VolumeDelta                float64 `json:"volume_delta"`
	VolumePerSecond            float64 `json:"volume_per_second"`
	ElapsedSeconds             float64 `json:"elapsed_seconds"`
	AnnualizedMinuteVolume     float64 `json:"annualized_minute_volume"`
	CurrentVolumePriceProduct  float64 `json:"current_volume_price_product"`
	BaselineVolumePriceProduct float64 `json:"baseline_volume_price_product"`
	MinimumRequiredDecline     float64 `json:"minimum_required_decline"`
	ActualDecline              float64 `json:"actual_decline"`
	SurgeRatio                 float64 `json:"surge_ratio"`
	StrengthRatio              float64 `json:"strength_ratio"`
	IsCandidate                bool    `json:"is_candidate"`
}

// SignalRecord is the per-cycle, per-symbol observability record.
type SignalRecord struct {
	CycleID   string       `json:"cycle_id"`
	Symbol    Symbol       `json:"symbol"`
	Timestamp time.Time    `json:"timestamp"`
	Result    SignalResult `json:"result"`
	Skipped   bool         `json:"skipped"`
	Reason    string       `json:"reason,omitempty"`
}

// TradePlan is created when a candidate is selected and consumed by the sequencer.
type TradePlan struct {
	Symbol         Symbol        `json:"symbol"`
	TotalSize      float64       `json:"total_size"`
	ChunkSize      float64       `json:"chunk_size"`
	MinUnit        float64       `json:"min_unit"`
	EntryPrice     float64       `json:"entry_price"`
	StopOffsetUp   float64       `json:"stop_offset_up"`
	StopOffsetDown float64       `json:"stop_offset_down"`
	HoldDuration   time.Duration `json:"hold_duration"`
}

// Chunks splits TotalSize into entry order sizes: full chunks while the
// remainder covers one, then a final remainder if it exceeds MinUnit.
func (p TradePlan) Chunks() []float64 {
	if p.ChunkSize <= 0 || p.TotalSize <= 0 {
		return nil
	}
	var out []float64
	remaining := p.TotalSize
	for remaining >= p.ChunkSize {
		out = append(out, p.ChunkSize)
		remaining -= p.ChunkSize
	}
	if remaining > p.MinUnit {
		out = append(out, remaining)
	}
	return out
}

// TradeOutcome summarizes one pass of the trade sequencer.
type TradeOutcome struct {
	CycleID         string    `json:"cycle_id"`
	Symbol          Symbol    `json:"symbol"`
	PlannedChunks   int       `json:"planned_chunks"`
	SubmittedChunks int       `json:"submitted_chunks"`
	EnteredQuantity float64   `json:"entered_quantity"`
	ExitOrders      int       `json:"exit_orders"`
	Aborted         bool      `json:"aborted"`
	Error           string    `json:"error,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}
