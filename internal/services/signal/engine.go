// Package signal computes the per-symbol decline/surge signal. Everything here
// is a pure function of its inputs so evaluations can run in parallel.
package signal

import (
	"fmt"
	"math"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
)

// Params are the signal constants. Zero values are not meaningful; start from DefaultParams.
type Params struct {
	PowerFactor       float64
	VolumeWeight      float64 // A
	ScalingConstant   float64 // C
	MinDescentBasis   float64
	SurgeThreshold    float64 // Ya
	StrengthThreshold float64 // Za
	ClampElapsed      bool
	MinElapsed        time.Duration
}

func DefaultParams() Params {
	return Params{
		PowerFactor:       0.5,
		VolumeWeight:      0.3,
		ScalingConstant:   2500,
		MinDescentBasis:   10,
		SurgeThreshold:    0.5,
		StrengthThreshold: 0.5,
		ClampElapsed:      true,
		MinElapsed:        time.Second,
	}
}

// Input is everything one evaluation needs. Built fresh per symbol per cycle.
type Input struct {
	Snapshot          models.MarketSnapshot
	Aggregate         models.HistoricalAggregate
	ReferencePrice    float64
	VolumeDelta       float64
	Elapsed           time.Duration // gap between this observation and the previous one
	MarketCapBillions float64
	// NormalizedMarketCap, when > 0, is used as is (session-cached value).
	NormalizedMarketCap float64
}

// NormalizeMarketCap returns billions^power rounded to two decimals.
func NormalizeMarketCap(billions, power float64) float64 {
	if billions <= 0 {
		return 0
	}
	return round2(math.Pow(billions, power))
}

// Compute evaluates one symbol. A rejected input yields a non-candidate result
// carrying whatever was computed so far and an error wrapping
// domain.ErrDataUnavailable or domain.ErrDivisionGuard.
func Compute(in Input, p Params) (models.SignalResult, error) {
	snap := in.Snapshot
	res := models.SignalResult{
		Symbol:            snap.Symbol,
		Price:             snap.Price,
		ReferencePrice:    in.ReferencePrice,
		HistoricalVolume:  in.Aggregate.SummedVolume,
		MarketCapBillions: in.MarketCapBillions,
		VolumeDelta:       in.VolumeDelta,
	}

	switch {
	case snap.Price <= 0:
		return res, fmt.Errorf("%s price %v: %w", snap.Symbol, snap.Price, domain.ErrDataUnavailable)
	case snap.CumulativeVolume <= 0:
		return res, fmt.Errorf("%s cumulative volume %v: %w", snap.Symbol, snap.CumulativeVolume, domain.ErrDataUnavailable)
	case in.Aggregate.SummedVolume <= 0:
		return res, fmt.Errorf("%s historical volume %v: %w", snap.Symbol, in.Aggregate.SummedVolume, domain.ErrDataUnavailable)
	}

	nmc := in.NormalizedMarketCap
	if nmc <= 0 {
		nmc = NormalizeMarketCap(in.MarketCapBillions, p.PowerFactor)
	}
	res.NormalizedMarketCap = nmc
	if nmc <= 0 {
		return res, fmt.Errorf("%s normalized market cap is zero: %w", snap.Symbol, domain.ErrDivisionGuard)
	}

	elapsed := in.Elapsed
	if elapsed <= 0 {
		return res, fmt.Errorf("%s elapsed %v: %w", snap.Symbol, elapsed, domain.ErrDivisionGuard)
	}
	if p.ClampElapsed && elapsed < p.MinElapsed {
		elapsed = p.MinElapsed
	}
	res.ElapsedSeconds = elapsed.Seconds()

	if in.VolumeDelta <= 0 {
		return res, fmt.Errorf("%s volume delta %v: %w", snap.Symbol, in.VolumeDelta, domain.ErrDivisionGuard)
	}
	res.VolumePerSecond = in.VolumeDelta / res.ElapsedSeconds
	res.AnnualizedMinuteVolume = res.VolumePerSecond * 60
	res.CurrentVolumePriceProduct = res.AnnualizedMinuteVolume * snap.Price * p.VolumeWeight / 1000
	res.MinimumRequiredDecline = p.MinDescentBasis / nmc / 10000
	res.SurgeRatio = res.CurrentVolumePriceProduct / nmc

	if in.ReferencePrice <= 0 {
		return res, fmt.Errorf("%s reference price unset: %w", snap.Symbol, domain.ErrDivisionGuard)
	}
	res.BaselineVolumePriceProduct = in.ReferencePrice * in.Aggregate.SummedVolume / 1000
	res.ActualDecline = (in.ReferencePrice - snap.Price) / in.ReferencePrice
	if res.BaselineVolumePriceProduct == 0 {
		return res, fmt.Errorf("%s baseline product is zero: %w", snap.Symbol, domain.ErrDivisionGuard)
	}
	res.StrengthRatio = p.ScalingConstant * nmc * res.CurrentVolumePriceProduct / res.BaselineVolumePriceProduct

	res.IsCandidate = res.SurgeRatio > p.SurgeThreshold &&
		res.StrengthRatio > p.StrengthThreshold &&
		res.ActualDecline > res.MinimumRequiredDecline
	return res, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
