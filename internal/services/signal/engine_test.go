package signal

import (
	"errors"
	"testing"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workedInput() Input {
	return Input{
		Snapshot: models.MarketSnapshot{
			Symbol:           "SNAP",
			Price:            95,
			CumulativeVolume: 1_000_000,
			Timestamp:        time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC),
		},
		Aggregate:         models.HistoricalAggregate{Symbol: "SNAP", WindowMinutes: 60, SummedVolume: 60_000},
		ReferencePrice:    100,
		VolumeDelta:       600,
		Elapsed:           time.Minute,
		MarketCapBillions: 4,
	}
}

func TestComputeWorkedExample(t *testing.T) {
	res, err := Compute(workedInput(), DefaultParams())
	require.NoError(t, err)

	assert.Equal(t, 2.0, res.NormalizedMarketCap)
	assert.InDelta(t, 10.0, res.VolumePerSecond, 1e-9)
	assert.InDelta(t, 60.0, res.ElapsedSeconds, 1e-9)
	assert.InDelta(t, 600.0, res.AnnualizedMinuteVolume, 1e-9)
	assert.InDelta(t, 17.1, res.CurrentVolumePriceProduct, 1e-9)
	assert.InDelta(t, 6000.0, res.BaselineVolumePriceProduct, 1e-9)
	assert.InDelta(t, 0.0005, res.MinimumRequiredDecline, 1e-12)
	assert.InDelta(t, 0.05, res.ActualDecline, 1e-12)
	assert.InDelta(t, 8.55, res.SurgeRatio, 1e-9)
	assert.InDelta(t, 14.25, res.StrengthRatio, 1e-9)
	assert.True(t, res.IsCandidate)
}

func TestComputeRejectsMissingData(t *testing.T) {
	cases := map[string]func(*Input){
		"zero price":       func(in *Input) { in.Snapshot.Price = 0 },
		"negative price":   func(in *Input) { in.Snapshot.Price = -1 },
		"zero cumulative":  func(in *Input) { in.Snapshot.CumulativeVolume = 0 },
		"zero history":     func(in *Input) { in.Aggregate.SummedVolume = 0 },
		"negative history": func(in *Input) { in.Aggregate.SummedVolume = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := workedInput()
			mutate(&in)
			res, err := Compute(in, DefaultParams())
			assert.ErrorIs(t, err, domain.ErrDataUnavailable)
			assert.False(t, res.IsCandidate)
		})
	}
}

func TestComputeDivisionGuards(t *testing.T) {
	cases := map[string]func(*Input){
		"unset reference":     func(in *Input) { in.ReferencePrice = 0 },
		"zero elapsed":        func(in *Input) { in.Elapsed = 0 },
		"negative elapsed":    func(in *Input) { in.Elapsed = -time.Second },
		"zero market cap":     func(in *Input) { in.MarketCapBillions = 0 },
		"tiny market cap":     func(in *Input) { in.MarketCapBillions = 0.00001 },
		"no new volume":       func(in *Input) { in.VolumeDelta = 0 },
		"cumulative rollback": func(in *Input) { in.VolumeDelta = -100 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := workedInput()
			mutate(&in)
			res, err := Compute(in, DefaultParams())
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrDivisionGuard), "got %v", err)
			assert.False(t, res.IsCandidate)
		})
	}
}

func TestComputeNeverCandidateWithoutReference(t *testing.T) {
	in := workedInput()
	in.ReferencePrice = 0
	in.Snapshot.Price = 1 // would be a huge decline against any reference
	res, _ := Compute(in, DefaultParams())
	assert.False(t, res.IsCandidate)
	assert.Zero(t, res.ActualDecline)
}

func TestComputeClampsShortElapsed(t *testing.T) {
	in := workedInput()
	in.Elapsed = 200 * time.Millisecond

	res, err := Compute(in, DefaultParams())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, res.ElapsedSeconds, 1e-9)
	assert.InDelta(t, 600.0, res.VolumePerSecond, 1e-9)

	p := DefaultParams()
	p.ClampElapsed = false
	res, err = Compute(in, p)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, res.ElapsedSeconds, 1e-9)
	assert.InDelta(t, 3000.0, res.VolumePerSecond, 1e-9)
}

func TestComputeThresholdsAreStrict(t *testing.T) {
	in := workedInput()
	// a price rise is never a decline
	in.Snapshot.Price = 101
	res, err := Compute(in, DefaultParams())
	require.NoError(t, err)
	assert.False(t, res.IsCandidate)

	// lift the surge threshold exactly to the computed ratio
	in = workedInput()
	p := DefaultParams()
	base, _ := Compute(in, p)
	p.SurgeThreshold = base.SurgeRatio
	res, _ = Compute(in, p)
	assert.False(t, res.IsCandidate)
}

func TestComputeUsesCachedNormalizedMarketCap(t *testing.T) {
	in := workedInput()
	in.MarketCapBillions = 0
	in.NormalizedMarketCap = 2
	res, err := Compute(in, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.NormalizedMarketCap)
	assert.True(t, res.IsCandidate)
}

func TestComputeIsDeterministic(t *testing.T) {
	in := workedInput()
	first, err := Compute(in, DefaultParams())
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := Compute(in, DefaultParams())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNormalizeMarketCap(t *testing.T) {
	assert.Equal(t, 2.0, NormalizeMarketCap(4, 0.5))
	assert.Equal(t, 2.24, NormalizeMarketCap(5, 0.5))
	assert.Equal(t, 0.0, NormalizeMarketCap(0, 0.5))
	assert.Equal(t, 0.0, NormalizeMarketCap(-3, 0.5))

	// monotonic non-decreasing in market cap
	prev := 0.0
	for b := 0.5; b <= 10; b += 0.25 {
		v := NormalizeMarketCap(b, 0.5)
		assert.GreaterOrEqual(t, v, prev, "billions=%v", b)
		prev = v
	}
}
