package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
	"ShortScan/internal/services/signal"
	"ShortScan/pkg/cache"
	applogger "ShortScan/pkg/logger"
	"ShortScan/pkg/metrics"
	"ShortScan/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decliningQuotes yields a quote a minute apart per call: the first at 100,
// later ones at 95 with 600k shares traded in between.
func decliningQuotes(sym models.Symbol, call int) (models.MarketSnapshot, bool) {
	price := 95.0
	if call == 1 {
		price = 100
	}
	return models.MarketSnapshot{
		Symbol:           sym,
		Price:            price,
		CumulativeVolume: 10000 + float64(call-1)*600000,
		Timestamp:        cycleStart.Add(time.Duration(call-1) * time.Minute),
	}, true
}

type tradeCapture struct {
	mu       sync.Mutex
	outcomes []models.TradeOutcome
}

func (c *tradeCapture) WriteTrade(_ context.Context, o *models.TradeOutcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, *o)
	return nil
}

func (c *tradeCapture) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outcomes)
}

type schedulerFixture struct {
	*cycleFixture
	trades    *tradeCapture
	scheduler *ScanScheduler
}

func newSchedulerFixture(t *testing.T, tradeCfg TradeConfig, cfg SchedulerConfig, universe fakeUniverse) *schedulerFixture {
	t.Helper()
	f := newCycleFixture(t, universe, true)
	for _, sym := range universe {
		f.seed(sym)
	}
	f.market.quoteFn = decliningQuotes

	store := cache.NewMemoryCache(cache.WithMemoryCleanup(0))
	t.Cleanup(func() { store.Close() })
	params := signal.DefaultParams()
	f.sequencer = newTestSequencer(f.gateway, tradeCfg)
	f.cycle = NewScanCycle(universe, f.market, NewBaselineRegistry(),
		NewSessionCache(store, f.market, f.caps, 60, params.PowerFactor, time.UTC, applogger.Nop(), metrics.Nop{}),
		f.sequencer, []domrepo.ReportSink{f.sink}, params,
		CycleConfig{Workers: 2, ReferenceTime: util.TimeOfDay{Hour: 11, Minute: 30}, Location: time.UTC, TradeEnabled: true},
		applogger.Nop(), metrics.Nop{})

	trades := &tradeCapture{}
	return &schedulerFixture{
		cycleFixture: f,
		trades:       trades,
		scheduler:    NewScanScheduler(f.cycle, f.sequencer, cfg, []domrepo.TradeSink{trades}, applogger.Nop(), metrics.Nop{}),
	}
}

func TestSchedulerStopsAtBudget(t *testing.T) {
	f := newSchedulerFixture(t, fastTradeConfig(),
		SchedulerConfig{Cadence: 5 * time.Millisecond, RunBudget: 40 * time.Millisecond}, fakeUniverse{})

	err := f.scheduler.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrBudgetExceeded)

	st := f.scheduler.Stats()
	assert.GreaterOrEqual(t, st.CyclesRun, 2)
	assert.Equal(t, models.DecisionNone, st.LastDecision)
	assert.False(t, st.Busy)
}

func TestSchedulerBudgetMeasuredOnClock(t *testing.T) {
	f := newSchedulerFixture(t, fastTradeConfig(),
		SchedulerConfig{Cadence: 5 * time.Millisecond, RunBudget: time.Hour}, fakeUniverse{})
	var mu sync.Mutex
	clock := cycleStart
	f.scheduler.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(40 * time.Minute)
		return clock
	}

	err := f.scheduler.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrBudgetExceeded)
	assert.Equal(t, 1, f.scheduler.Stats().CyclesRun, "budget is checked before the second cycle")
}

func TestSchedulerStopAfterTrade(t *testing.T) {
	f := newSchedulerFixture(t, fastTradeConfig(),
		SchedulerConfig{Cadence: 5 * time.Millisecond, RunBudget: 5 * time.Second, StopAfterTrade: true}, fakeUniverse{"SNAP"})

	require.NoError(t, f.scheduler.Run(context.Background()))

	st := f.scheduler.Stats()
	assert.Equal(t, 1, st.Trades)
	require.NotNil(t, st.LastTrade)
	assert.Equal(t, models.Symbol("SNAP"), st.LastTrade.Symbol)
	assert.Equal(t, 1000.0, st.LastTrade.EnteredQuantity)
	assert.Equal(t, "idle", st.SequencerState)
	assert.Equal(t, 1, f.trades.len(), "outcome published")

	orders := f.gateway.marketOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, -1000.0, orders[0].Qty)
	assert.Equal(t, 1000.0, orders[1].Qty)
}

func TestSchedulerKeepsScanningWhileBusy(t *testing.T) {
	tradeCfg := fastTradeConfig()
	tradeCfg.HoldDuration = 150 * time.Millisecond
	f := newSchedulerFixture(t, tradeCfg,
		SchedulerConfig{Cadence: 10 * time.Millisecond, RunBudget: 100 * time.Millisecond}, fakeUniverse{"SNAP"})

	err := f.scheduler.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrBudgetExceeded)

	var busy int
	for _, r := range f.sink.all() {
		if r.Decision == models.DecisionBusy {
			busy++
		}
	}
	assert.Positive(t, busy, "cycles during the hold report busy")
	assert.Equal(t, 1, f.scheduler.Stats().Trades, "trade finished before Run returned")
	assert.Len(t, f.gateway.marketOrders(), 2, "one entry and one exit")
}

func TestSchedulerShutdownWaitsForExit(t *testing.T) {
	tradeCfg := fastTradeConfig()
	tradeCfg.HoldDuration = time.Hour
	f := newSchedulerFixture(t, tradeCfg,
		SchedulerConfig{Cadence: 5 * time.Millisecond, RunBudget: time.Hour}, fakeUniverse{"SNAP"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.scheduler.Run(ctx) }()

	require.Eventually(t, func() bool {
		return f.sequencer.State() == StateHolding
	}, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	orders := f.gateway.marketOrders()
	require.Len(t, orders, 2)
	assert.Equal(t, 1000.0, orders[1].Qty, "short covered on shutdown")
}
