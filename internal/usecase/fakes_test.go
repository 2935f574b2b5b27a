package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
)

var errBroker = errors.New("broker rejected order")

type marketOrder struct {
	Symbol models.Symbol
	Qty    float64
}

type stopOrder struct {
	Symbol models.Symbol
	Qty    float64
	Price  float64
}

// fakeGateway keeps net positions from accepted market orders.
type fakeGateway struct {
	mu           sync.Mutex
	market       []marketOrder
	stops        []stopOrder
	positions    map[models.Symbol]float64
	failMarketAt int // 1-based index of the market order to reject; 0 never
	failStops    bool
	positionsErr error
	onStop       func()
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{positions: make(map[models.Symbol]float64)}
}

func (g *fakeGateway) SubmitMarketOrder(_ context.Context, sym models.Symbol, qty float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.market = append(g.market, marketOrder{Symbol: sym, Qty: qty})
	if g.failMarketAt > 0 && len(g.market) == g.failMarketAt {
		return errBroker
	}
	g.positions[sym] += qty
	return nil
}

func (g *fakeGateway) SubmitStopOrder(_ context.Context, sym models.Symbol, qty, price float64) error {
	g.mu.Lock()
	g.stops = append(g.stops, stopOrder{Symbol: sym, Qty: qty, Price: price})
	fail, hook := g.failStops, g.onStop
	g.mu.Unlock()
	if hook != nil {
		hook()
	}
	if fail {
		return errBroker
	}
	return nil
}

func (g *fakeGateway) OpenPositions(context.Context) ([]models.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.positionsErr != nil {
		return nil, g.positionsErr
	}
	var out []models.Position
	for sym, q := range g.positions {
		if q != 0 {
			out = append(out, models.Position{Symbol: sym, Quantity: q, IsShort: q < 0})
		}
	}
	return out, nil
}

func (g *fakeGateway) marketOrders() []marketOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]marketOrder(nil), g.market...)
}

func (g *fakeGateway) stopOrders() []stopOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]stopOrder(nil), g.stops...)
}

// fakeMarket serves fixed quotes and history; missing entries are unavailable.
type fakeMarket struct {
	mu           sync.Mutex
	quotes       map[models.Symbol]models.MarketSnapshot
	history      map[models.Symbol]float64
	historyCalls map[models.Symbol]int
	block        chan struct{} // when set, HistoricalVolumeSum waits on it or ctx
	quoteFn      func(sym models.Symbol, call int) (models.MarketSnapshot, bool)
	quoteCalls   map[models.Symbol]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		quotes:       make(map[models.Symbol]models.MarketSnapshot),
		history:      make(map[models.Symbol]float64),
		historyCalls: make(map[models.Symbol]int),
		quoteCalls:   make(map[models.Symbol]int),
	}
}

func (m *fakeMarket) set(sym models.Symbol, price, cumulative float64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[sym] = models.MarketSnapshot{Symbol: sym, Price: price, CumulativeVolume: cumulative, Timestamp: at}
}

func (m *fakeMarket) CurrentQuote(_ context.Context, sym models.Symbol) (models.MarketSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quoteCalls[sym]++
	q, ok := m.quotes[sym]
	if m.quoteFn != nil {
		q, ok = m.quoteFn(sym, m.quoteCalls[sym])
	}
	if !ok {
		return models.MarketSnapshot{}, fmt.Errorf("quote %s: %w", sym, domain.ErrDataUnavailable)
	}
	return q, nil
}

func (m *fakeMarket) HistoricalVolumeSum(ctx context.Context, sym models.Symbol, _ int) (float64, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCalls[sym]++
	v, ok := m.history[sym]
	if !ok {
		return 0, fmt.Errorf("history %s: %w", sym, domain.ErrDataUnavailable)
	}
	return v, nil
}

func (m *fakeMarket) calls(sym models.Symbol) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyCalls[sym]
}

type fakeFundamentals map[models.Symbol]float64

func (f fakeFundamentals) MarketCap(_ context.Context, sym models.Symbol) (float64, error) {
	v, ok := f[sym]
	if !ok {
		return 0, fmt.Errorf("market cap %s: %w", sym, domain.ErrDataUnavailable)
	}
	return v, nil
}

type fakeUniverse []models.Symbol

func (u fakeUniverse) Symbols(context.Context) ([]models.Symbol, error) { return u, nil }

type captureSink struct {
	mu      sync.Mutex
	reports []*models.CycleReport
	err     error
}

func (s *captureSink) WriteReport(_ context.Context, r *models.CycleReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return s.err
}

func (s *captureSink) all() []*models.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.CycleReport(nil), s.reports...)
}
