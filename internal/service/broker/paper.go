// Package broker holds OrderGateway implementations.
package broker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	drepo "ShortScan/internal/domain/repository"
	applogger "ShortScan/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type priceSource interface {
	LastPrice(symbol models.Symbol) float64
}

// Fill is one simulated execution.
type Fill struct {
	OrderID  string        `json:"order_id"`
	Symbol   models.Symbol `json:"symbol"`
	Quantity float64       `json:"quantity"`
	Price    float64       `json:"price"`
	Kind     string        `json:"kind"`
	At       time.Time     `json:"at"`
}

type restingStop struct {
	id        string
	qty       float64
	price     decimal.Decimal
	triggerUp bool
}

// PaperBroker fills market orders at the latest traded price and keeps buy
// stops resting until the price crosses them. Resting stops for a symbol are
// cancelled once its position is flat.
type PaperBroker struct {
	prices   priceSource
	decimals int32
	log      *applogger.Logger
	now      func() time.Time

	mu        sync.Mutex
	positions map[models.Symbol]float64
	stops     map[models.Symbol][]restingStop
	fills     []Fill
}

func NewPaperBroker(prices priceSource, decimals int32, l *applogger.Logger) *PaperBroker {
	return &PaperBroker{
		prices:    prices,
		decimals:  decimals,
		log:       l,
		now:       time.Now,
		positions: make(map[models.Symbol]float64),
		stops:     make(map[models.Symbol][]restingStop),
	}
}

func (b *PaperBroker) SubmitMarketOrder(ctx context.Context, symbol models.Symbol, signedQuantity float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if signedQuantity == 0 {
		return fmt.Errorf("paper market %s: zero quantity", symbol)
	}
	price := b.prices.LastPrice(symbol)
	if price <= 0 {
		return fmt.Errorf("paper market %s: no price: %w", symbol, domain.ErrDataUnavailable)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.fill(symbol, signedQuantity, price, "market")
	b.log.Info("paper fill",
		applogger.String("symbol", symbol.String()),
		applogger.String("side", side(signedQuantity)),
		applogger.Float64("qty", math.Abs(signedQuantity)),
		applogger.Float64("price", price),
	)
	return nil
}

func (b *PaperBroker) SubmitStopOrder(ctx context.Context, symbol models.Symbol, quantity, stopPrice float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if quantity <= 0 || stopPrice <= 0 {
		return fmt.Errorf("paper stop %s: qty %v price %v", symbol, quantity, stopPrice)
	}
	ref := b.prices.LastPrice(symbol)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stops[symbol] = append(b.stops[symbol], restingStop{
		id:        uuid.NewString(),
		qty:       quantity,
		price:     roundPrice(stopPrice, b.decimals),
		triggerUp: stopPrice >= ref,
	})
	return nil
}

func (b *PaperBroker) OpenPositions(ctx context.Context) ([]models.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Position, 0, len(b.positions))
	for sym, q := range b.positions {
		out = append(out, models.Position{Symbol: sym, Quantity: q, IsShort: q < 0})
	}
	return out, nil
}

// OnPrice triggers resting stops crossed by price.
func (b *PaperBroker) OnPrice(symbol models.Symbol, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	stops := b.stops[symbol]
	if len(stops) == 0 {
		return
	}
	p := decimal.NewFromFloat(price)
	remaining := stops[:0]
	for _, s := range stops {
		crossed := (s.triggerUp && p.GreaterThanOrEqual(s.price)) || (!s.triggerUp && p.LessThanOrEqual(s.price))
		short := -b.positions[symbol]
		if !crossed || short <= 0 {
			remaining = append(remaining, s)
			continue
		}
		b.fill(symbol, math.Min(s.qty, short), price, "stop")
		b.log.Info("paper stop triggered",
			applogger.String("symbol", symbol.String()),
			applogger.String("stop_id", s.id),
			applogger.Float64("stop_price", s.price.InexactFloat64()),
			applogger.Float64("price", price),
		)
	}
	if b.positions[symbol] == 0 {
		delete(b.stops, symbol)
		return
	}
	b.stops[symbol] = remaining
}

// Fills returns a copy of every simulated execution.
func (b *PaperBroker) Fills() []Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Fill(nil), b.fills...)
}

// RestingStops counts open stops for symbol.
func (b *PaperBroker) RestingStops(symbol models.Symbol) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.stops[symbol])
}

// fill must be called with mu held.
func (b *PaperBroker) fill(symbol models.Symbol, qty, price float64, kind string) {
	b.fills = append(b.fills, Fill{
		OrderID: uuid.NewString(), Symbol: symbol, Quantity: qty, Price: price, Kind: kind, At: b.now(),
	})
	b.positions[symbol] += qty
	if b.positions[symbol] == 0 {
		delete(b.positions, symbol)
		delete(b.stops, symbol)
	}
}

var _ drepo.OrderGateway = (*PaperBroker)(nil)
