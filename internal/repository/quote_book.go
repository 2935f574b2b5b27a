package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	"ShortScan/pkg/util"
)

const maxPendingCandles = 50000

type bookEntry struct {
	session string
	last    models.MarketSnapshot
	candles []models.Candle // ascending; the last one may still be open
}

// QuoteBook aggregates raw trades into the latest quote, the session's
// cumulative volume and one-minute candles per symbol. It serves as the
// in-memory MarketDataGateway and as the source for candle persistence.
type QuoteBook struct {
	mu          sync.RWMutex
	loc         *time.Location
	keepMinutes int
	entries     map[models.Symbol]*bookEntry
	pending     []models.Candle
	persist     bool
	listeners   []func(models.Symbol, float64)
}

// NewQuoteBook keeps keepMinutes closed candles per symbol. When persist is set
// closed candles are also queued for DrainClosed.
func NewQuoteBook(loc *time.Location, keepMinutes int, persist bool) *QuoteBook {
	if loc == nil {
		loc = time.UTC
	}
	if keepMinutes < 1 {
		keepMinutes = 60
	}
	return &QuoteBook{
		loc:         loc,
		keepMinutes: keepMinutes,
		entries:     make(map[models.Symbol]*bookEntry),
		persist:     persist,
	}
}

// OnPrice registers fn to be called with every applied trade price.
func (b *QuoteBook) OnPrice(fn func(models.Symbol, float64)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Apply folds one trade into the book. Trades from a new session restart the
// cumulative volume and candle history.
func (b *QuoteBook) Apply(t *models.Trade) error {
	if t == nil || t.Symbol == "" {
		return fmt.Errorf("apply trade: empty trade")
	}
	if t.Price <= 0 || t.Volume < 0 {
		return fmt.Errorf("apply trade %s: price %v volume %v", t.Symbol, t.Price, t.Volume)
	}
	sym := models.Symbol(t.Symbol)
	ts := time.UnixMilli(t.Timestamp)
	session := util.SessionKey(ts, b.loc)

	b.mu.Lock()
	e, ok := b.entries[sym]
	if !ok || e.session < session {
		e = &bookEntry{session: session, last: models.MarketSnapshot{Symbol: sym}}
		b.entries[sym] = e
	} else if e.session > session {
		b.mu.Unlock()
		return nil
	}

	e.last.CumulativeVolume += t.Volume
	if !ts.Before(e.last.Timestamp) {
		e.last.Price = t.Price
		e.last.Timestamp = ts
	}
	b.addToCandle(e, sym, ts, t.Price, t.Volume)
	listeners := b.listeners
	b.mu.Unlock()

	for _, fn := range listeners {
		fn(sym, t.Price)
	}
	return nil
}

func (b *QuoteBook) addToCandle(e *bookEntry, sym models.Symbol, ts time.Time, price, vol float64) {
	bucket := ts.Truncate(time.Minute)
	n := len(e.candles)
	if n > 0 {
		cur := &e.candles[n-1]
		switch {
		case bucket.Equal(cur.Bucket):
			cur.High = max(cur.High, price)
			cur.Low = min(cur.Low, price)
			cur.Close = price
			cur.Volume += vol
			return
		case bucket.Before(cur.Bucket):
			// late print for a closed minute: volume only
			for i := n - 1; i >= 0; i-- {
				if e.candles[i].Bucket.Equal(bucket) {
					e.candles[i].Volume += vol
					break
				}
			}
			return
		}
		if b.persist && len(b.pending) < maxPendingCandles {
			b.pending = append(b.pending, *cur)
		}
	}

	e.candles = append(e.candles, models.Candle{
		Bucket: bucket, Symbol: sym,
		Open: price, High: price, Low: price, Close: price, Volume: vol,
	})
	if extra := len(e.candles) - (b.keepMinutes + 1); extra > 0 {
		e.candles = append(e.candles[:0:0], e.candles[extra:]...)
	}
}

// CurrentQuote returns the latest quote for symbol.
func (b *QuoteBook) CurrentQuote(_ context.Context, symbol models.Symbol) (models.MarketSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[symbol]
	if !ok || e.last.Price <= 0 {
		return models.MarketSnapshot{}, fmt.Errorf("quote %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return e.last, nil
}

// HistoricalVolumeSum sums the volume of the latest windowMinutes closed candles.
// Until the session has that many closed candles the window is incomplete and
// the history is reported unavailable.
func (b *QuoteBook) HistoricalVolumeSum(_ context.Context, symbol models.Symbol, windowMinutes int) (float64, error) {
	if windowMinutes < 1 {
		return 0, fmt.Errorf("history %s: window %d: %w", symbol, windowMinutes, domain.ErrDataUnavailable)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[symbol]
	if !ok || len(e.candles) < 2 {
		return 0, fmt.Errorf("history %s: %w", symbol, domain.ErrDataUnavailable)
	}
	closed := e.candles[:len(e.candles)-1]
	if len(closed) < windowMinutes {
		return 0, fmt.Errorf("history %s: %d of %d minutes: %w", symbol, len(closed), windowMinutes, domain.ErrDataUnavailable)
	}
	closed = closed[len(closed)-windowMinutes:]
	var sum float64
	for _, c := range closed {
		sum += c.Volume
	}
	return sum, nil
}

// LastPrice returns the latest trade price, or 0.
func (b *QuoteBook) LastPrice(symbol models.Symbol) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if e, ok := b.entries[symbol]; ok {
		return e.last.Price
	}
	return 0
}

// DrainClosed returns and clears the queue of closed candles.
func (b *QuoteBook) DrainClosed() []models.Candle {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

// Symbols lists every symbol with a quote.
func (b *QuoteBook) Symbols() []models.Symbol {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Symbol, 0, len(b.entries))
	for sym := range b.entries {
		out = append(out, sym)
	}
	return out
}
