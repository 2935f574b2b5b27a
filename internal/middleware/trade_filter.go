package middleware

import (
	"strings"
	"time"

	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
)

// Applier is the minimal sink the filter forwards to.
type Applier interface {
	Apply(t *models.Trade) error
}

// TradeFilter sits between a market feed and the quote book. It normalizes
// symbols and drops prints for symbols outside the universe or older than
// maxAge. Dropped prints are not errors.
type TradeFilter struct {
	next    Applier
	allowed map[string]struct{}
	maxAge  time.Duration
	metrics domrepo.Metrics
	now     func() time.Time
}

type FilterOption func(*TradeFilter)

// WithSymbols restricts forwarding to symbols. An empty list allows all.
func WithSymbols(symbols []string) FilterOption {
	return func(f *TradeFilter) {
		if len(symbols) == 0 {
			return
		}
		f.allowed = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			f.allowed[strings.ToUpper(strings.TrimSpace(s))] = struct{}{}
		}
	}
}

// WithMaxAge drops prints older than d.
func WithMaxAge(d time.Duration) FilterOption {
	return func(f *TradeFilter) { f.maxAge = d }
}

func NewTradeFilter(next Applier, metrics domrepo.Metrics, opts ...FilterOption) *TradeFilter {
	f := &TradeFilter{next: next, metrics: metrics, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *TradeFilter) Apply(t *models.Trade) error {
	if t == nil {
		return nil
	}
	sym := strings.ToUpper(strings.TrimSpace(t.Symbol))
	if f.allowed != nil {
		if _, ok := f.allowed[sym]; !ok {
			return nil
		}
	}
	if f.maxAge > 0 && f.now().Sub(time.UnixMilli(t.Timestamp)) > f.maxAge {
		f.metrics.RecordError("stale_trade")
		return nil
	}
	if sym != t.Symbol {
		cp := *t
		cp.Symbol = sym
		t = &cp
	}
	return f.next.Apply(t)
}
