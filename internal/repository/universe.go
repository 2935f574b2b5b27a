package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
	applogger "ShortScan/pkg/logger"
	"ShortScan/pkg/util"
)

// StaticUniverse is a fixed symbol list.
type StaticUniverse struct {
	symbols []models.Symbol
}

// NewStaticUniverse normalizes symbols to upper case and drops duplicates.
func NewStaticUniverse(symbols []string) *StaticUniverse {
	seen := make(map[models.Symbol]struct{}, len(symbols))
	out := make([]models.Symbol, 0, len(symbols))
	for _, s := range symbols {
		sym := models.Symbol(strings.ToUpper(strings.TrimSpace(s)))
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return &StaticUniverse{symbols: out}
}

func (u *StaticUniverse) Symbols(context.Context) ([]models.Symbol, error) {
	return append([]models.Symbol(nil), u.symbols...), nil
}

// UniverseFilter holds the coarse (price, dollar volume) and fine (market cap) rules.
type UniverseFilter struct {
	MinPrice             float64
	MinDollarVolume      float64
	MinMarketCapBillions float64
	MaxMarketCapBillions float64
	MaxSymbols           int
}

// FilteredUniverse narrows a base universe on every call. Price and dollar
// volume come from intraday quotes and are re-read each time; market caps are
// looked up once per symbol per session. Symbols are ordered by dollar volume,
// highest first.
type FilteredUniverse struct {
	base   domrepo.UniverseProvider
	quotes quoteSource
	caps   domrepo.FundamentalsProvider
	filter UniverseFilter
	loc    *time.Location
	log    *applogger.Logger
	now    func() time.Time

	mu       sync.Mutex
	session  string
	capsB    map[models.Symbol]float64
	selected []models.Symbol
}

func NewFilteredUniverse(base domrepo.UniverseProvider, quotes quoteSource, caps domrepo.FundamentalsProvider,
	filter UniverseFilter, loc *time.Location, l *applogger.Logger) *FilteredUniverse {
	if loc == nil {
		loc = time.UTC
	}
	return &FilteredUniverse{
		base:   base,
		quotes: quotes,
		caps:   caps,
		filter: filter,
		loc:    loc,
		log:    l,
		now:    time.Now,
		capsB:  make(map[models.Symbol]float64),
	}
}

func (u *FilteredUniverse) Symbols(ctx context.Context) ([]models.Symbol, error) {
	session := util.SessionKey(u.now(), u.loc)

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session != session {
		u.session = session
		u.capsB = make(map[models.Symbol]float64)
		u.selected = nil
	}

	base, err := u.base.Symbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("base universe: %w", err)
	}
	selected, err := u.apply(ctx, base)
	if err != nil {
		return nil, err
	}
	if !slices.Equal(selected, u.selected) {
		u.log.Info("universe selected",
			applogger.String("session", session),
			applogger.Int("base", len(base)),
			applogger.Int("selected", len(selected)),
		)
	}
	u.selected = selected
	return append([]models.Symbol(nil), selected...), nil
}

type ranked struct {
	sym          models.Symbol
	dollarVolume float64
}

func (u *FilteredUniverse) apply(ctx context.Context, base []models.Symbol) ([]models.Symbol, error) {
	var keep []ranked
	for _, sym := range base {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q, err := u.quotes.CurrentQuote(ctx, sym)
		if err != nil {
			continue
		}
		dv := q.Price * q.CumulativeVolume
		if q.Price <= u.filter.MinPrice || dv <= u.filter.MinDollarVolume {
			continue
		}
		b, ok := u.marketCap(ctx, sym)
		if !ok || b < u.filter.MinMarketCapBillions || b > u.filter.MaxMarketCapBillions {
			continue
		}
		keep = append(keep, ranked{sym: sym, dollarVolume: dv})
	}

	sort.SliceStable(keep, func(i, j int) bool { return keep[i].dollarVolume > keep[j].dollarVolume })
	if u.filter.MaxSymbols > 0 && len(keep) > u.filter.MaxSymbols {
		keep = keep[:u.filter.MaxSymbols]
	}
	out := make([]models.Symbol, len(keep))
	for i, r := range keep {
		out[i] = r.sym
	}
	return out, nil
}

// marketCap returns billions. Failed lookups are not remembered.
func (u *FilteredUniverse) marketCap(ctx context.Context, sym models.Symbol) (float64, bool) {
	if b, ok := u.capsB[sym]; ok {
		return b, true
	}
	usd, err := u.caps.MarketCap(ctx, sym)
	if err != nil {
		u.log.Debug("universe market cap unavailable", applogger.String("symbol", sym.String()), applogger.Error(err))
		return 0, false
	}
	b := usd / 1e9
	u.capsB[sym] = b
	return b, true
}

// StaticFundamentals serves market caps from a configured table in billions.
type StaticFundamentals struct {
	billions map[models.Symbol]float64
}

func NewStaticFundamentals(billions map[string]float64) *StaticFundamentals {
	m := make(map[models.Symbol]float64, len(billions))
	for k, v := range billions {
		m[models.Symbol(strings.ToUpper(k))] = v
	}
	return &StaticFundamentals{billions: m}
}

func (f *StaticFundamentals) MarketCap(_ context.Context, symbol models.Symbol) (float64, error) {
	b, ok := f.billions[symbol]
	if !ok || b <= 0 {
		return 0, fmt.Errorf("market cap %s: %w", symbol, domain.ErrDataUnavailable)
	}
	return b * 1e9, nil
}

var (
	_ domrepo.UniverseProvider     = (*StaticUniverse)(nil)
	_ domrepo.UniverseProvider     = (*FilteredUniverse)(nil)
	_ domrepo.FundamentalsProvider = (*StaticFundamentals)(nil)
)
