package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
	"ShortScan/internal/services/signal"
	"ShortScan/pkg/cache"
	applogger "ShortScan/pkg/logger"
	"ShortScan/pkg/util"
)

const sessionKeyPrefix = "session"

// MarketCapValue is the session-cached market cap and its normalized form.
type MarketCapValue struct {
	Billions   float64 `json:"billions"`
	Normalized float64 `json:"normalized"`
}

// SessionCache fetches historical aggregates and market caps at most once per
// symbol per session. Values live in a cache.Service keyed by session date and
// expire at the session end; a per-key lock keeps concurrent evaluations of the
// same symbol from fetching twice.
type SessionCache struct {
	store         cache.Service
	market        domrepo.MarketDataGateway
	fundamentals  domrepo.FundamentalsProvider
	metrics       domrepo.Metrics
	log           *applogger.Logger
	locks         *util.KeyedMutex
	loc           *time.Location
	windowMinutes int
	power         float64
}

func NewSessionCache(store cache.Service, market domrepo.MarketDataGateway, fundamentals domrepo.FundamentalsProvider,
	windowMinutes int, power float64, loc *time.Location, l *applogger.Logger, m domrepo.Metrics) *SessionCache {
	if loc == nil {
		loc = time.UTC
	}
	return &SessionCache{
		store:         store,
		market:        market,
		fundamentals:  fundamentals,
		metrics:       m,
		log:           l,
		locks:         util.NewKeyedMutex(),
		loc:           loc,
		windowMinutes: windowMinutes,
		power:         power,
	}
}

// Aggregate returns the symbol's historical volume aggregate for the session of now.
func (c *SessionCache) Aggregate(ctx context.Context, sym models.Symbol, now time.Time) (models.HistoricalAggregate, error) {
	key := c.key(now, "agg", sym)
	unlock := c.locks.Lock(key)
	defer unlock()

	var agg models.HistoricalAggregate
	if c.lookup(ctx, key, &agg) {
		return agg, nil
	}

	start := time.Now()
	sum, err := c.market.HistoricalVolumeSum(ctx, sym, c.windowMinutes)
	c.metrics.RecordLatency("history_fetch", time.Since(start).Seconds())
	if err != nil {
		return models.HistoricalAggregate{}, fmt.Errorf("historical volume %s: %w", sym, err)
	}
	agg = models.HistoricalAggregate{
		Symbol:        sym,
		WindowMinutes: c.windowMinutes,
		SummedVolume:  sum,
		FetchedAt:     now,
	}
	c.remember(ctx, key, agg, now)
	return agg, nil
}

// MarketCap returns market cap in billions and its normalized form for the session of now.
func (c *SessionCache) MarketCap(ctx context.Context, sym models.Symbol, now time.Time) (MarketCapValue, error) {
	key := c.key(now, "mcap", sym)
	unlock := c.locks.Lock(key)
	defer unlock()

	var v MarketCapValue
	if c.lookup(ctx, key, &v) {
		return v, nil
	}

	start := time.Now()
	usd, err := c.fundamentals.MarketCap(ctx, sym)
	c.metrics.RecordLatency("fundamentals_fetch", time.Since(start).Seconds())
	if err != nil {
		return MarketCapValue{}, fmt.Errorf("market cap %s: %w", sym, err)
	}
	v.Billions = usd / 1e9
	v.Normalized = signal.NormalizeMarketCap(v.Billions, c.power)
	if v.Normalized > 0 {
		c.remember(ctx, key, v, now)
	}
	return v, nil
}

// Reset drops every session entry. Called at session rollover.
func (c *SessionCache) Reset(ctx context.Context) error {
	if err := c.store.DeleteByPattern(ctx, cache.BuildPattern(sessionKeyPrefix+":")); err != nil {
		return fmt.Errorf("reset session cache: %w", err)
	}
	return nil
}

func (c *SessionCache) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := c.store.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		c.metrics.RecordError("session_cache")
		c.log.Warn("session cache read failed", applogger.String("key", key), applogger.Error(err))
	}
	return false
}

func (c *SessionCache) remember(ctx context.Context, key string, v interface{}, now time.Time) {
	if err := c.store.Set(ctx, key, v, c.ttl(now)); err != nil {
		c.metrics.RecordError("session_cache")
		c.log.Warn("session cache write failed", applogger.String("key", key), applogger.Error(err))
	}
}

func (c *SessionCache) key(now time.Time, kind string, sym models.Symbol) string {
	return cache.GenerateKeyWithParams(sessionKeyPrefix, util.SessionKey(now, c.loc), kind, sym)
}

func (c *SessionCache) ttl(now time.Time) time.Duration {
	ttl := util.SessionEnd(now, c.loc).Sub(now)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return ttl
}
