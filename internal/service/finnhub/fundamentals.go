package finnhub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	drepo "ShortScan/internal/domain/repository"
	"ShortScan/internal/service/ratelimit"
	"ShortScan/pkg/cache"
	pkghttp "ShortScan/pkg/http"
	applogger "ShortScan/pkg/logger"
)

const restLimiterKey = "finnhub_rest"

type profile struct {
	Ticker               string  `json:"ticker"`
	MarketCapitalization float64 `json:"marketCapitalization"` // millions USD
}

// Fundamentals reads market capitalization from the Finnhub company profile
// endpoint. Responses are cached for ttl and requests are rate limited.
type Fundamentals struct {
	client  *pkghttp.Client
	limiter *ratelimit.Limiter
	cache   cache.Service
	ttl     time.Duration
	log     *applogger.Logger
}

func NewFundamentals(client *pkghttp.Client, limiter *ratelimit.Limiter, c cache.Service, ttl time.Duration, l *applogger.Logger) *Fundamentals {
	return &Fundamentals{client: client, limiter: limiter, cache: c, ttl: ttl, log: l}
}

// NewRESTClient builds the HTTP client for the Finnhub REST API.
func NewRESTClient(baseURL, apiKey string, timeout time.Duration) *pkghttp.Client {
	return pkghttp.NewClient(
		pkghttp.WithBaseURL(baseURL),
		pkghttp.WithHeader("X-Finnhub-Token", apiKey),
		pkghttp.WithTimeout(timeout),
	)
}

// MarketCap returns the symbol's market capitalization in USD.
func (f *Fundamentals) MarketCap(ctx context.Context, symbol models.Symbol) (float64, error) {
	key := cache.GenerateKeyWithParams("fundamentals", "mcap", symbol)
	var usd float64
	if err := f.cache.Get(ctx, key, &usd); err == nil {
		return usd, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		f.log.Warn("fundamentals cache read failed", applogger.String("symbol", symbol.String()), applogger.Error(err))
	}

	if err := f.limiter.Wait(ctx, restLimiterKey); err != nil {
		return 0, fmt.Errorf("profile %s rate limit: %w", symbol, err)
	}

	var p profile
	err := f.client.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:      "GET",
		URL:         "/stock/profile2",
		QueryParams: map[string][]string{"symbol": {symbol.String()}},
	}, &p)
	if err != nil {
		var se *pkghttp.StatusError
		if errors.As(err, &se) && se.StatusCode == 404 {
			return 0, fmt.Errorf("profile %s: %w", symbol, domain.ErrDataUnavailable)
		}
		return 0, fmt.Errorf("profile %s: %w", symbol, err)
	}
	if p.MarketCapitalization <= 0 {
		return 0, fmt.Errorf("profile %s has no market cap: %w", symbol, domain.ErrDataUnavailable)
	}

	usd = p.MarketCapitalization * 1e6
	if err := f.cache.Set(ctx, key, usd, f.ttl); err != nil {
		f.log.Warn("fundamentals cache write failed", applogger.String("symbol", symbol.String()), applogger.Error(err))
	}
	return usd, nil
}

var _ drepo.FundamentalsProvider = (*Fundamentals)(nil)
