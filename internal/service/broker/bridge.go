package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"ShortScan/internal/domain/models"
	drepo "ShortScan/internal/domain/repository"
	pkghttp "ShortScan/pkg/http"
	applogger "ShortScan/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
)

// BridgeConfig configures the REST order bridge.
type BridgeConfig struct {
	URL            string
	APIKey         string
	Timeout        time.Duration
	MaxFailures    uint32
	BreakerTimeout time.Duration
	PriceDecimals  int32
}

type orderRequest struct {
	ClientOrderID string           `json:"client_order_id"`
	Symbol        string           `json:"symbol"`
	Side          string           `json:"side"`
	Type          string           `json:"type"`
	Quantity      decimal.Decimal  `json:"quantity"`
	StopPrice     *decimal.Decimal `json:"stop_price,omitempty"`
}

type orderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type positionResponse struct {
	Symbol   string          `json:"symbol"`
	Quantity decimal.Decimal `json:"quantity"`
}

// BridgeBroker submits orders to an HTTP order bridge behind a circuit breaker.
type BridgeBroker struct {
	client   *pkghttp.Client
	breaker  *gobreaker.CircuitBreaker
	decimals int32
	log      *applogger.Logger
}

func NewBridgeBroker(cfg BridgeConfig, l *applogger.Logger) *BridgeBroker {
	opts := []pkghttp.ClientOption{pkghttp.WithBaseURL(cfg.URL), pkghttp.WithTimeout(cfg.Timeout)}
	if cfg.APIKey != "" {
		opts = append(opts, pkghttp.WithHeader("Authorization", "Bearer "+cfg.APIKey))
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	st := gobreaker.Settings{
		Name:    "order-bridge",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
	}
	return &BridgeBroker{
		client:   pkghttp.NewClient(opts...),
		breaker:  gobreaker.NewCircuitBreaker(st),
		decimals: cfg.PriceDecimals,
		log:      l,
	}
}

func (b *BridgeBroker) SubmitMarketOrder(ctx context.Context, symbol models.Symbol, signedQuantity float64) error {
	return b.submit(ctx, orderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        symbol.String(),
		Side:          side(signedQuantity),
		Type:          "market",
		Quantity:      decimal.NewFromFloat(math.Abs(signedQuantity)),
	})
}

func (b *BridgeBroker) SubmitStopOrder(ctx context.Context, symbol models.Symbol, quantity, stopPrice float64) error {
	price := roundPrice(stopPrice, b.decimals)
	return b.submit(ctx, orderRequest{
		ClientOrderID: uuid.NewString(),
		Symbol:        symbol.String(),
		Side:          "buy",
		Type:          "stop",
		Quantity:      decimal.NewFromFloat(quantity),
		StopPrice:     &price,
	})
}

func (b *BridgeBroker) submit(ctx context.Context, req orderRequest) error {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		var out orderResponse
		err := b.client.SendAndParse(ctx, &pkghttp.RequestOptions{Method: "POST", URL: "/orders", Body: req}, &out)
		return out, err
	})
	if err != nil {
		return fmt.Errorf("bridge %s %s %s: %w", req.Type, req.Side, req.Symbol, err)
	}
	out := res.(orderResponse)
	b.log.Info("bridge order accepted",
		applogger.String("client_order_id", req.ClientOrderID),
		applogger.String("order_id", out.OrderID),
		applogger.String("symbol", req.Symbol),
		applogger.String("side", req.Side),
		applogger.String("type", req.Type),
		applogger.String("qty", req.Quantity.String()),
	)
	if out.Status == "rejected" {
		return fmt.Errorf("bridge %s %s %s: %w", req.Type, req.Side, req.Symbol, errOrderRejected)
	}
	return nil
}

var errOrderRejected = errors.New("order rejected")

func (b *BridgeBroker) OpenPositions(ctx context.Context) ([]models.Position, error) {
	res, err := b.breaker.Execute(func() (interface{}, error) {
		var out []positionResponse
		err := b.client.SendAndParse(ctx, &pkghttp.RequestOptions{Method: "GET", URL: "/positions"}, &out)
		return out, err
	})
	if err != nil {
		return nil, fmt.Errorf("bridge positions: %w", err)
	}
	raw := res.([]positionResponse)
	out := make([]models.Position, 0, len(raw))
	for _, p := range raw {
		q := p.Quantity.InexactFloat64()
		out = append(out, models.Position{Symbol: models.Symbol(p.Symbol), Quantity: q, IsShort: q < 0})
	}
	return out, nil
}

var _ drepo.OrderGateway = (*BridgeBroker)(nil)
