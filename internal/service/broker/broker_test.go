package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	applogger "ShortScan/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedPrices map[models.Symbol]float64

func (p fixedPrices) LastPrice(sym models.Symbol) float64 { return p[sym] }

func TestRoundPrice(t *testing.T) {
	assert.Equal(t, "102.01", roundPrice(102.005, 2).String())
	assert.Equal(t, "98", roundPrice(97.9999, 2).String())
	assert.Equal(t, "sell", side(-5))
	assert.Equal(t, "buy", side(5))
}

func TestPaperBrokerShortAndCover(t *testing.T) {
	prices := fixedPrices{"SNAP": 100}
	b := NewPaperBroker(prices, 2, applogger.Nop())
	ctx := context.Background()

	require.NoError(t, b.SubmitMarketOrder(ctx, "SNAP", -1000))
	require.NoError(t, b.SubmitStopOrder(ctx, "SNAP", 1000, 102))
	require.NoError(t, b.SubmitStopOrder(ctx, "SNAP", 1000, 98))
	assert.Equal(t, 2, b.RestingStops("SNAP"))

	pos, err := b.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, models.Position{Symbol: "SNAP", Quantity: -1000, IsShort: true}, pos[0])

	require.NoError(t, b.SubmitMarketOrder(ctx, "SNAP", 1000))
	pos, _ = b.OpenPositions(ctx)
	assert.Empty(t, pos)
	assert.Zero(t, b.RestingStops("SNAP"), "stops cancelled when flat")
	assert.Len(t, b.Fills(), 2)
}

func TestPaperBrokerStopTriggers(t *testing.T) {
	prices := fixedPrices{"ETSY": 60}
	b := NewPaperBroker(prices, 2, applogger.Nop())
	ctx := context.Background()

	require.NoError(t, b.SubmitMarketOrder(ctx, "ETSY", -500))
	require.NoError(t, b.SubmitStopOrder(ctx, "ETSY", 500, 61.2))
	require.NoError(t, b.SubmitStopOrder(ctx, "ETSY", 500, 58.8))

	b.OnPrice("ETSY", 60.5)
	assert.Equal(t, 2, b.RestingStops("ETSY"))

	b.OnPrice("ETSY", 61.3)
	pos, _ := b.OpenPositions(ctx)
	assert.Empty(t, pos)
	assert.Zero(t, b.RestingStops("ETSY"))

	fills := b.Fills()
	require.Len(t, fills, 2)
	assert.Equal(t, "stop", fills[1].Kind)
	assert.Equal(t, 500.0, fills[1].Quantity)
}

func TestPaperBrokerNeedsPrice(t *testing.T) {
	b := NewPaperBroker(fixedPrices{}, 2, applogger.Nop())
	err := b.SubmitMarketOrder(context.Background(), "NONE", -1)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

type bridgeServer struct {
	mu        sync.Mutex
	orders    []map[string]interface{}
	positions string
	status    int
}

func (s *bridgeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	switch r.URL.Path {
	case "/orders":
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.orders = append(s.orders, body)
		_, _ = w.Write([]byte(`{"order_id":"b-1","status":"accepted"}`))
	case "/positions":
		_, _ = w.Write([]byte(s.positions))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestBridge(t *testing.T, srv *bridgeServer, maxFailures uint32) *BridgeBroker {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return NewBridgeBroker(BridgeConfig{
		URL: ts.URL, APIKey: "k", Timeout: time.Second,
		MaxFailures: maxFailures, BreakerTimeout: time.Minute, PriceDecimals: 2,
	}, applogger.Nop())
}

func TestBridgeBrokerOrders(t *testing.T) {
	srv := &bridgeServer{}
	b := newTestBridge(t, srv, 3)
	ctx := context.Background()

	require.NoError(t, b.SubmitMarketOrder(ctx, "AMD", -1000))
	require.NoError(t, b.SubmitStopOrder(ctx, "AMD", 1000, 153.00000001))

	require.Len(t, srv.orders, 2)
	assert.Equal(t, "sell", srv.orders[0]["side"])
	assert.Equal(t, "market", srv.orders[0]["type"])
	assert.Equal(t, "1000", srv.orders[0]["quantity"])
	assert.Equal(t, "stop", srv.orders[1]["type"])
	assert.Equal(t, "153", srv.orders[1]["stop_price"])
	assert.NotEqual(t, srv.orders[0]["client_order_id"], srv.orders[1]["client_order_id"])
}

func TestBridgeBrokerPositions(t *testing.T) {
	srv := &bridgeServer{positions: `[{"symbol":"AMD","quantity":"-1000"},{"symbol":"AAPL","quantity":5}]`}
	b := newTestBridge(t, srv, 3)

	pos, err := b.OpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, pos, 2)
	assert.Equal(t, models.Position{Symbol: "AMD", Quantity: -1000, IsShort: true}, pos[0])
	assert.False(t, pos[1].IsShort)
}

func TestBridgeBrokerBreakerOpens(t *testing.T) {
	srv := &bridgeServer{status: http.StatusBadGateway}
	b := newTestBridge(t, srv, 2)
	ctx := context.Background()

	for range 2 {
		assert.Error(t, b.SubmitMarketOrder(ctx, "AMD", -1))
	}
	err := b.SubmitMarketOrder(ctx, "AMD", -1)
	assert.ErrorContains(t, err, "circuit breaker is open")
}
