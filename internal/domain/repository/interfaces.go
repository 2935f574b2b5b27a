package repository

import (
	"context"
	"time"

	"ShortScan/internal/domain/models"
)

// MarketStream delivers raw trades from a market feed.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Trade, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// UniverseProvider yields the day's tradable symbol set. Read-only to the core.
type UniverseProvider interface {
	Symbols(ctx context.Context) ([]models.Symbol, error)
}

// MarketDataGateway returns quotes and historical volume.
// "No data" is reported as domain.ErrDataUnavailable.
type MarketDataGateway interface {
	CurrentQuote(ctx context.Context, symbol models.Symbol) (models.MarketSnapshot, error)
	HistoricalVolumeSum(ctx context.Context, symbol models.Symbol, windowMinutes int) (float64, error)
}

// FundamentalsProvider returns market capitalization in USD.
type FundamentalsProvider interface {
	MarketCap(ctx context.Context, symbol models.Symbol) (float64, error)
}

// OrderGateway submits orders to a brokerage. Quantities are signed:
// negative sells/shorts, positive buys/covers.
type OrderGateway interface {
	SubmitMarketOrder(ctx context.Context, symbol models.Symbol, signedQuantity float64) error
	SubmitStopOrder(ctx context.Context, symbol models.Symbol, quantity, stopPrice float64) error
	OpenPositions(ctx context.Context) ([]models.Position, error)
}

// ReportSink receives the structured per-cycle report.
type ReportSink interface {
	WriteReport(ctx context.Context, report *models.CycleReport) error
}

// Metrics records scanner observability signals.
type Metrics interface {
	RecordCycle(decision string, duration time.Duration)
	RecordSymbolOutcome(outcome string)
	RecordCandidates(n int)
	RecordOrder(kind, result string)
	RecordSequencerState(state string)
	RecordTrade(result string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}

// TradeSink receives the outcome of each trade sequence.
type TradeSink interface {
	WriteTrade(ctx context.Context, outcome *models.TradeOutcome) error
}
