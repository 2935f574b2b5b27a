package repository

import (
	"context"

	"ShortScan/internal/domain/models"
)

type quoteSource interface {
	CurrentQuote(ctx context.Context, symbol models.Symbol) (models.MarketSnapshot, error)
}

type historySource interface {
	HistoricalVolumeSum(ctx context.Context, symbol models.Symbol, windowMinutes int) (float64, error)
}

// MarketData serves quotes and history from separate backends.
type MarketData struct {
	quotes  quoteSource
	history historySource
}

func NewMarketData(quotes quoteSource, history historySource) *MarketData {
	return &MarketData{quotes: quotes, history: history}
}

func (m *MarketData) CurrentQuote(ctx context.Context, symbol models.Symbol) (models.MarketSnapshot, error) {
	return m.quotes.CurrentQuote(ctx, symbol)
}

func (m *MarketData) HistoricalVolumeSum(ctx context.Context, symbol models.Symbol, windowMinutes int) (float64, error) {
	return m.history.HistoricalVolumeSum(ctx, symbol, windowMinutes)
}
