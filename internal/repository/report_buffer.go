package repository

import (
	"context"
	"sync"

	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
)

// ReportBuffer keeps the most recent cycle reports and trade outcomes in memory
// for the HTTP API.
type ReportBuffer struct {
	mu      sync.RWMutex
	size    int
	reports []*models.CycleReport // oldest first
	trades  []models.TradeOutcome
}

func NewReportBuffer(size int) *ReportBuffer {
	if size < 1 {
		size = 1
	}
	return &ReportBuffer{size: size}
}

func (b *ReportBuffer) WriteReport(_ context.Context, r *models.CycleReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reports = appendBounded(b.reports, r, b.size)
	return nil
}

func (b *ReportBuffer) WriteTrade(_ context.Context, o *models.TradeOutcome) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trades = appendBounded(b.trades, *o, b.size)
	return nil
}

// Recent returns up to limit reports, newest first.
func (b *ReportBuffer) Recent(limit int) []*models.CycleReport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := min(limit, len(b.reports))
	out := make([]*models.CycleReport, 0, n)
	for i := len(b.reports) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.reports[i])
	}
	return out
}

// Latest returns the newest report, if any.
func (b *ReportBuffer) Latest() (*models.CycleReport, bool) {
	if r := b.Recent(1); len(r) == 1 {
		return r[0], true
	}
	return nil, false
}

// SignalHistory returns up to limit records for symbol, newest first.
func (b *ReportBuffer) SignalHistory(symbol models.Symbol, limit int) []models.SignalRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.SignalRecord
	for i := len(b.reports) - 1; i >= 0 && len(out) < limit; i-- {
		if rec, ok := b.reports[i].Record(symbol); ok {
			rec.CycleID = b.reports[i].CycleID
			out = append(out, rec)
		}
	}
	return out
}

// Trades returns buffered trade outcomes, newest first.
func (b *ReportBuffer) Trades() []models.TradeOutcome {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.TradeOutcome, 0, len(b.trades))
	for i := len(b.trades) - 1; i >= 0; i-- {
		out = append(out, b.trades[i])
	}
	return out
}

func appendBounded[T any](s []T, v T, size int) []T {
	s = append(s, v)
	if len(s) > size {
		s = append(s[:0:0], s[len(s)-size:]...)
	}
	return s
}

var (
	_ domrepo.ReportSink = (*ReportBuffer)(nil)
	_ domrepo.TradeSink  = (*ReportBuffer)(nil)
)
