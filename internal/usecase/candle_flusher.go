package usecase

import (
	"context"
	"time"

	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
	applogger "ShortScan/pkg/logger"
)

// CandleSource yields closed candles awaiting persistence.
type CandleSource interface {
	DrainClosed() []models.Candle
}

// CandleWriter persists candles.
type CandleWriter interface {
	WriteCandles(ctx context.Context, candles []models.Candle) error
}

// CandleFlusher periodically moves closed candles from a source to a writer.
// Failed batches are retried on the next tick, bounded by maxRetained.
type CandleFlusher struct {
	src         CandleSource
	dst         CandleWriter
	interval    time.Duration
	maxRetained int
	metrics     domrepo.Metrics
	log         *applogger.Logger
	retry       []models.Candle
}

func NewCandleFlusher(src CandleSource, dst CandleWriter, interval time.Duration, metrics domrepo.Metrics, l *applogger.Logger) *CandleFlusher {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &CandleFlusher{src: src, dst: dst, interval: interval, maxRetained: 50000, metrics: metrics, log: l}
}

// Run flushes every interval until ctx is done, then flushes once more.
func (f *CandleFlusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			f.Flush(final)
			cancel()
			return
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush writes everything pending and reports how many candles were written.
func (f *CandleFlusher) Flush(ctx context.Context) int {
	batch := append(f.retry, f.src.DrainClosed()...)
	f.retry = nil
	if len(batch) == 0 {
		return 0
	}

	start := time.Now()
	if err := f.dst.WriteCandles(ctx, batch); err != nil {
		f.metrics.RecordError("candle_flush")
		f.log.Error("candle flush failed", applogger.Int("candles", len(batch)), applogger.Error(err))
		if len(batch) > f.maxRetained {
			batch = batch[len(batch)-f.maxRetained:]
		}
		f.retry = batch
		return 0
	}
	f.metrics.RecordLatency("candle_flush", time.Since(start).Seconds())
	return len(batch)
}
