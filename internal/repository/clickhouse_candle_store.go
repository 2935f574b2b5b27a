package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	pkgch "ShortScan/pkg/clickhouse"
	applogger "ShortScan/pkg/logger"
)

const candleInsertChunk = 2000

// CHCandleStore reads and writes one-minute candles in ClickHouse.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
	now   func() time.Time
}

func NewCHCandleStore(ch *pkgch.Client, l *applogger.Logger) *CHCandleStore {
	return &CHCandleStore{
		db:    ch.DB(),
		table: ch.Database() + ".rt_candles_1m",
		l:     l,
		now:   time.Now,
	}
}

// HistoricalVolumeSum sums the volume of the latest windowMinutes complete
// minute buckets before the current minute. Fewer stored buckets than the
// window is reported as unavailable.
func (s *CHCandleStore) HistoricalVolumeSum(ctx context.Context, symbol models.Symbol, windowMinutes int) (float64, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT count(), sum(vol)
        FROM (
            SELECT vol FROM %s FINAL
            WHERE symbol = ? AND bucket < ?
            ORDER BY bucket DESC
            LIMIT ?
        )`, s.table)

	var (
		n   uint64
		sum float64
	)
	cutoff := s.now().Truncate(time.Minute)
	if err := s.db.QueryRowContext(ctx, q, string(symbol), cutoff, windowMinutes).Scan(&n, &sum); err != nil {
		s.l.Error("clickhouse volume_sum query error",
			applogger.String("table", s.table),
			applogger.String("symbol", symbol.String()),
			applogger.Error(err),
		)
		return 0, fmt.Errorf("volume sum %s: %w", symbol, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("volume sum %s: no candles: %w", symbol, domain.ErrDataUnavailable)
	}
	if int(n) < windowMinutes {
		return 0, fmt.Errorf("volume sum %s: %d of %d buckets: %w", symbol, n, windowMinutes, domain.ErrDataUnavailable)
	}
	s.l.Debug("clickhouse volume_sum ok",
		applogger.String("symbol", symbol.String()),
		applogger.Int("buckets", int(n)),
		applogger.Float64("sum", sum),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return sum, nil
}

// WriteCandles inserts candles in multi-row batches.
func (s *CHCandleStore) WriteCandles(ctx context.Context, candles []models.Candle) error {
	for from := 0; from < len(candles); from += candleInsertChunk {
		to := min(from+candleInsertChunk, len(candles))

		values := make([]string, 0, to-from)
		args := make([]interface{}, 0, (to-from)*7)
		for _, c := range candles[from:to] {
			if c.Symbol == "" || c.Bucket.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, c.Bucket, string(c.Symbol), c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (bucket, symbol, open, high, low, close, vol) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert candles: %w", err)
		}
	}
	return nil
}
