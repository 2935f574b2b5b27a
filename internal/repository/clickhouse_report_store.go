package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
	pkgch "ShortScan/pkg/clickhouse"
)

// CHReportStore persists cycle decisions and per-symbol signal records.
type CHReportStore struct {
	db       *sql.DB
	database string
}

func NewCHReportStore(ch *pkgch.Client) *CHReportStore {
	return &CHReportStore{db: ch.DB(), database: ch.Database()}
}

func (s *CHReportStore) WriteReport(ctx context.Context, r *models.CycleReport) error {
	candidates := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		candidates[i] = string(c)
	}
	q := fmt.Sprintf(`INSERT INTO %s.cycle_decisions
        (cycle_id, session, started_at, duration_ms, evaluated, skipped, candidates, decision, selected)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.database)
	if _, err := s.db.ExecContext(ctx, q,
		r.CycleID, r.Session, r.StartedAt, r.Duration.Milliseconds(),
		uint32(r.Evaluated), uint32(r.Skipped), candidates, string(r.Decision), string(r.Selected),
	); err != nil {
		return fmt.Errorf("insert cycle decision: %w", err)
	}

	if len(r.Records) == 0 {
		return nil
	}
	values := make([]string, 0, len(r.Records))
	args := make([]interface{}, 0, len(r.Records)*16)
	for _, rec := range r.Records {
		res := rec.Result
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			r.CycleID, rec.Timestamp, string(rec.Symbol), boolToUInt8(rec.Skipped), rec.Reason,
			res.Price, res.ReferencePrice, res.HistoricalVolume, res.NormalizedMarketCap,
			res.VolumePerSecond, res.ElapsedSeconds, res.MinimumRequiredDecline,
			res.ActualDecline, res.SurgeRatio, res.StrengthRatio, boolToUInt8(res.IsCandidate),
		)
	}
	q = fmt.Sprintf(`INSERT INTO %s.signal_records
        (cycle_id, ts, symbol, skipped, reason, price, reference_price, historical_volume,
         normalized_market_cap, volume_per_second, elapsed_seconds, minimum_required_decline,
         actual_decline, surge_ratio, strength_ratio, is_candidate)
        VALUES %s`, s.database, strings.Join(values, ","))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert signal records: %w", err)
	}
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

var _ domrepo.ReportSink = (*CHReportStore)(nil)
