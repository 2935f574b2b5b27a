package repository

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	pkgch "ShortScan/pkg/clickhouse"
	applogger "ShortScan/pkg/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// arrayConverter lets string slices through as ClickHouse Array(String) args.
type arrayConverter struct{}

func (arrayConverter) ConvertValue(v interface{}) (driver.Value, error) {
	if s, ok := v.([]string); ok {
		return s, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newMockClient(t *testing.T) (*pkgch.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(arrayConverter{}))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return pkgch.NewFromDB(db, "shortscan"), mock
}

func TestCHCandleStoreVolumeSum(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHCandleStore(ch, applogger.Nop())
	now := time.Date(2024, 3, 4, 15, 0, 42, 0, time.UTC)
	s.now = func() time.Time { return now }

	mock.ExpectQuery(`SELECT count\(\), sum\(vol\)\s+FROM \(\s+SELECT vol FROM shortscan.rt_candles_1m FINAL`).
		WithArgs("AMD", now.Truncate(time.Minute), 60).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(uint64(60), 123456.0))

	sum, err := s.HistoricalVolumeSum(context.Background(), "AMD", 60)
	require.NoError(t, err)
	assert.Equal(t, 123456.0, sum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHCandleStoreVolumeSumNoRows(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHCandleStore(ch, applogger.Nop())

	mock.ExpectQuery(`SELECT count\(\), sum\(vol\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(uint64(0), 0.0))

	_, err := s.HistoricalVolumeSum(context.Background(), "NONE", 60)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestCHCandleStoreVolumeSumShortWindow(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHCandleStore(ch, applogger.Nop())

	mock.ExpectQuery(`SELECT count\(\), sum\(vol\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "sum"}).AddRow(uint64(1), 100.0))

	_, err := s.HistoricalVolumeSum(context.Background(), "AMD", 60)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHCandleStoreVolumeSumQueryError(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHCandleStore(ch, applogger.Nop())

	mock.ExpectQuery(`SELECT count\(\), sum\(vol\)`).WillReturnError(assert.AnError)

	_, err := s.HistoricalVolumeSum(context.Background(), "AMD", 60)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestCHCandleStoreWriteCandles(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHCandleStore(ch, applogger.Nop())
	bucket := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO shortscan.rt_candles_1m \(bucket, symbol, open, high, low, close, vol\) VALUES \(\?, \?, \?, \?, \?, \?, \?\),\(\?, \?, \?, \?, \?, \?, \?\)$`).
		WithArgs(bucket, "AMD", 1.0, 2.0, 0.5, 1.5, 100.0, bucket, "SNAP", 10.0, 11.0, 9.0, 10.0, 50.0).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := s.WriteCandles(context.Background(), []models.Candle{
		{Bucket: bucket, Symbol: "AMD", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Symbol: "", Bucket: bucket},
		{Bucket: bucket, Symbol: "SNAP", Open: 10, High: 11, Low: 9, Close: 10, Volume: 50},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHReportStoreWriteReport(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHReportStore(ch)
	at := time.Date(2024, 3, 4, 15, 31, 0, 0, time.UTC)

	report := &models.CycleReport{
		CycleID:    "c-1",
		Session:    "2024-03-04",
		StartedAt:  at,
		Duration:   1500 * time.Millisecond,
		Evaluated:  1,
		Skipped:    1,
		Candidates: []models.Symbol{"SNAP"},
		Decision:   models.DecisionSelected,
		Selected:   "SNAP",
		Records: []models.SignalRecord{
			{Symbol: "SNAP", Timestamp: at, Result: models.SignalResult{Price: 95, IsCandidate: true, SurgeRatio: 8.55}},
			{Symbol: "AMD", Timestamp: at, Skipped: true, Reason: "data unavailable"},
		},
	}

	mock.ExpectExec(`INSERT INTO shortscan.cycle_decisions`).
		WithArgs("c-1", "2024-03-04", at, int64(1500), uint32(1), uint32(1), []string{"SNAP"}, "selected", "SNAP").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO shortscan.signal_records`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, s.WriteReport(context.Background(), report))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCHReportStoreDecisionFailureStops(t *testing.T) {
	ch, mock := newMockClient(t)
	s := NewCHReportStore(ch)

	mock.ExpectExec(`INSERT INTO shortscan.cycle_decisions`).WillReturnError(assert.AnError)

	err := s.WriteReport(context.Background(), &models.CycleReport{CycleID: "c", Records: []models.SignalRecord{{Symbol: "A"}}})
	assert.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}
