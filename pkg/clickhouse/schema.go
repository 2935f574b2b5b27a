package clickhouse

import "fmt"

// ScannerSchema returns the DDL for the scanner's tables in database db.
// rt_candles_1m is written by the candle pipeline and only read here.
func ScannerSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.rt_candles_1m (
			bucket DateTime,
			symbol LowCardinality(String),
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			vol Float64
		) ENGINE = ReplacingMergeTree ORDER BY (symbol, bucket)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.signal_records (
			cycle_id String,
			ts DateTime64(3),
			symbol LowCardinality(String),
			skipped UInt8,
			reason String,
			price Float64,
			reference_price Float64,
			historical_volume Float64,
			normalized_market_cap Float64,
			volume_per_second Float64,
			elapsed_seconds Float64,
			minimum_required_decline Float64,
			actual_decline Float64,
			surge_ratio Float64,
			strength_ratio Float64,
			is_candidate UInt8
		) ENGINE = MergeTree PARTITION BY toYYYYMMDD(ts) ORDER BY (symbol, ts)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.cycle_decisions (
			cycle_id String,
			session String,
			started_at DateTime64(3),
			duration_ms Int64,
			evaluated UInt32,
			skipped UInt32,
			candidates Array(String),
			decision LowCardinality(String),
			selected String
		) ENGINE = MergeTree PARTITION BY session ORDER BY (started_at, cycle_id)`, db),
	}
}
