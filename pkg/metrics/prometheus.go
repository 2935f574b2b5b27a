package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shortscan"

// sequencerStates maps sequencer state names to gauge values.
var sequencerStates = map[string]float64{
	"idle":          0,
	"sizing":        1,
	"chunked_entry": 2,
	"holding":       3,
	"exiting":       4,
}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cyclesTotal    *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	symbolsTotal   *prometheus.CounterVec
	candidates     prometheus.Gauge
	ordersTotal    *prometheus.CounterVec
	sequencerState prometheus.Gauge
	tradesTotal    *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
}

// New creates a recorder registered on reg. A nil reg uses the default registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Recorder{
		cyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Scan cycles completed by decision",
			},
			[]string{"decision"},
		),
		cycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Wall time of one scan cycle",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		symbolsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "symbols_evaluated_total",
				Help:      "Per-symbol evaluations by outcome",
			},
			[]string{"outcome"},
		),
		candidates: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "candidates",
				Help:      "Candidates found in the latest cycle",
			},
		),
		ordersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Orders submitted by kind and result",
			},
			[]string{"kind", "result"},
		),
		sequencerState: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sequencer_state",
				Help:      "Trade sequencer state (0 idle, 1 sizing, 2 chunked_entry, 3 holding, 4 exiting)",
			},
		),
		tradesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trades_total",
				Help:      "Trade sequences run by result",
			},
			[]string{"result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_price",
				Help:      "Last observed price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordCycle(decision string, duration time.Duration) {
	r.cyclesTotal.WithLabelValues(decision).Inc()
	r.cycleDuration.Observe(duration.Seconds())
}

func (r *Recorder) RecordSymbolOutcome(outcome string) {
	r.symbolsTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordCandidates(n int) {
	r.candidates.Set(float64(n))
}

func (r *Recorder) RecordOrder(kind, result string) {
	r.ordersTotal.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) RecordSequencerState(state string) {
	if v, ok := sequencerStates[state]; ok {
		r.sequencerState.Set(v)
	}
}

func (r *Recorder) RecordTrade(result string) {
	r.tradesTotal.WithLabelValues(result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards everything. Used when metrics are disabled and in tests.
type Nop struct{}

func (Nop) RecordCycle(string, time.Duration) {}
func (Nop) RecordSymbolOutcome(string)        {}
func (Nop) RecordCandidates(int)              {}
func (Nop) RecordOrder(string, string)        {}
func (Nop) RecordSequencerState(string)       {}
func (Nop) RecordTrade(string)                {}
func (Nop) RecordError(string)                {}
func (Nop) RecordLastPrice(string, float64)   {}
func (Nop) RecordLatency(string, float64)     {}
