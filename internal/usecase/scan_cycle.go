package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
	"ShortScan/internal/services/signal"
	applogger "ShortScan/pkg/logger"
	"ShortScan/pkg/util"

	"github.com/google/uuid"
)

const publishTimeout = 10 * time.Second

// CycleConfig controls one scan pass.
type CycleConfig struct {
	Workers       int
	ReferenceTime util.TimeOfDay
	Location      *time.Location
	TradeEnabled  bool
}

// CycleResult is what a scan pass hands back to the scheduler. Plan is set only
// when the sequencer was claimed and must be executed.
type CycleResult struct {
	Report *models.CycleReport
	Plan   *models.TradePlan
}

// ScanCycle evaluates the universe once, applies the candidate gate and claims
// the trade sequencer for a single unambiguous candidate.
type ScanCycle struct {
	universe  domrepo.UniverseProvider
	market    domrepo.MarketDataGateway
	registry  *BaselineRegistry
	session   *SessionCache
	sequencer *TradeSequencer
	sinks     []domrepo.ReportSink
	params    signal.Params
	cfg       CycleConfig
	log       *applogger.Logger
	metrics   domrepo.Metrics

	mu         sync.Mutex
	sessionKey string
}

func NewScanCycle(
	universe domrepo.UniverseProvider,
	market domrepo.MarketDataGateway,
	registry *BaselineRegistry,
	session *SessionCache,
	sequencer *TradeSequencer,
	sinks []domrepo.ReportSink,
	params signal.Params,
	cfg CycleConfig,
	l *applogger.Logger,
	m domrepo.Metrics,
) *ScanCycle {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &ScanCycle{
		universe:  universe,
		market:    market,
		registry:  registry,
		session:   session,
		sequencer: sequencer,
		sinks:     sinks,
		params:    params,
		cfg:       cfg,
		log:       l,
		metrics:   m,
	}
}

// Registry exposes the baseline registry for read-only queries.
func (c *ScanCycle) Registry() *BaselineRegistry { return c.registry }

// Run performs one scan pass at now. When tradeAllowed is false a selection is
// reported as busy and the sequencer is left alone.
func (c *ScanCycle) Run(ctx context.Context, now time.Time, tradeAllowed bool) (CycleResult, error) {
	start := time.Now()
	c.rollover(ctx, now)

	symbols, err := c.universe.Symbols(ctx)
	if err != nil {
		c.metrics.RecordError("universe")
		return CycleResult{}, fmt.Errorf("universe: %w", err)
	}

	report := &models.CycleReport{
		CycleID:   uuid.NewString(),
		Session:   util.SessionKey(now, c.cfg.Location),
		StartedAt: now,
		Records:   c.evaluateAll(ctx, symbols, now),
	}
	log := c.log.With(applogger.String("cycle_id", report.CycleID))

	results := make([]models.SignalResult, 0, len(report.Records))
	for _, rec := range report.Records {
		if rec.Skipped {
			report.Skipped++
			continue
		}
		report.Evaluated++
		results = append(results, rec.Result)
	}

	sel := SelectCandidate(results)
	report.Candidates = sel.Candidates
	report.Decision = sel.Decision
	c.metrics.RecordCandidates(len(sel.Candidates))

	var res CycleResult
	if sel.Decision == models.DecisionSelected {
		report.Selected = sel.Symbol
		res.Plan = c.claim(ctx, report, sel, tradeAllowed, log)
	}

	report.Duration = time.Since(start)
	res.Report = report
	c.metrics.RecordCycle(string(report.Decision), report.Duration)
	log.Info("cycle completed",
		applogger.String("session", report.Session),
		applogger.String("decision", string(report.Decision)),
		applogger.String("selected", report.Selected.String()),
		applogger.Int("evaluated", report.Evaluated),
		applogger.Int("skipped", report.Skipped),
		applogger.Int("candidates", len(report.Candidates)),
		applogger.Duration("duration_ms", report.Duration),
	)

	c.publish(ctx, report, log)
	return res, nil
}

func (c *ScanCycle) claim(ctx context.Context, report *models.CycleReport, sel Selection, tradeAllowed bool, log *applogger.Logger) *models.TradePlan {
	if !c.cfg.TradeEnabled {
		log.Info("trading disabled, selection not traded", applogger.String("symbol", sel.Symbol.String()))
		return nil
	}
	if !tradeAllowed {
		report.Decision = models.DecisionBusy
		return nil
	}
	if err := ctx.Err(); err != nil {
		log.Warn("cycle context done, selection not traded", applogger.Error(err))
		return nil
	}

	plan, err := c.sequencer.Begin(sel.Result)
	switch {
	case err == nil:
		log.Info("trade planned",
			applogger.String("symbol", plan.Symbol.String()),
			applogger.Float64("total_size", plan.TotalSize),
			applogger.Float64("entry_price", plan.EntryPrice),
		)
		return &plan
	case errors.Is(err, domain.ErrSequencerBusy):
		report.Decision = models.DecisionBusy
	case errors.Is(err, domain.ErrSizingOverflow):
		report.Decision = models.DecisionSizingOverflow
		c.metrics.RecordError("sizing_overflow")
		log.Error("sizing overflow, cycle aborted", applogger.Float64("volume_per_second", sel.Result.VolumePerSecond), applogger.Error(err))
	default:
		log.Warn("selection not traded", applogger.String("symbol", sel.Symbol.String()), applogger.Error(err))
	}
	return nil
}

// evaluateAll runs one evaluation per symbol on a bounded worker pool. Records
// keep universe order regardless of completion order.
func (c *ScanCycle) evaluateAll(ctx context.Context, symbols []models.Symbol, now time.Time) []models.SignalRecord {
	records := make([]models.SignalRecord, len(symbols))
	workers := min(c.cfg.Workers, len(symbols))
	if workers <= 1 {
		for i, sym := range symbols {
			records[i] = c.evaluate(ctx, sym, now)
		}
		return records
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				records[i] = c.evaluate(ctx, symbols[i], now)
			}
		}()
	}
	for i := range symbols {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return records
}

func (c *ScanCycle) evaluate(ctx context.Context, sym models.Symbol, now time.Time) models.SignalRecord {
	rec := models.SignalRecord{Symbol: sym, Timestamp: now}
	skip := func(err error) models.SignalRecord {
		rec.Skipped = true
		rec.Reason = err.Error()
		c.metrics.RecordSymbolOutcome("skipped")
		c.log.Debug("symbol skipped", applogger.String("symbol", sym.String()), applogger.Error(err))
		return rec
	}

	snap, err := c.market.CurrentQuote(ctx, sym)
	if err != nil {
		return skip(err)
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = now
	}
	if snap.Price <= 0 || snap.CumulativeVolume <= 0 {
		return skip(fmt.Errorf("%s quote price %v volume %v: %w", sym, snap.Price, snap.CumulativeVolume, domain.ErrDataUnavailable))
	}
	rec.Timestamp = snap.Timestamp
	c.metrics.RecordLastPrice(sym.String(), snap.Price)

	obs := c.registry.Advance(snap, c.cfg.ReferenceTime.Reached(snap.Timestamp, c.cfg.Location))

	agg, err := c.session.Aggregate(ctx, sym, now)
	if err != nil {
		return skip(err)
	}
	mcap, err := c.session.MarketCap(ctx, sym, now)
	if err != nil {
		return skip(err)
	}

	res, err := signal.Compute(signal.Input{
		Snapshot:            snap,
		Aggregate:           agg,
		ReferencePrice:      obs.ReferencePrice,
		VolumeDelta:         obs.VolumeDelta,
		Elapsed:             obs.Elapsed,
		MarketCapBillions:   mcap.Billions,
		NormalizedMarketCap: mcap.Normalized,
	}, c.params)
	rec.Result = res
	if errors.Is(err, domain.ErrDataUnavailable) {
		return skip(err)
	}
	if err != nil {
		rec.Reason = err.Error()
		c.metrics.RecordSymbolOutcome("guarded")
	} else if res.IsCandidate {
		c.metrics.RecordSymbolOutcome("candidate")
	} else {
		c.metrics.RecordSymbolOutcome("evaluated")
	}

	c.log.Debug("signal",
		applogger.String("symbol", sym.String()),
		applogger.Float64("price", res.Price),
		applogger.Float64("reference_price", res.ReferencePrice),
		applogger.Float64("hvol", res.HistoricalVolume),
		applogger.Float64("market_cap_b", res.MarketCapBillions),
		applogger.Float64("nmc", res.NormalizedMarketCap),
		applogger.Float64("elapsed_seconds", res.ElapsedSeconds),
		applogger.Float64("volume_delta", res.VolumeDelta),
		applogger.Float64("vmin", res.AnnualizedMinuteVolume),
		applogger.Float64("vp_now", res.CurrentVolumePriceProduct),
		applogger.Float64("vp_old", res.BaselineVolumePriceProduct),
		applogger.Float64("min_decline", res.MinimumRequiredDecline),
		applogger.Float64("decline", res.ActualDecline),
		applogger.Float64("y", res.SurgeRatio),
		applogger.Float64("z", res.StrengthRatio),
		applogger.Bool("candidate", res.IsCandidate),
	)
	return rec
}

// rollover resets per-session state when the exchange date changes.
func (c *ScanCycle) rollover(ctx context.Context, now time.Time) {
	key := util.SessionKey(now, c.cfg.Location)
	c.mu.Lock()
	prev := c.sessionKey
	c.sessionKey = key
	c.mu.Unlock()
	if prev == "" || prev == key {
		return
	}

	c.registry.Reset()
	if err := c.session.Reset(ctx); err != nil {
		c.metrics.RecordError("session_cache")
		c.log.Error("session reset failed", applogger.Error(err))
	}
	c.log.Info("session rollover", applogger.String("from", prev), applogger.String("to", key))
}

func (c *ScanCycle) publish(ctx context.Context, report *models.CycleReport, log *applogger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, sink := range c.sinks {
		if err := sink.WriteReport(ctx, report); err != nil {
			c.metrics.RecordError("report_sink")
			log.Error("report sink failed", applogger.Error(err))
		}
	}
}
