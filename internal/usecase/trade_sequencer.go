package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
	applogger "ShortScan/pkg/logger"

	"golang.org/x/time/rate"
)

// SequencerState is the trade sequencer's position in its lifecycle.
type SequencerState int32

const (
	StateIdle SequencerState = iota
	StateSizing
	StateChunkedEntry
	StateHolding
	StateExiting
)

func (s SequencerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSizing:
		return "sizing"
	case StateChunkedEntry:
		return "chunked_entry"
	case StateHolding:
		return "holding"
	case StateExiting:
		return "exiting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TradeConfig sizes and paces one short-entry / timed-exit sequence.
type TradeConfig struct {
	SizeFactor         float64
	MaxTradeSize       float64
	ChunkSize          float64
	MinUnit            float64
	StopOffsetUp       float64
	StopOffsetDown     float64
	InterOrderInterval time.Duration
	HoldDuration       time.Duration
	ExitTimeout        time.Duration
}

func DefaultTradeConfig() TradeConfig {
	return TradeConfig{
		SizeFactor:         0.1,
		MaxTradeSize:       50000,
		ChunkSize:          1000,
		MinUnit:            1,
		StopOffsetUp:       0.02,
		StopOffsetDown:     0.02,
		InterOrderInterval: time.Second,
		HoldDuration:       30 * time.Second,
		ExitTimeout:        2 * time.Minute,
	}
}

// TradeSequencer drives Idle -> Sizing -> ChunkedEntry -> Holding -> Exiting -> Idle.
// Only one sequence runs at a time; Begin fails with ErrSequencerBusy otherwise.
type TradeSequencer struct {
	gateway domrepo.OrderGateway
	cfg     TradeConfig
	log     *applogger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
	state   atomic.Int32
}

func NewTradeSequencer(gateway domrepo.OrderGateway, cfg TradeConfig, l *applogger.Logger, m domrepo.Metrics) *TradeSequencer {
	return &TradeSequencer{
		gateway: gateway,
		cfg:     cfg,
		log:     l,
		metrics: m,
		now:     time.Now,
	}
}

// State returns the current state.
func (s *TradeSequencer) State() SequencerState {
	return SequencerState(s.state.Load())
}

func (s *TradeSequencer) setState(st SequencerState) {
	s.state.Store(int32(st))
	s.metrics.RecordSequencerState(st.String())
}

// Size computes the total short size for a volume-per-second reading.
func (s *TradeSequencer) Size(volumePerSecond float64) (float64, error) {
	unit := s.cfg.MinUnit
	if unit <= 0 {
		unit = 1
	}
	total := math.Floor(volumePerSecond*s.cfg.SizeFactor/unit) * unit
	if total > s.cfg.MaxTradeSize {
		return total, fmt.Errorf("size %.0f exceeds max %.0f: %w", total, s.cfg.MaxTradeSize, domain.ErrSizingOverflow)
	}
	if total < unit {
		return total, fmt.Errorf("size %.2f below min unit %.2f: %w", total, unit, domain.ErrPlanEmpty)
	}
	return total, nil
}

// Begin claims the sequencer and builds the plan for the selected signal.
// Sizing failures release the sequencer and place no orders.
func (s *TradeSequencer) Begin(result models.SignalResult) (models.TradePlan, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateSizing)) {
		return models.TradePlan{}, domain.ErrSequencerBusy
	}
	s.metrics.RecordSequencerState(StateSizing.String())

	total, err := s.Size(result.VolumePerSecond)
	if err != nil {
		s.setState(StateIdle)
		s.metrics.RecordTrade("rejected")
		return models.TradePlan{}, err
	}

	plan := models.TradePlan{
		Symbol:         result.Symbol,
		TotalSize:      total,
		ChunkSize:      s.cfg.ChunkSize,
		MinUnit:        s.cfg.MinUnit,
		EntryPrice:     result.Price,
		StopOffsetUp:   s.cfg.StopOffsetUp,
		StopOffsetDown: s.cfg.StopOffsetDown,
		HoldDuration:   s.cfg.HoldDuration,
	}
	if len(plan.Chunks()) == 0 {
		s.setState(StateIdle)
		s.metrics.RecordTrade("rejected")
		return models.TradePlan{}, fmt.Errorf("size %.0f yields no chunk: %w", total, domain.ErrPlanEmpty)
	}
	return plan, nil
}

// Release returns a claimed sequencer to Idle without trading.
func (s *TradeSequencer) Release() {
	if s.state.CompareAndSwap(int32(StateSizing), int32(StateIdle)) {
		s.metrics.RecordSequencerState(StateIdle.String())
	}
}

// Execute runs entry, hold and exit for a plan obtained from Begin. Cancelling
// ctx cuts entry or hold short; exit always runs on a detached context bounded
// by ExitTimeout so no position is left without an exit attempt.
func (s *TradeSequencer) Execute(ctx context.Context, cycleID string, plan models.TradePlan) models.TradeOutcome {
	chunks := plan.Chunks()
	out := models.TradeOutcome{
		CycleID:       cycleID,
		Symbol:        plan.Symbol,
		PlannedChunks: len(chunks),
		StartedAt:     s.now(),
	}
	log := s.log.With(applogger.String("cycle_id", cycleID), applogger.String("symbol", plan.Symbol.String()))
	log.Info("trade entry",
		applogger.Float64("total_size", plan.TotalSize),
		applogger.Int("chunks", len(chunks)),
		applogger.Float64("entry_price", plan.EntryPrice),
	)

	s.setState(StateChunkedEntry)
	entryErr := s.enter(ctx, plan, chunks, &out)
	if entryErr != nil {
		out.Aborted = true
		log.Error("trade entry aborted", applogger.Int("submitted_chunks", out.SubmittedChunks), applogger.Error(entryErr))
	} else {
		s.setState(StateHolding)
		if err := sleepCtx(ctx, plan.HoldDuration); err != nil {
			log.Warn("hold interrupted", applogger.Error(err))
		}
	}

	s.setState(StateExiting)
	exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ExitTimeout)
	exitErr := s.exit(exitCtx, plan, &out, log)
	cancel()

	out.FinishedAt = s.now()
	s.setState(StateIdle)

	result := "completed"
	if err := errors.Join(entryErr, exitErr); err != nil {
		out.Error = err.Error()
		result = "failed"
	}
	s.metrics.RecordTrade(result)
	log.Info("trade finished",
		applogger.String("result", result),
		applogger.Float64("entered", out.EnteredQuantity),
		applogger.Int("exit_orders", out.ExitOrders),
		applogger.Duration("duration_ms", out.FinishedAt.Sub(out.StartedAt)),
	)
	return out
}

func (s *TradeSequencer) enter(ctx context.Context, plan models.TradePlan, chunks []float64, out *models.TradeOutcome) error {
	var pace *rate.Limiter
	if s.cfg.InterOrderInterval > 0 {
		pace = rate.NewLimiter(rate.Every(s.cfg.InterOrderInterval), 1)
	}
	stopUp := plan.EntryPrice * (1 + plan.StopOffsetUp)
	stopDown := plan.EntryPrice * (1 - plan.StopOffsetDown)

	for i, qty := range chunks {
		if pace != nil {
			if err := pace.Wait(ctx); err != nil {
				return fmt.Errorf("chunk %d pacing: %w", i+1, err)
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("chunk %d: %w", i+1, err)
		}

		if err := s.submitMarket(ctx, plan.Symbol, -qty, "entry"); err != nil {
			return fmt.Errorf("chunk %d entry: %w", i+1, err)
		}
		out.SubmittedChunks++
		out.EnteredQuantity += qty

		if err := s.submitStop(ctx, plan.Symbol, qty, stopUp); err != nil {
			return fmt.Errorf("chunk %d upper stop: %w", i+1, err)
		}
		if err := s.submitStop(ctx, plan.Symbol, qty, stopDown); err != nil {
			return fmt.Errorf("chunk %d lower stop: %w", i+1, err)
		}
	}
	return nil
}

func (s *TradeSequencer) exit(ctx context.Context, plan models.TradePlan, out *models.TradeOutcome, log *applogger.Logger) error {
	positions, err := s.gateway.OpenPositions(ctx)
	if err != nil {
		log.Error("list positions failed, covering entered quantity", applogger.Error(err))
		if out.EnteredQuantity <= 0 {
			return fmt.Errorf("list positions: %w", err)
		}
		if cerr := s.submitMarket(ctx, plan.Symbol, out.EnteredQuantity, "exit"); cerr != nil {
			return errors.Join(fmt.Errorf("list positions: %w", err), cerr)
		}
		out.ExitOrders++
		return nil
	}

	var errs []error
	for _, p := range positions {
		if !p.IsShort || p.Quantity == 0 {
			continue
		}
		if err := s.submitMarket(ctx, p.Symbol, math.Abs(p.Quantity), "exit"); err != nil {
			errs = append(errs, fmt.Errorf("cover %s: %w", p.Symbol, err))
			continue
		}
		out.ExitOrders++
	}
	return errors.Join(errs...)
}

func (s *TradeSequencer) submitMarket(ctx context.Context, sym models.Symbol, qty float64, kind string) error {
	start := time.Now()
	err := s.gateway.SubmitMarketOrder(ctx, sym, qty)
	s.metrics.RecordLatency("order_"+kind, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordOrder(kind, "error")
		return fmt.Errorf("market %s %.0f: %w: %w", sym, qty, domain.ErrOrderGateway, err)
	}
	s.metrics.RecordOrder(kind, "ok")
	return nil
}

func (s *TradeSequencer) submitStop(ctx context.Context, sym models.Symbol, qty, price float64) error {
	if err := s.gateway.SubmitStopOrder(ctx, sym, qty, price); err != nil {
		s.metrics.RecordOrder("stop", "error")
		return fmt.Errorf("stop %s %.0f@%.4f: %w: %w", sym, qty, price, domain.ErrOrderGateway, err)
	}
	s.metrics.RecordOrder("stop", "ok")
	return nil
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
