package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ShortScan/internal/domain"
	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
	applogger "ShortScan/pkg/logger"
)

// SchedulerConfig bounds the scanning run.
type SchedulerConfig struct {
	Cadence        time.Duration
	RunBudget      time.Duration
	StopAfterTrade bool
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	StartedAt         time.Time            `json:"started_at"`
	CyclesRun         int                  `json:"cycles_run"`
	CycleErrors       int                  `json:"cycle_errors"`
	LastCycleDuration time.Duration        `json:"last_cycle_duration"`
	TotalRunTime      time.Duration        `json:"total_run_time"`
	Busy              bool                 `json:"busy"`
	SequencerState    string               `json:"sequencer_state"`
	LastDecision      models.Decision      `json:"last_decision,omitempty"`
	Trades            int                  `json:"trades"`
	LastTrade         *models.TradeOutcome `json:"last_trade,omitempty"`
}

// ScanScheduler runs scan cycles on a fixed cadence until the run budget is
// spent. Cycles never overlap; a selected trade runs in the background while
// later cycles keep scanning without trading.
type ScanScheduler struct {
	cycle     *ScanCycle
	sequencer *TradeSequencer
	cfg       SchedulerConfig
	sinks     []domrepo.TradeSink
	log       *applogger.Logger
	metrics   domrepo.Metrics
	now       func() time.Time

	busy      atomic.Bool
	trades    sync.WaitGroup
	tradeDone chan struct{}

	mu    sync.RWMutex
	stats Stats
}

func NewScanScheduler(cycle *ScanCycle, sequencer *TradeSequencer, cfg SchedulerConfig, sinks []domrepo.TradeSink, l *applogger.Logger, m domrepo.Metrics) *ScanScheduler {
	if cfg.Cadence <= 0 {
		cfg.Cadence = time.Minute
	}
	return &ScanScheduler{
		cycle:     cycle,
		sequencer: sequencer,
		cfg:       cfg,
		sinks:     sinks,
		log:       l,
		metrics:   m,
		now:       time.Now,
		tradeDone: make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled, the budget is exceeded or, with
// StopAfterTrade, the first trade completes. An in-flight trade is always
// waited for. Budget exhaustion returns domain.ErrBudgetExceeded.
func (s *ScanScheduler) Run(ctx context.Context) error {
	start := s.now()
	s.mu.Lock()
	s.stats.StartedAt = start
	s.mu.Unlock()

	runCtx := ctx
	if s.cfg.RunBudget > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunBudget)
		defer cancel()
	}

	s.log.Info("scheduler started",
		applogger.Duration("cadence_ms", s.cfg.Cadence),
		applogger.Duration("budget_ms", s.cfg.RunBudget),
		applogger.Bool("stop_after_trade", s.cfg.StopAfterTrade),
	)

	ticker := time.NewTicker(s.cfg.Cadence)
	defer ticker.Stop()

	for {
		if s.budgetSpent(start) {
			return s.finish(start, domain.ErrBudgetExceeded)
		}
		if s.cfg.StopAfterTrade && s.tradesCompleted() > 0 {
			return s.finish(start, nil)
		}

		s.runCycle(ctx, runCtx)

		select {
		case <-ctx.Done():
			return s.finish(start, nil)
		case <-runCtx.Done():
			return s.finish(start, budgetErr(ctx))
		case <-s.tradeDone:
			if s.cfg.StopAfterTrade {
				return s.finish(start, nil)
			}
			// a trade finishing does not start a cycle; wait for the next tick
			select {
			case <-ctx.Done():
				return s.finish(start, nil)
			case <-runCtx.Done():
				return s.finish(start, budgetErr(ctx))
			case <-ticker.C:
			}
		case <-ticker.C:
		}
	}
}

// Stats returns a snapshot of the run.
func (s *ScanScheduler) Stats() Stats {
	s.mu.RLock()
	st := s.stats
	s.mu.RUnlock()
	if !st.StartedAt.IsZero() {
		st.TotalRunTime = s.now().Sub(st.StartedAt)
	}
	st.Busy = s.busy.Load()
	st.SequencerState = s.sequencer.State().String()
	return st
}

// Wait blocks until any in-flight trade has exited.
func (s *ScanScheduler) Wait() { s.trades.Wait() }

// budgetErr separates the budget deadline from a parent shutdown.
func budgetErr(parent context.Context) error {
	if parent.Err() != nil {
		return nil
	}
	return domain.ErrBudgetExceeded
}

func (s *ScanScheduler) tradesCompleted() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.Trades
}

func (s *ScanScheduler) budgetSpent(start time.Time) bool {
	return s.cfg.RunBudget > 0 && s.now().Sub(start) >= s.cfg.RunBudget
}

func (s *ScanScheduler) finish(start time.Time, err error) error {
	if s.busy.Load() {
		s.log.Info("waiting for trade to exit")
	}
	s.trades.Wait()
	s.log.Info("scheduler stopped",
		applogger.Duration("run_ms", s.now().Sub(start)),
		applogger.Int("cycles", s.Stats().CyclesRun),
		applogger.Error(err),
	)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	return nil
}

// runCycle executes one pass. Signal fetches use runCtx so they stop at the
// budget deadline; a trade runs on ctx so its hold only ends on shutdown.
func (s *ScanScheduler) runCycle(ctx, runCtx context.Context) {
	res, err := s.cycle.Run(runCtx, s.now(), !s.busy.Load())

	s.mu.Lock()
	s.stats.CyclesRun++
	if err != nil {
		s.stats.CycleErrors++
	}
	if res.Report != nil {
		s.stats.LastCycleDuration = res.Report.Duration
		s.stats.LastDecision = res.Report.Decision
	}
	s.mu.Unlock()

	if err != nil {
		s.metrics.RecordError("cycle")
		s.log.Error("cycle failed", applogger.Error(err))
		return
	}
	if res.Plan != nil {
		s.startTrade(ctx, res.Report.CycleID, *res.Plan)
	}
}

func (s *ScanScheduler) startTrade(ctx context.Context, cycleID string, plan models.TradePlan) {
	s.busy.Store(true)
	s.trades.Add(1)
	go func() {
		defer s.trades.Done()
		out := s.sequencer.Execute(ctx, cycleID, plan)

		s.publishTrade(ctx, &out)

		s.mu.Lock()
		s.stats.Trades++
		s.stats.LastTrade = &out
		s.mu.Unlock()
		s.busy.Store(false)

		select {
		case s.tradeDone <- struct{}{}:
		default:
		}
	}()
}

func (s *ScanScheduler) publishTrade(ctx context.Context, out *models.TradeOutcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, sink := range s.sinks {
		if err := sink.WriteTrade(ctx, out); err != nil {
			s.metrics.RecordError("trade_sink")
			s.log.Error("trade sink failed", applogger.String("cycle_id", out.CycleID), applogger.Error(err))
		}
	}
}
