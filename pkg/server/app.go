package server

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ShortScan/internal/usecase"
	"ShortScan/pkg/config"
	xhttp "ShortScan/pkg/http"
	pkgkafka "ShortScan/pkg/kafka"
	applogger "ShortScan/pkg/logger"
)

// App encapsulates the application lifecycle. The market feed, the candle
// flusher and the HTTP server run for as long as the scan scheduler does.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	scheduler  *usecase.ScanScheduler
	collector  *usecase.TradeCollector
	consumer   *pkgkafka.Consumer
	flusher    *usecase.CandleFlusher
	httpServer *xhttp.Server
}

// New creates a new App. collector, consumer and flusher may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	scheduler *usecase.ScanScheduler,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
	flusher *usecase.CandleFlusher,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:        cfg,
		log:        l,
		scheduler:  scheduler,
		collector:  collector,
		consumer:   consumer,
		flusher:    flusher,
		httpServer: httpServer,
	}
}

// Run starts every component and blocks until the scheduler stops, either
// because ctx was cancelled or the run budget was spent. The scheduler's error
// is returned after shutdown.
func (a *App) Run(ctx context.Context) error {
	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()

	if err := a.startFeed(feedCtx); err != nil {
		return err
	}

	var bg sync.WaitGroup
	if a.flusher != nil {
		bg.Add(1)
		go func() {
			defer bg.Done()
			a.flusher.Run(feedCtx)
		}()
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	a.log.Info("scanner started",
		applogger.Strings("symbols", a.cfg.Universe.Symbols),
		applogger.String("market_data", a.cfg.MarketData.Source),
		applogger.String("history", a.cfg.MarketData.History),
		applogger.String("broker", a.cfg.Broker.Type),
	)
	runErr := a.scheduler.Run(ctx)

	stopFeed()
	bg.Wait()
	return errors.Join(runErr, a.shutdown(context.WithoutCancel(ctx)))
}

func (a *App) startFeed(ctx context.Context) error {
	if a.collector != nil {
		if err := a.collector.Start(ctx); err != nil {
			return fmt.Errorf("market stream: %w", err)
		}
		a.log.Info("market stream started")
	}
	if a.consumer != nil {
		if err := a.consumer.Start(ctx); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("kafka tick consumer started", applogger.String("topic", a.cfg.MarketData.Topic))
	}
	return nil
}

// shutdown stops the feed and the HTTP server. Infrastructure clients are
// closed by the injector's cleanup.
func (a *App) shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("market stream stop error", applogger.Error(err))
			errs = append(errs, fmt.Errorf("market stream: %w", err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, fmt.Errorf("kafka consumer: %w", err))
		}
	}
	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}
