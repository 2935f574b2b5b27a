package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ShortScan/internal/di"
	"ShortScan/internal/domain"
	"ShortScan/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("env=%s market_data=%s broker=%s symbols=%d",
		cfg.Environment, cfg.MarketData.Source, cfg.Broker.Type, len(cfg.Universe.Symbols))

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = app.Run(ctx)
	stop()
	cleanup()

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrBudgetExceeded):
		log.Printf("run budget spent, exiting")
	default:
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
