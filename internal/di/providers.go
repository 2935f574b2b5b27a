package di

import (
	"context"
	"fmt"
	"time"

	domrepo "ShortScan/internal/domain/repository"
	"ShortScan/internal/handler/api"
	"ShortScan/internal/middleware"
	"ShortScan/internal/repository"
	"ShortScan/internal/service/broker"
	"ShortScan/internal/service/finnhub"
	"ShortScan/internal/service/ratelimit"
	"ShortScan/internal/services/signal"
	"ShortScan/internal/usecase"
	"ShortScan/pkg/cache"
	pkgch "ShortScan/pkg/clickhouse"
	"ShortScan/pkg/config"
	xhttp "ShortScan/pkg/http"
	pkgkafka "ShortScan/pkg/kafka"
	applogger "ShortScan/pkg/logger"
	"ShortScan/pkg/metrics"
	"ShortScan/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger builds the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the Prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) domrepo.Metrics {
	return metrics.New(reg)
}

// ProvideCache returns Redis behind an in-process L1 when Redis is enabled,
// otherwise a bounded memory cache.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(cache.WithMemoryMaxSize(20000), cache.WithMemoryCleanup(time.Minute))
		return mc, func() { _ = mc.Close() }, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(20, 2, 4*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	lc := cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(5000), cache.WithLayeredMemoryTTL(10*time.Minute))
	l.Info("redis cache connected", applogger.String("addr", cfg.Redis.Addr))
	return lc, func() { _ = lc.Close() }, nil
}

// ProvideClickHouseClient opens ClickHouse and applies the schema. It returns
// nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if cfg.ClickHouse.InitSchema {
		if err := client.InitSchema(ctx, pkgch.ScannerSchema(cfg.ClickHouse.Database)); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	l.Info("clickhouse ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, func() { _ = client.Close() }, nil
}

// ProvideKafkaProducer creates the producer and attaches the error log
// collector when a log topic is set. It returns nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerMetrics(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	if cfg.Kafka.LogTopic != "" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	return producer, func() {
		l.RemoveCollector()
		_ = producer.Close()
	}, nil
}

// ProvideQuoteBook creates the in-memory quote book. Closed candles are queued
// for ClickHouse only when ClickHouse is enabled.
func ProvideQuoteBook(cfg *config.Config) *repository.QuoteBook {
	return repository.NewQuoteBook(cfg.Location(), cfg.Scanner.HistoryWindowMinutes, cfg.ClickHouse.Enabled)
}

// ProvideMarketData pairs QuoteBook quotes with the configured history backend.
func ProvideMarketData(cfg *config.Config, book *repository.QuoteBook, ch *pkgch.Client, l *applogger.Logger) domrepo.MarketDataGateway {
	if cfg.MarketData.History == "clickhouse" && ch != nil {
		return repository.NewMarketData(book, repository.NewCHCandleStore(ch, l))
	}
	return book
}

// ProvideFundamentals returns the market cap source.
func ProvideFundamentals(cfg *config.Config, store cache.Service, l *applogger.Logger) domrepo.FundamentalsProvider {
	if cfg.Fundamentals.Source == "finnhub" {
		client := finnhub.NewRESTClient(cfg.Finnhub.RestURL, cfg.Finnhub.APIKey, 10*time.Second)
		limiter := ratelimit.New(cfg.Finnhub.RequestsPerMin, 1)
		return finnhub.NewFundamentals(client, limiter, store, cfg.Fundamentals.CacheTTL, l)
	}
	return repository.NewStaticFundamentals(cfg.Universe.MarketCaps)
}

// ProvideUniverse returns the configured symbols, optionally narrowed by the
// price, dollar volume and market cap filter.
func ProvideUniverse(cfg *config.Config, book *repository.QuoteBook, caps domrepo.FundamentalsProvider, l *applogger.Logger) domrepo.UniverseProvider {
	base := repository.NewStaticUniverse(cfg.Universe.Symbols)
	if !cfg.Universe.Filter {
		return base
	}
	return repository.NewFilteredUniverse(base, book, caps, repository.UniverseFilter{
		MinPrice:             cfg.Universe.MinPrice,
		MinDollarVolume:      cfg.Universe.MinDollarVolume,
		MinMarketCapBillions: cfg.Universe.MinMarketCapBillions,
		MaxMarketCapBillions: cfg.Universe.MaxMarketCapBillions,
		MaxSymbols:           cfg.Universe.MaxSymbols,
	}, cfg.Location(), l)
}

// ProvideOrderGateway returns the paper broker, fed by QuoteBook prices, or the
// REST bridge.
func ProvideOrderGateway(cfg *config.Config, book *repository.QuoteBook, l *applogger.Logger) domrepo.OrderGateway {
	if cfg.Broker.Type == "bridge" {
		return broker.NewBridgeBroker(broker.BridgeConfig{
			URL:            cfg.Broker.URL,
			APIKey:         cfg.Broker.APIKey,
			Timeout:        cfg.Broker.Timeout,
			MaxFailures:    cfg.Broker.MaxFailures,
			BreakerTimeout: cfg.Broker.BreakerTimeout,
			PriceDecimals:  cfg.Broker.PriceDecimals,
		}, l)
	}
	paper := broker.NewPaperBroker(book, cfg.Broker.PriceDecimals, l)
	book.OnPrice(paper.OnPrice)
	return paper
}

// ProvideReportBuffer keeps recent reports for the HTTP API.
func ProvideReportBuffer(cfg *config.Config) *repository.ReportBuffer {
	return repository.NewReportBuffer(cfg.Scanner.ReportBufferSize)
}

// ProvideKafkaReportPublisher returns nil when Kafka is disabled.
func ProvideKafkaReportPublisher(cfg *config.Config, producer *pkgkafka.Producer) *repository.KafkaReportPublisher {
	if producer == nil {
		return nil
	}
	return repository.NewKafkaReportPublisher(producer, cfg.Kafka.ReportTopic, cfg.Kafka.TradeTopic)
}

// ProvideReportSinks lists every enabled cycle report destination.
func ProvideReportSinks(buf *repository.ReportBuffer, ch *pkgch.Client, pub *repository.KafkaReportPublisher) []domrepo.ReportSink {
	sinks := []domrepo.ReportSink{buf}
	if ch != nil {
		sinks = append(sinks, repository.NewCHReportStore(ch))
	}
	if pub != nil {
		sinks = append(sinks, pub)
	}
	return sinks
}

// ProvideTradeSinks lists every enabled trade outcome destination.
func ProvideTradeSinks(buf *repository.ReportBuffer, pub *repository.KafkaReportPublisher) []domrepo.TradeSink {
	sinks := []domrepo.TradeSink{buf}
	if pub != nil {
		sinks = append(sinks, pub)
	}
	return sinks
}

// ProvideSignalParams maps the signal section onto engine parameters.
func ProvideSignalParams(cfg *config.Config) signal.Params {
	return signal.Params{
		PowerFactor:       cfg.Signal.PowerFactor,
		VolumeWeight:      cfg.Signal.VolumeWeight,
		ScalingConstant:   cfg.Signal.ScalingConstant,
		MinDescentBasis:   cfg.Signal.MinDescentBasis,
		SurgeThreshold:    cfg.Signal.SurgeThreshold,
		StrengthThreshold: cfg.Signal.StrengthThreshold,
		ClampElapsed:      cfg.Signal.ClampElapsed,
		MinElapsed:        cfg.Signal.MinElapsed,
	}
}

// ProvideTradeSequencer creates the trade sequencer.
func ProvideTradeSequencer(cfg *config.Config, gw domrepo.OrderGateway, l *applogger.Logger, m domrepo.Metrics) *usecase.TradeSequencer {
	return usecase.NewTradeSequencer(gw, usecase.TradeConfig{
		SizeFactor:         cfg.Trade.SizeFactor,
		MaxTradeSize:       cfg.Trade.MaxTradeSize,
		ChunkSize:          cfg.Trade.ChunkSize,
		MinUnit:            cfg.Trade.MinUnit,
		StopOffsetUp:       cfg.Trade.StopOffsetUp,
		StopOffsetDown:     cfg.Trade.StopOffsetDown,
		InterOrderInterval: cfg.Trade.InterOrderInterval,
		HoldDuration:       cfg.Trade.HoldDuration,
		ExitTimeout:        cfg.Trade.ExitTimeout,
	}, l.With(applogger.String("component", "sequencer")), m)
}

// ProvideSessionCache creates the per-session aggregate and market cap cache.
func ProvideSessionCache(cfg *config.Config, store cache.Service, market domrepo.MarketDataGateway,
	caps domrepo.FundamentalsProvider, params signal.Params, l *applogger.Logger, m domrepo.Metrics) *usecase.SessionCache {
	return usecase.NewSessionCache(store, market, caps, cfg.Scanner.HistoryWindowMinutes, params.PowerFactor, cfg.Location(), l, m)
}

// ProvideScanCycle assembles one scan pass.
func ProvideScanCycle(
	cfg *config.Config,
	universe domrepo.UniverseProvider,
	market domrepo.MarketDataGateway,
	session *usecase.SessionCache,
	sequencer *usecase.TradeSequencer,
	sinks []domrepo.ReportSink,
	params signal.Params,
	l *applogger.Logger,
	m domrepo.Metrics,
) *usecase.ScanCycle {
	return usecase.NewScanCycle(universe, market, usecase.NewBaselineRegistry(), session, sequencer, sinks, params,
		usecase.CycleConfig{
			Workers:       cfg.Scanner.Workers,
			ReferenceTime: cfg.ReferenceTimeOfDay(),
			Location:      cfg.Location(),
			TradeEnabled:  cfg.Trade.Enabled,
		}, l.With(applogger.String("component", "cycle")), m)
}

// ProvideScanScheduler creates the cadence loop.
func ProvideScanScheduler(cfg *config.Config, cycle *usecase.ScanCycle, sequencer *usecase.TradeSequencer,
	sinks []domrepo.TradeSink, l *applogger.Logger, m domrepo.Metrics) *usecase.ScanScheduler {
	return usecase.NewScanScheduler(cycle, sequencer, usecase.SchedulerConfig{
		Cadence:        cfg.Scanner.Cadence,
		RunBudget:      cfg.Scanner.RunBudget,
		StopAfterTrade: cfg.Scanner.StopAfterTrade,
	}, sinks, l.With(applogger.String("component", "scheduler")), m)
}

// ProvideTradeFilter keeps feed prints to the configured universe. Prints from
// an earlier day are dropped before they reach the book.
func ProvideTradeFilter(cfg *config.Config, book *repository.QuoteBook, m domrepo.Metrics) *middleware.TradeFilter {
	return middleware.NewTradeFilter(book, m,
		middleware.WithSymbols(cfg.Universe.Symbols),
		middleware.WithMaxAge(24*time.Hour),
	)
}

// ProvideTradeCollector feeds the Finnhub stream into the quote book. It
// returns nil when ticks come from Kafka.
func ProvideTradeCollector(cfg *config.Config, filter *middleware.TradeFilter, l *applogger.Logger, m domrepo.Metrics) *usecase.TradeCollector {
	if cfg.MarketData.Source != "finnhub" {
		return nil
	}
	stream := finnhub.New(cfg.Finnhub.APIKey, cfg.Finnhub.WebSocketURL, cfg.Universe.Symbols,
		cfg.Finnhub.ReconnectDelay, cfg.Finnhub.PingInterval, l)
	return usecase.NewTradeCollector(stream, filter, m, l)
}

// ProvideKafkaConsumer consumes the tick topic into the quote book. It returns
// nil unless ticks come from Kafka.
func ProvideKafkaConsumer(cfg *config.Config, filter *middleware.TradeFilter, reg *prometheus.Registry,
	l *applogger.Logger, m domrepo.Metrics) (*pkgkafka.Consumer, error) {
	if cfg.MarketData.Source != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerMetrics(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewKafkaTicksHandler(cfg.MarketData.Topic, filter, m))
	return consumer, nil
}

// ProvideCandleFlusher persists closed candles. It returns nil when ClickHouse
// is disabled.
func ProvideCandleFlusher(book *repository.QuoteBook, ch *pkgch.Client, l *applogger.Logger, m domrepo.Metrics) *usecase.CandleFlusher {
	if ch == nil {
		return nil
	}
	return usecase.NewCandleFlusher(book, repository.NewCHCandleStore(ch, l), 10*time.Second, m, l)
}

// ProvideHTTPServer builds the Echo server with the scanner API.
func ProvideHTTPServer(cfg *config.Config, reg *prometheus.Registry, scheduler *usecase.ScanScheduler,
	cycle *usecase.ScanCycle, buf *repository.ReportBuffer, collector *usecase.TradeCollector, l *applogger.Logger) *xhttp.Server {
	var feed api.FeedStatus
	if collector != nil {
		feed = collector
	}
	handler := api.NewScannerEchoHandler(l, scheduler, buf, cycle.Registry(), feed, ratelimit.New(600, 20))

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(handler, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, reg),
	)
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	scheduler *usecase.ScanScheduler,
	collector *usecase.TradeCollector,
	consumer *pkgkafka.Consumer,
	flusher *usecase.CandleFlusher,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, l, scheduler, collector, consumer, flusher, httpServer)
}
