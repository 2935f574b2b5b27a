//go:build wireinject
// +build wireinject

package di

import (
	"ShortScan/pkg/config"
	"ShortScan/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Market data and gateways
		ProvideQuoteBook,
		ProvideMarketData,
		ProvideFundamentals,
		ProvideUniverse,
		ProvideOrderGateway,

		// Sinks
		ProvideReportBuffer,
		ProvideKafkaReportPublisher,
		ProvideReportSinks,
		ProvideTradeSinks,

		// Use cases
		ProvideSignalParams,
		ProvideTradeSequencer,
		ProvideSessionCache,
		ProvideScanCycle,
		ProvideScanScheduler,
		ProvideTradeFilter,
		ProvideTradeCollector,
		ProvideKafkaConsumer,
		ProvideCandleFlusher,

		// Application server
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}
