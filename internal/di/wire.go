//go:build wireinject
// +build wireinject

package di

import (
	"SynthCast/pkg/config"
	"SynthCast/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideTickStorage,
		ProvideTickPublisher,
		ProvideEventPublisher,
		ProvideCandleStore,
		ProvideMarketStream,

		// Services
		ProvideMarketData,
		ProvideCalibrationCache,
		ProvideScorer,
		ProvideScoreQueue,

		// Use cases
		ProvideEnsemble,
		ProvideForecastUseCase,
		ProvideScoreUseCase,
		ProvideCandlesUseCase,
		ProvideTickProcessor,
		ProvideTickCollector,
		ProvideKafkaTicksHandler,

		// HTTP
		ProvideForecastHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
