package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"SynthCast/internal/domain/repository"
	domsvc "SynthCast/internal/domain/service"
	"SynthCast/internal/handler/api"
	mid "SynthCast/internal/middleware"
	internalrepo "SynthCast/internal/repository"
	icache "SynthCast/internal/service/cache"
	"SynthCast/internal/service/calibration"
	"SynthCast/internal/service/marketdata"
	"SynthCast/internal/service/stream"
	"SynthCast/internal/services/scoring"
	"SynthCast/internal/services/simulation"
	"SynthCast/internal/usecase"
	pkgcache "SynthCast/pkg/cache"
	pkgch "SynthCast/pkg/clickhouse"
	"SynthCast/pkg/config"
	pkgkafka "SynthCast/pkg/kafka"
	applogger "SynthCast/pkg/logger"
	"SynthCast/pkg/metrics"
	"SynthCast/pkg/queue"
	"SynthCast/pkg/server"

	"github.com/redis/go-redis/v9"
)

// ProvideLogger creates the application logger. Production gets JSON,
// everything else console.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures the schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db := cfg.ClickHouse.Database
	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + db,
		"CREATE TABLE IF NOT EXISTS " + db + ".ticks_raw (ts DateTime, asset String, price Float64, volume Float64, event_id String) ENGINE=MergeTree ORDER BY (asset, ts)",
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideTickStorage creates ClickHouse tick storage.
func ProvideTickStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseTickStore(chClient.DB(), cfg.ClickHouse.Database+".ticks_raw")
}

// ProvideTickPublisher creates the Kafka tick publisher.
func ProvideTickPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaTickPublisher(producer, cfg.Kafka.TicksTopic)
}

// ProvideEventPublisher creates the forecast/score event publisher.
func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.EventPublisher {
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.ForecastTopic, cfg.Kafka.ScoreTopic)
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideKafkaTicksHandler registers the handler for the ticks topic.
func ProvideKafkaTicksHandler(store repository.Storage, metrics repository.Metrics, cfg *config.Config) *usecase.KafkaTicksHandler {
	return usecase.NewKafkaTicksHandler(cfg.Kafka.TicksTopic, store, metrics)
}

// ProvideMarketStream creates the exchange WebSocket stream.
func ProvideMarketStream(cfg *config.Config) repository.MarketStream {
	return stream.New(
		cfg.Stream.APIKey,
		cfg.Stream.WebSocketURL,
		cfg.Stream.Assets,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
	)
}

// ProvideCandleStore creates read access to aggregated candles.
func ProvideCandleStore(chClient *pkgch.Client, cfg *config.Config, l *applogger.Logger) repository.CandleStore {
	store := internalrepo.NewCHCandleStore(chClient, cfg.ClickHouse.Database+".ticks_raw")
	store.SetLogger(l)
	return store
}

// ProvideMarketData creates the calibration statistics source.
func ProvideMarketData(candles repository.CandleStore, ticks repository.Storage, metrics repository.Metrics, l *applogger.Logger) repository.MarketData {
	return marketdata.New(candles, ticks, metrics, l)
}

// ProvideCalibrationCache creates the per-asset calibration cache. When the
// Redis mirror is enabled, entries are shared across replicas.
func ProvideCalibrationCache(cfg *config.Config, md repository.MarketData, metrics repository.Metrics, l *applogger.Logger) *calibration.Cache {
	opts := []calibration.Option{
		calibration.WithTTL(cfg.Calibration.TTL),
		calibration.WithWindow(cfg.Calibration.Window),
		calibration.WithFetchTimeout(cfg.Calibration.FetchTimeout),
	}

	if cfg.Calibration.Redis.Enabled {
		host, port := splitHostPort(cfg.Calibration.Redis.Addr)
		mirror, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisHost(host),
			pkgcache.WithRedisPort(port),
			pkgcache.WithRedisPassword(cfg.Calibration.Redis.Password),
			pkgcache.WithRedisDB(cfg.Calibration.Redis.DB),
		)
		if err != nil {
			l.Warn("calibration mirror unavailable, running local-only", applogger.Error(err))
		} else {
			// Layered mirror keeps a hot in-process copy in front of Redis.
			opts = append(opts, calibration.WithMirror(pkgcache.NewLayeredCache(mirror)))
		}
	}

	return calibration.New(md, metrics, l, opts...)
}

// ProvideScorer creates the CRPS scorer.
func ProvideScorer() domsvc.Scorer {
	return scoring.NewCRPSScorer()
}

// ProvideEnsemble builds the three-member ensemble from configured
// parameters and weights.
func ProvideEnsemble(cfg *config.Config, calib *calibration.Cache, metrics repository.Metrics, l *applogger.Logger) (*usecase.Ensemble, error) {
	w := cfg.Simulation.Ensemble.Weights
	members := []usecase.MemberModel{
		{Name: "RandomWalk", Generator: simulation.NewRandomWalk(cfg.Simulation.RandomWalk.Sigma), Weight: w[0]},
		{Name: "GBM", Generator: simulation.NewGBM(cfg.Simulation.GBM.Mu, cfg.Simulation.GBM.Sigma), Weight: w[1]},
		{Name: "MeanReversion", Generator: simulation.NewMeanReversion(0, cfg.Simulation.MeanReversion.Alpha, cfg.Simulation.MeanReversion.Sigma), Weight: w[2]},
	}
	return usecase.NewEnsemble(members, calib, metrics, l)
}

// ProvideScoreQueue creates the Redis-backed deferred scoring queue. Returns
// nil when scoring is disabled or Redis is not configured.
func ProvideScoreQueue(
	cfg *config.Config,
	candles repository.CandleStore,
	scorer domsvc.Scorer,
	events repository.EventPublisher,
	metrics repository.Metrics,
	l *applogger.Logger,
) *queue.RedisQueue {
	if !cfg.Scoring.QueueEnabled || !cfg.Calibration.Redis.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Calibration.Redis.Addr,
		Password: cfg.Calibration.Redis.Password,
		DB:       cfg.Calibration.Redis.DB,
	})

	job := usecase.NewScoreForecastJob(candles, scorer, events, metrics, l)
	return queue.NewRedisConsumer(l, &queue.QueueConfig{
		Workers:    cfg.Scoring.Workers,
		RetryLimit: 5,
		RetryDelay: cfg.Scoring.Delay,
	}, client, []queue.Job{job})
}

// ProvideForecastUseCase creates the forecast orchestrator.
func ProvideForecastUseCase(
	ensemble *usecase.Ensemble,
	md repository.MarketData,
	metrics repository.Metrics,
	l *applogger.Logger,
	events repository.EventPublisher,
	scoreQueue *queue.RedisQueue,
) *usecase.ForecastUseCase {
	var jobs queue.QueueService
	if scoreQueue != nil {
		jobs = scoreQueue
	}
	return usecase.NewForecastUseCase(ensemble, md, metrics, l, events, jobs)
}

// ProvideScoreUseCase creates the ad-hoc scoring use case.
func ProvideScoreUseCase(scorer domsvc.Scorer, metrics repository.Metrics, l *applogger.Logger, events repository.EventPublisher) *usecase.ScoreUseCase {
	return usecase.NewScoreUseCase(scorer, metrics, l, events)
}

// ProvideCandlesUseCase creates the candle retrieval use case.
func ProvideCandlesUseCase(candles repository.CandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(candles)
}

// ProvideTickProcessor creates the tick routing use case.
func ProvideTickProcessor(
	pub repository.Publisher,
	store repository.Storage,
	metrics repository.Metrics,
	cfg *config.Config,
) *usecase.TickProcessor {
	return usecase.NewTickProcessor(
		pub,
		store,
		metrics,
		cfg.Ingest.Backend,
		cfg.Ingest.BatchSize,
		cfg.Ingest.BatchTimeout,
	)
}

// ProvideTickCollector creates the stream-to-backend collector.
func ProvideTickCollector(
	stream repository.MarketStream,
	processor *usecase.TickProcessor,
	metrics repository.Metrics,
) *usecase.TickCollector {
	// Middleware pipeline between the WebSocket and the ingest backend
	pipe := mid.NewIngestPipeline(processor, metrics,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewTickCollector(stream, processor, metrics, pipe)
}

// ProvideForecastHandler creates the HTTP handler with health probes wired.
func ProvideForecastHandler(
	cfg *config.Config,
	l *applogger.Logger,
	forecast *usecase.ForecastUseCase,
	score *usecase.ScoreUseCase,
	candles *usecase.CandlesUseCase,
	storage repository.Storage,
	collector *usecase.TickCollector,
) *api.ForecastHandler {
	h := api.NewForecastHandler(l, forecast, score, candles)
	h.SetHealthProbes(storage, collector)
	// Redis-backed response cache lets replicas share hot candle responses.
	if cfg.Calibration.Redis.Enabled {
		h.SetCache(icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Calibration.Redis.Addr,
			Password: cfg.Calibration.Redis.Password,
			DB:       cfg.Calibration.Redis.DB,
		}))
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	producer *pkgkafka.Producer,
	collector *usecase.TickCollector,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaTicksHandler,
	chClient *pkgch.Client,
	handler *api.ForecastHandler,
	scoreQueue *queue.RedisQueue,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}

	// Production aggregates repeated error logs onto a Kafka topic.
	if cfg.Environment == "production" {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.LogsTopic,
			Publisher:      producer,
		})
	}
	app := server.New(cfg, l, collector, consumer, kh, chClient, scoreQueue)
	app.SetHTTPHandler(handler)
	if collector != nil {
		app.TickProc = collector.Processor()
	}
	return app
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}
