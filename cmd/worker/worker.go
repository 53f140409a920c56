package main

import (
	"context"

	"github.com/septivank/depin-rewards-worker/internal/anomaly"
	"github.com/septivank/depin-rewards-worker/internal/config"
	"github.com/septivank/depin-rewards-worker/internal/db"
	"github.com/septivank/depin-rewards-worker/internal/metricstore"
	"github.com/septivank/depin-rewards-worker/internal/mq"
	"github.com/septivank/depin-rewards-worker/internal/repository"
	"github.com/septivank/depin-rewards-worker/internal/rewards"
	"github.com/septivank/depin-rewards-worker/internal/service"
	"github.com/septivank/depin-rewards-worker/internal/telemetry"
	"github.com/septivank/depin-rewards-worker/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startWorker wires one consumer per queue: telemetry batches and
// scoring requests. Both share the connection and the events publisher.
func startWorker(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	ingest *service.IngestProcessor,
	scoring *service.ScoringProcessor,
) error {
	// Create context for consumers that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	ingestConsumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.IngestQueue,
		DLQQueue:         cfg.RabbitMQ.IngestDLQQueue,
		Exchange:         cfg.RabbitMQ.IngestExchange,
		RoutingKey:       cfg.RabbitMQ.IngestRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: ingest.ProcessMessage,
	})
	if err != nil {
		cancel()
		return err
	}

	scoringConsumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.ScoringQueue,
		DLQQueue:         cfg.RabbitMQ.ScoringDLQQueue,
		Exchange:         cfg.RabbitMQ.IngestExchange,
		RoutingKey:       cfg.RabbitMQ.ScoringRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: scoring.ProcessMessage,
	})
	if err != nil {
		cancel()
		ingestConsumer.Close()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting worker consumers",
				zap.String("ingest_queue", cfg.RabbitMQ.IngestQueue),
				zap.String("scoring_queue", cfg.RabbitMQ.ScoringQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			if err := ingestConsumer.Start(ctx); err != nil {
				return err
			}
			return scoringConsumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := ingestConsumer.Close(); err != nil {
				logger.Error("failed to close ingest consumer", zap.Error(err))
				return err
			}
			if err := scoringConsumer.Close(); err != nil {
				logger.Error("failed to close scoring consumer", zap.Error(err))
				return err
			}
			logger.Info("worker stopped gracefully")
			return nil
		},
	})

	return nil
}

// startMetricsServer exposes Prometheus counters and the health endpoint
// on the service port.
func startMetricsServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, _ *telemetry.Counters) {
	server := telemetry.NewServer(cfg.ServicePort, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return server.Start()
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop(ctx)
		},
	})
}

// ProvideMetricRepository creates the metric repository
func ProvideMetricRepository(pool *db.Pool) repository.MetricRepository {
	return repository.NewMetrics(pool)
}

// ProvideRewardRepository creates the reward repository
func ProvideRewardRepository(pool *db.Pool) repository.RewardRepository {
	return repository.NewRewards(pool)
}

// ProvideDetector creates the IQR outlier detector
func ProvideDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.IQRFenceMultiplier, cfg.Anomaly.MinGroupSize)
}

// ProvideValidator creates the telemetry validator
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.MaxFutureSeconds, cfg.Validation.MaxAgeDays)
}

// ProvideMetricStore creates the metric store
func ProvideMetricStore(repo repository.MetricRepository, detector *anomaly.Detector, logger *zap.Logger) *metricstore.Store {
	return metricstore.NewStore(repo, detector, logger)
}

// ProvideRewardEngine creates the reward engine
func ProvideRewardEngine(repo repository.RewardRepository, cfg *config.Config, logger *zap.Logger) *rewards.Engine {
	return rewards.NewEngine(repo, cfg.Rewards, logger)
}

// ProvideCounters creates the Prometheus counters
func ProvideCounters() *telemetry.Counters {
	return telemetry.NewCounters()
}

// ProvidePublisher creates the events publisher
func ProvidePublisher(conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	return mq.NewPublisher(conn, cfg.RabbitMQ.EventsExchange, logger)
}

// ProvideIngestProcessor creates the ingest processor
func ProvideIngestProcessor(
	store *metricstore.Store,
	v *validator.Validator,
	publisher *mq.Publisher,
	counters *telemetry.Counters,
	cfg *config.Config,
	logger *zap.Logger,
) *service.IngestProcessor {
	return service.NewIngestProcessor(store, v, publisher, counters, cfg, logger)
}

// ProvideScoringProcessor creates the scoring processor
func ProvideScoringProcessor(
	engine *rewards.Engine,
	publisher *mq.Publisher,
	counters *telemetry.Counters,
	cfg *config.Config,
	logger *zap.Logger,
) *service.ScoringProcessor {
	return service.NewScoringProcessor(engine, publisher, counters, cfg, logger)
}

// ProvideDBPool creates the database pool
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL, cfg.Database.MaxConns)
}

// ProvideMQConnection creates the RabbitMQ connection
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}
