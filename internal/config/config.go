package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	ServiceName string
	ServicePort int
	LogLevel    string
	Database    DatabaseConfig
	RabbitMQ    RabbitMQConfig
	Validation  ValidationConfig
	Anomaly     AnomalyConfig
	Rewards     *RewardConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string
	MaxConns int
}

// RabbitMQConfig holds RabbitMQ connection and queue settings
type RabbitMQConfig struct {
	URL string

	IngestExchange   string
	IngestQueue      string
	IngestRoutingKey string
	IngestDLQQueue   string

	ScoringQueue      string
	ScoringRoutingKey string
	ScoringDLQQueue   string

	EventsExchange             string
	BatchProcessedRoutingKey   string
	RewardCalculatedRoutingKey string

	PrefetchCount int
}

// ValidationConfig holds telemetry validation settings
type ValidationConfig struct {
	MaxFutureSeconds int
	MaxAgeDays       int
}

// AnomalyConfig holds outlier rejection settings
type AnomalyConfig struct {
	IQRFenceMultiplier float64
	MinGroupSize       int
}

// Load loads configuration from environment variables and the reward
// configuration file. A broken reward config is a startup failure, not
// something to limp along with.
func Load() (*Config, error) {
	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "depin-rewards-worker"),
		ServicePort: getEnvAsInt("SERVICE_PORT", 8082),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvAsInt("DATABASE_MAX_CONNS", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:              getEnv("RABBITMQ_URL", ""),
			IngestExchange:   getEnv("RABBITMQ_INGEST_EXCHANGE", "depin.telemetry.exchange"),
			IngestQueue:      getEnv("RABBITMQ_INGEST_QUEUE", "depin.telemetry.ingest.queue"),
			IngestRoutingKey: getEnv("RABBITMQ_INGEST_ROUTING_KEY", "telemetry.batch.raw"),
			IngestDLQQueue:   getEnv("RABBITMQ_INGEST_DLQ_QUEUE", "depin.telemetry.ingest.dlq"),

			ScoringQueue:      getEnv("RABBITMQ_SCORING_QUEUE", "depin.rewards.scoring.queue"),
			ScoringRoutingKey: getEnv("RABBITMQ_SCORING_ROUTING_KEY", "reward.calculate.request"),
			ScoringDLQQueue:   getEnv("RABBITMQ_SCORING_DLQ_QUEUE", "depin.rewards.scoring.dlq"),

			EventsExchange:             getEnv("RABBITMQ_EVENTS_EXCHANGE", "depin.worker.events.exchange"),
			BatchProcessedRoutingKey:   getEnv("RABBITMQ_BATCH_PROCESSED_ROUTING_KEY", "telemetry.batch.processed"),
			RewardCalculatedRoutingKey: getEnv("RABBITMQ_REWARD_CALCULATED_ROUTING_KEY", "reward.calculated"),

			PrefetchCount: getEnvAsInt("RABBITMQ_PREFETCH", 10),
		},
		Validation: ValidationConfig{
			MaxFutureSeconds: getEnvAsInt("VALIDATION_MAX_FUTURE_SECONDS", 3600),
			MaxAgeDays:       getEnvAsInt("VALIDATION_MAX_AGE_DAYS", 365),
		},
		Anomaly: AnomalyConfig{
			IQRFenceMultiplier: getEnvAsFloat("ANOMALY_IQR_FENCE_MULTIPLIER", 1.5),
			MinGroupSize:       getEnvAsInt("ANOMALY_MIN_GROUP_SIZE", 2),
		},
	}

	// Validate required fields
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required but not set in environment variables")
	}
	if cfg.RabbitMQ.URL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required but not set in environment variables")
	}

	rewards, err := LoadRewardConfig(getEnv("REWARD_CONFIG_PATH", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load reward configuration: %w", err)
	}
	cfg.Rewards = rewards

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
