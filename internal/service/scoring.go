package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/septivank/depin-rewards-worker/internal/config"
	"github.com/septivank/depin-rewards-worker/internal/logging"
	"github.com/septivank/depin-rewards-worker/internal/rewards"
	"github.com/septivank/depin-rewards-worker/internal/telemetry"
	"github.com/septivank/depin-rewards-worker/internal/validator"
	"go.uber.org/zap"
)

// ScoringRequest asks the worker to score a batch of already-validated
// metrics for a device. The metrics travel with the request; the engine
// never re-fetches them from the metric store.
type ScoringRequest struct {
	RequestID   string                   `json:"request_id"`
	DeviceID    int64                    `json:"device_id"`
	Metrics     []validator.Metric       `json:"metrics"`
	Performance *rewards.PerformanceData `json:"performance_data"`
}

// RewardCalculatedEvent carries the persisted reward breakdown.
type RewardCalculatedEvent struct {
	RequestID    string             `json:"request_id"`
	DeviceID     int64              `json:"device_id"`
	MetricCount  int                `json:"metric_count"`
	BaseReward   float64            `json:"base_reward"`
	Multipliers  map[string]float64 `json:"multipliers"`
	FinalReward  float64            `json:"final_reward"`
	CalculatedAt time.Time          `json:"calculated_at"`
}

// ScoringProcessor handles reward calculation requests.
type ScoringProcessor struct {
	engine    *rewards.Engine
	publisher EventPublisher
	counters  *telemetry.Counters
	cfg       *config.Config
	logger    *zap.Logger
}

// NewScoringProcessor creates a new scoring processor
func NewScoringProcessor(
	engine *rewards.Engine,
	publisher EventPublisher,
	counters *telemetry.Counters,
	cfg *config.Config,
	logger *zap.Logger,
) *ScoringProcessor {
	return &ScoringProcessor{
		engine:    engine,
		publisher: publisher,
		counters:  counters,
		cfg:       cfg,
		logger:    logger,
	}
}

// ProcessMessage computes and persists a reward calculation for one
// scoring request, then publishes the breakdown.
func (p *ScoringProcessor) ProcessMessage(ctx context.Context, body []byte) error {
	var req ScoringRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return fmt.Errorf("failed to unmarshal scoring request: %w", err)
	}

	reqLogger := logging.WithRequestID(p.logger, req.RequestID)
	reqLogger.Info("processing scoring request",
		zap.Int64("device_id", req.DeviceID),
		zap.Int("metric_count", len(req.Metrics)),
	)

	calc, err := p.engine.CalculateRewards(ctx, req.DeviceID, req.Metrics, req.Performance)
	if err != nil {
		reqLogger.Error("failed to calculate rewards", zap.Error(err))
		return fmt.Errorf("failed to calculate rewards: %w", err)
	}

	p.counters.RewardsCalculated.Inc()

	event := RewardCalculatedEvent{
		RequestID:    req.RequestID,
		DeviceID:     calc.DeviceID,
		MetricCount:  calc.MetricCount,
		BaseReward:   calc.BaseReward,
		Multipliers:  calc.Multipliers,
		FinalReward:  calc.FinalReward,
		CalculatedAt: calc.CalculatedAt,
	}
	if err := p.publisher.Publish(ctx, p.cfg.RabbitMQ.RewardCalculatedRoutingKey, event); err != nil {
		reqLogger.Error("failed to publish reward breakdown", zap.Error(err))
	}

	return nil
}
