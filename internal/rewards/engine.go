package rewards

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/septivank/depin-rewards-worker/internal/config"
	"github.com/septivank/depin-rewards-worker/internal/db"
	"github.com/septivank/depin-rewards-worker/internal/repository"
	"github.com/septivank/depin-rewards-worker/internal/validator"
	"go.uber.org/zap"
)

// penaltyFallbackBase anchors penalties for devices without any reward
// history.
const penaltyFallbackBase = 100

// leaderboardWindow is the trailing period the leaderboard covers.
const leaderboardWindow = 30 * 24 * time.Hour

// penaltyHistoryDepth is how many recent rewards a penalty averages.
const penaltyHistoryDepth = 10

// PerformanceData is an externally supplied performance summary for a
// device. Fields are pointers: an absent field leaves its multiplier at
// the neutral 1.0 rather than punishing the device for silence.
type PerformanceData struct {
	Uptime        *float64 `json:"uptime"`
	LatencyMS     *float64 `json:"latency"`
	VerifiedRatio *float64 `json:"verified_ratio"`
}

// Engine converts metric batches and performance signals into bounded,
// auditable reward amounts. It never reads the metric store: callers
// supply the metrics they want scored.
type Engine struct {
	repo   repository.RewardRepository
	cfg    *config.RewardConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a reward engine
func NewEngine(repo repository.RewardRepository, cfg *config.RewardConfig, logger *zap.Logger) *Engine {
	return &Engine{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// CalculateRewards runs the deterministic scoring pipeline: base reward
// from metric count, a data quality multiplier, performance multipliers,
// multiplicative composition, then clamping to the configured bounds.
// The full breakdown is persisted immutably and returned.
func (e *Engine) CalculateRewards(ctx context.Context, deviceID int64, metrics []validator.Metric, perf *PerformanceData) (*db.RewardCalculation, error) {
	now := e.now()

	metricCount := len(metrics)
	baseReward := e.cfg.BaseRewardRate * float64(metricCount)

	multipliers := map[string]float64{
		"data_quality": 1.0,
		"uptime":       1.0,
		"latency":      1.0,
		"verification": 1.0,
	}

	if metricCount > 0 {
		score := qualityScore(metrics, now)
		multipliers["data_quality"] = e.qualityMultiplier(score)
	}

	if perf != nil {
		if perf.Uptime != nil {
			multipliers["uptime"] = e.uptimeMultiplier(*perf.Uptime)
		}
		if perf.LatencyMS != nil {
			multipliers["latency"] = e.latencyMultiplier(*perf.LatencyMS)
		}
		if perf.VerifiedRatio != nil {
			multipliers["verification"] = e.verificationMultiplier(*perf.VerifiedRatio)
		}
	}

	finalReward := baseReward
	for _, m := range multipliers {
		finalReward *= m
	}
	finalReward = math.Max(e.cfg.MinReward, math.Min(e.cfg.MaxReward, finalReward))

	calc := &db.RewardCalculation{
		DeviceID:     deviceID,
		MetricCount:  metricCount,
		BaseReward:   baseReward,
		Multipliers:  multipliers,
		FinalReward:  finalReward,
		CalculatedAt: now.UTC(),
	}

	if err := e.repo.InsertCalculation(ctx, calc); err != nil {
		return nil, fmt.Errorf("failed to persist reward calculation: %w", err)
	}

	e.logger.Info("calculated reward",
		zap.Int64("device_id", deviceID),
		zap.Int("metric_count", metricCount),
		zap.Float64("final_reward", finalReward),
	)

	return calc, nil
}

// ApplyPenalty computes the penalty amount for a violation: the average
// of the device's 10 most recent final rewards times the configured
// percentage, or a fixed base when no history exists. It only computes;
// applying the amount against a balance is the caller's responsibility.
func (e *Engine) ApplyPenalty(ctx context.Context, deviceID int64, violationType string) (float64, error) {
	percentage, ok := e.cfg.Penalties[violationType]
	if !ok || percentage == 0 {
		e.logger.Warn("unknown violation type",
			zap.Int64("device_id", deviceID),
			zap.String("violation_type", violationType),
		)
		return 0, nil
	}

	recent, err := e.repo.RecentFinalRewards(ctx, deviceID, penaltyHistoryDepth)
	if err != nil {
		return 0, fmt.Errorf("failed to load recent rewards for device %d: %w", deviceID, err)
	}

	var amount float64
	if len(recent) > 0 {
		amount = mean(recent) * percentage
	} else {
		amount = penaltyFallbackBase * math.Abs(percentage)
	}

	e.logger.Info("computed penalty",
		zap.Int64("device_id", deviceID),
		zap.String("violation_type", violationType),
		zap.Float64("amount", amount),
	)

	return amount, nil
}

// DistributeRewards appends a ledger entry. Nothing here validates the
// amount against a prior calculation or a balance; the ledger records
// what the settlement layer tells it, and double-distribution is that
// layer's problem to prevent.
func (e *Engine) DistributeRewards(ctx context.Context, deviceID int64, amount float64, rewardType string, txRef *string) (*db.RewardLedgerEntry, error) {
	if rewardType == "" {
		rewardType = "metrics"
	}

	entry := &db.RewardLedgerEntry{
		DeviceID:      deviceID,
		Amount:        amount,
		RewardType:    rewardType,
		DistributedAt: e.now().UTC(),
		TxRef:         txRef,
	}

	if err := e.repo.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record distribution: %w", err)
	}

	e.logger.Info("recorded reward distribution",
		zap.Int64("device_id", deviceID),
		zap.Float64("amount", amount),
		zap.String("reward_type", rewardType),
	)

	return entry, nil
}

// TotalRewards sums ledger entries for a device within the trailing
// window of days. Returns 0 when the window is empty.
func (e *Engine) TotalRewards(ctx context.Context, deviceID int64, days int) (float64, error) {
	since := e.now().Add(-time.Duration(days) * 24 * time.Hour)

	total, err := e.repo.SumLedger(ctx, deviceID, since)
	if err != nil {
		return 0, fmt.Errorf("failed to total rewards for device %d: %w", deviceID, err)
	}

	return total, nil
}

// Leaderboard returns the top devices by distributed rewards over the
// trailing 30 days, strictly non-increasing by total.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]db.LeaderboardEntry, error) {
	since := e.now().Add(-leaderboardWindow)

	entries, err := e.repo.Leaderboard(ctx, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}

	return entries, nil
}

func (e *Engine) qualityMultiplier(score float64) float64 {
	q := e.cfg.Multipliers.DataQuality
	switch {
	case score >= 0.8:
		return q.Excellent
	case score >= 0.6:
		return q.Good
	case score >= 0.4:
		return q.Average
	default:
		return q.Poor
	}
}

func (e *Engine) uptimeMultiplier(uptime float64) float64 {
	u := e.cfg.Multipliers.Uptime
	switch {
	case uptime >= 0.95:
		return u.High
	case uptime >= 0.90:
		return u.Medium
	default:
		return u.Low
	}
}

func (e *Engine) latencyMultiplier(latencyMS float64) float64 {
	l := e.cfg.Multipliers.Latency
	switch {
	case latencyMS < 100:
		return l.Low
	case latencyMS < 500:
		return l.Medium
	default:
		return l.High
	}
}

func (e *Engine) verificationMultiplier(ratio float64) float64 {
	v := e.cfg.Multipliers.Verification
	if ratio >= 0.8 {
		return v.Verified
	}
	return v.Unverified
}
