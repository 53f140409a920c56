package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/depin-rewards-worker/internal/db"
)

// Rewards is the PostgreSQL implementation of RewardRepository.
type Rewards struct {
	pool *pgxpool.Pool
}

// NewRewards creates a new reward repository
func NewRewards(pool *pgxpool.Pool) *Rewards {
	return &Rewards{pool: pool}
}

// InsertCalculation persists a reward breakdown. The multiplier map is
// stored as JSON so the full audit trail survives table changes.
func (r *Rewards) InsertCalculation(ctx context.Context, calc *db.RewardCalculation) error {
	multipliers, err := json.Marshal(calc.Multipliers)
	if err != nil {
		return fmt.Errorf("failed to marshal multipliers: %w", err)
	}

	query := `
		INSERT INTO rewards
			(device_id, metric_count, base_reward, multipliers, penalties, final_reward, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err = r.pool.QueryRow(ctx, query,
		calc.DeviceID,
		calc.MetricCount,
		calc.BaseReward,
		multipliers,
		calc.Penalties,
		calc.FinalReward,
		calc.CalculatedAt,
	).Scan(&calc.ID)
	if err != nil {
		return fmt.Errorf("failed to insert reward calculation: %w", err)
	}

	return nil
}

// RecentFinalRewards returns the most recent final rewards, newest first.
func (r *Rewards) RecentFinalRewards(ctx context.Context, deviceID int64, limit int) ([]float64, error) {
	query := `
		SELECT final_reward
		FROM rewards
		WHERE device_id = $1
		ORDER BY calculated_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent rewards: %w", err)
	}
	defer rows.Close()

	var rewards []float64
	for rows.Next() {
		var reward float64
		if err := rows.Scan(&reward); err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, reward)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return rewards, nil
}

// InsertLedgerEntry appends a distribution to the ledger.
func (r *Rewards) InsertLedgerEntry(ctx context.Context, entry *db.RewardLedgerEntry) error {
	query := `
		INSERT INTO reward_history (device_id, reward_amount, reward_type, distributed_at, tx_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		entry.DeviceID,
		entry.Amount,
		entry.RewardType,
		entry.DistributedAt,
		entry.TxRef,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}

	return nil
}

// SumLedger totals ledger amounts for a device since a point in time.
func (r *Rewards) SumLedger(ctx context.Context, deviceID int64, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(SUM(reward_amount), 0)
		FROM reward_history
		WHERE device_id = $1 AND distributed_at >= $2
	`

	var total float64
	if err := r.pool.QueryRow(ctx, query, deviceID, since).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum ledger: %w", err)
	}

	return total, nil
}

// Leaderboard groups ledger entries by device, ordered by total
// descending. Ties break on ascending device id so output is
// deterministic.
func (r *Rewards) Leaderboard(ctx context.Context, since time.Time, limit int) ([]db.LeaderboardEntry, error) {
	query := `
		SELECT device_id, SUM(reward_amount) AS total_rewards, COUNT(*) AS reward_count
		FROM reward_history
		WHERE distributed_at >= $1
		GROUP BY device_id
		ORDER BY total_rewards DESC, device_id ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []db.LeaderboardEntry
	for rows.Next() {
		var entry db.LeaderboardEntry
		if err := rows.Scan(&entry.DeviceID, &entry.TotalRewards, &entry.RewardCount); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}
