package db

import "time"

// MetricRecord is a stored telemetry reading. Rows are immutable once
// written; only retention cleanup removes them.
type MetricRecord struct {
	ID         int64
	DeviceID   int64
	Timestamp  int64
	Value      float64
	DataType   string
	IsVerified bool
	CreatedAt  time.Time
}

// AggregateSnapshot is a persisted summary over a trailing time window.
// Snapshots are informational, not authoritative: repeated aggregation
// within the same window produces overlapping rows.
type AggregateSnapshot struct {
	ID        int64
	DeviceID  int64
	Period    string
	StartTime int64
	EndTime   int64
	AvgValue  float64
	MinValue  float64
	MaxValue  float64
	Count     int64
	DataType  string
	CreatedAt time.Time
}

// RewardCalculation is the full breakdown of one scoring run.
type RewardCalculation struct {
	ID           int64
	DeviceID     int64
	MetricCount  int
	BaseReward   float64
	Multipliers  map[string]float64
	Penalties    float64
	FinalReward  float64
	CalculatedAt time.Time
}

// RewardLedgerEntry is one row of the append-only distribution ledger.
// The ledger records distributions, it is not a balance.
type RewardLedgerEntry struct {
	ID            int64
	DeviceID      int64
	Amount        float64
	RewardType    string
	DistributedAt time.Time
	TxRef         *string
}

// DeviceStatistics summarizes everything stored for one device.
type DeviceStatistics struct {
	DeviceID       int64
	TotalMetrics   int64
	DataTypes      int64
	FirstTimestamp int64
	LastTimestamp  int64
	ByType         map[string]TypeStatistics
}

// TypeStatistics is the per-data-type portion of DeviceStatistics.
type TypeStatistics struct {
	Count    int64
	AvgValue float64
	MinValue float64
	MaxValue float64
}

// LeaderboardEntry is one row of the reward leaderboard.
type LeaderboardEntry struct {
	DeviceID     int64
	TotalRewards float64
	RewardCount  int64
}
