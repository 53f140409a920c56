package repository

import (
	"context"
	"errors"
	"time"

	"github.com/septivank/depin-rewards-worker/internal/db"
	"github.com/septivank/depin-rewards-worker/internal/validator"
)

// ErrNoData reports a query that matched nothing where the caller asked
// about a specific device. A zero-valued aggregate is a success; this is
// not.
var ErrNoData = errors.New("no data found")

// MetricQuery filters a metric lookup. Zero-valued fields are ignored;
// the remaining filters combine with AND.
type MetricQuery struct {
	DeviceID  int64
	DataType  string
	StartTime *int64
	EndTime   *int64
	Limit     int
}

// WindowStats is the arithmetic over one aggregation window.
type WindowStats struct {
	Avg   float64
	Min   float64
	Max   float64
	Count int64
}

// MetricRepository owns persistence of metric records and aggregate
// snapshots. Implementations are opened on startup and closed on
// shutdown; none of them keep ambient global state.
type MetricRepository interface {
	// InsertMetrics appends a batch of validated readings for a device,
	// assigning ids and creation timestamps. The whole batch commits
	// atomically or not at all.
	InsertMetrics(ctx context.Context, deviceID int64, metrics []validator.Metric) (int, error)

	// QueryMetrics returns matching records ordered by timestamp
	// descending.
	QueryMetrics(ctx context.Context, q MetricQuery) ([]db.MetricRecord, error)

	// WindowStats computes avg/min/max/count over a time window.
	WindowStats(ctx context.Context, deviceID int64, dataType string, startTime, endTime int64) (WindowStats, error)

	// InsertSnapshot persists an aggregate snapshot.
	InsertSnapshot(ctx context.Context, snapshot *db.AggregateSnapshot) error

	// DeviceStatistics returns totals and a per-data-type breakdown.
	DeviceStatistics(ctx context.Context, deviceID int64) (*db.DeviceStatistics, error)

	// DeleteMetricsBefore removes records older than cutoff and returns
	// the deleted count.
	DeleteMetricsBefore(ctx context.Context, cutoff int64) (int64, error)
}

// RewardRepository owns persistence of reward calculations and the
// distribution ledger. It is not linked to the metric store;
// correlating the two is the caller's job.
type RewardRepository interface {
	// InsertCalculation persists a reward breakdown and assigns its id.
	InsertCalculation(ctx context.Context, calc *db.RewardCalculation) error

	// RecentFinalRewards returns the most recent final reward amounts
	// for a device, newest first.
	RecentFinalRewards(ctx context.Context, deviceID int64, limit int) ([]float64, error)

	// InsertLedgerEntry appends a distribution to the ledger.
	InsertLedgerEntry(ctx context.Context, entry *db.RewardLedgerEntry) error

	// SumLedger totals ledger amounts for a device since a point in
	// time.
	SumLedger(ctx context.Context, deviceID int64, since time.Time) (float64, error)

	// Leaderboard groups ledger entries since a point in time by device
	// and returns the top totals in descending order.
	Leaderboard(ctx context.Context, since time.Time, limit int) ([]db.LeaderboardEntry, error)
}
