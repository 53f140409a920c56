package metricstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/septivank/depin-rewards-worker/internal/anomaly"
	"github.com/septivank/depin-rewards-worker/internal/db"
	"github.com/septivank/depin-rewards-worker/internal/repository"
	"github.com/septivank/depin-rewards-worker/internal/validator"
	"go.uber.org/zap"
)

// ErrUnknownPeriod reports an aggregation period outside hour/day/week.
var ErrUnknownPeriod = errors.New("unknown aggregation period")

// periodSeconds maps an aggregation period to its window length.
var periodSeconds = map[string]int64{
	"hour": 3600,
	"day":  86400,
	"week": 604800,
}

// Store owns metric persistence, outlier cleaning and windowed
// aggregation. It expects already-validated records; the validator runs
// upstream.
type Store struct {
	repo     repository.MetricRepository
	detector *anomaly.Detector
	logger   *zap.Logger
	now      func() time.Time
}

// NewStore creates a metric store
func NewStore(repo repository.MetricRepository, detector *anomaly.Detector, logger *zap.Logger) *Store {
	return &Store{
		repo:     repo,
		detector: detector,
		logger:   logger,
		now:      time.Now,
	}
}

// Clean drops incomplete records, then rejects per-data-type outliers
// via IQR fencing. Returns the retained records in input order and the
// number of outliers dropped.
func (s *Store) Clean(metrics []validator.Metric) ([]validator.Metric, int) {
	if len(metrics) == 0 {
		return nil, 0
	}

	// Re-check what the validator already guarantees; cleaning is also
	// called directly by callers that bypass ingestion.
	complete := make([]validator.Metric, 0, len(metrics))
	for _, m := range metrics {
		if m.DataType == "" || math.IsNaN(m.Value) {
			continue
		}
		complete = append(complete, m)
	}

	kept, dropped := s.detector.FilterOutliers(complete)

	s.logger.Debug("cleaned metric batch",
		zap.Int("in", len(metrics)),
		zap.Int("out", len(kept)),
		zap.Int("outliers_dropped", dropped),
	)

	return kept, dropped
}

// StoreMetrics appends a batch of cleaned records for a device. Each row
// gets a server-assigned id and creation timestamp. The batch commits
// atomically: a storage failure leaves nothing behind. Re-submitting the
// same reading creates a second row; deduplication is not this layer's
// job.
func (s *Store) StoreMetrics(ctx context.Context, deviceID int64, metrics []validator.Metric) (int, error) {
	if len(metrics) == 0 {
		return 0, nil
	}

	stored, err := s.repo.InsertMetrics(ctx, deviceID, metrics)
	if err != nil {
		return 0, fmt.Errorf("failed to store metrics for device %d: %w", deviceID, err)
	}

	s.logger.Info("stored metrics",
		zap.Int64("device_id", deviceID),
		zap.Int("count", stored),
	)

	return stored, nil
}

// GetMetrics returns matching records ordered by timestamp descending.
// All filters are optional and AND-combined.
func (s *Store) GetMetrics(ctx context.Context, q repository.MetricQuery) ([]db.MetricRecord, error) {
	return s.repo.QueryMetrics(ctx, q)
}

// Aggregate computes avg/min/max/count for a device and data type over
// the trailing window named by period. With zero matching records it
// returns nil and persists nothing; otherwise it persists and returns a
// new snapshot. Repeated calls within the same window intentionally
// create overlapping snapshots, since the window end is always now.
func (s *Store) Aggregate(ctx context.Context, deviceID int64, dataType, period string) (*db.AggregateSnapshot, error) {
	length, ok := periodSeconds[period]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}

	now := s.now().Unix()
	startTime := now - length

	stats, err := s.repo.WindowStats(ctx, deviceID, dataType, startTime, now)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate device %d: %w", deviceID, err)
	}

	if stats.Count == 0 {
		return nil, nil
	}

	snapshot := &db.AggregateSnapshot{
		DeviceID:  deviceID,
		Period:    period,
		StartTime: startTime,
		EndTime:   now,
		AvgValue:  stats.Avg,
		MinValue:  stats.Min,
		MaxValue:  stats.Max,
		Count:     stats.Count,
		DataType:  dataType,
		CreatedAt: s.now().UTC(),
	}

	if err := s.repo.InsertSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist snapshot for device %d: %w", deviceID, err)
	}

	s.logger.Info("aggregated metrics",
		zap.Int64("device_id", deviceID),
		zap.String("data_type", dataType),
		zap.String("period", period),
		zap.Int64("count", stats.Count),
	)

	return snapshot, nil
}

// DeviceStatistics returns totals and a per-data-type breakdown for a
// device. A device with no stored records yields ErrNoData.
func (s *Store) DeviceStatistics(ctx context.Context, deviceID int64) (*db.DeviceStatistics, error) {
	stats, err := s.repo.DeviceStatistics(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics for device %d: %w", deviceID, err)
	}

	if stats.TotalMetrics == 0 {
		return nil, fmt.Errorf("device %d: %w", deviceID, repository.ErrNoData)
	}

	return stats, nil
}

// CleanupOldData deletes records older than the retention window and
// returns the deleted count.
func (s *Store) CleanupOldData(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().Unix() - int64(retentionDays)*86400

	deleted, err := s.repo.DeleteMetricsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up old metrics: %w", err)
	}

	s.logger.Info("cleaned up old metrics",
		zap.Int("retention_days", retentionDays),
		zap.Int64("deleted", deleted),
	)

	return deleted, nil
}
