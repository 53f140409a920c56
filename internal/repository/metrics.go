package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/septivank/depin-rewards-worker/internal/db"
	"github.com/septivank/depin-rewards-worker/internal/validator"
)

// Metrics is the PostgreSQL implementation of MetricRepository.
type Metrics struct {
	pool *pgxpool.Pool
}

// NewMetrics creates a new metric repository
func NewMetrics(pool *pgxpool.Pool) *Metrics {
	return &Metrics{pool: pool}
}

// InsertMetrics appends a batch of readings inside one transaction.
func (r *Metrics) InsertMetrics(ctx context.Context, deviceID int64, metrics []validator.Metric) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO metrics (device_id, timestamp, value, data_type, is_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	now := time.Now().UTC()
	for _, m := range metrics {
		if _, err := tx.Exec(ctx, query, deviceID, m.Timestamp, m.Value, m.DataType, m.IsVerified, now); err != nil {
			return 0, fmt.Errorf("failed to insert metric: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit metric batch: %w", err)
	}

	return len(metrics), nil
}

// QueryMetrics returns matching records ordered by timestamp descending.
func (r *Metrics) QueryMetrics(ctx context.Context, q MetricQuery) ([]db.MetricRecord, error) {
	query := `
		SELECT id, device_id, timestamp, value, data_type, is_verified, created_at
		FROM metrics
		WHERE device_id = $1
	`
	args := []interface{}{q.DeviceID}

	if q.DataType != "" {
		args = append(args, q.DataType)
		query += fmt.Sprintf(" AND data_type = $%d", len(args))
	}
	if q.StartTime != nil {
		args = append(args, *q.StartTime)
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if q.EndTime != nil {
		args = append(args, *q.EndTime)
		query += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	query += " ORDER BY timestamp DESC"

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var records []db.MetricRecord
	for rows.Next() {
		var rec db.MetricRecord
		if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.Timestamp, &rec.Value, &rec.DataType, &rec.IsVerified, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// WindowStats computes avg/min/max/count over a time window.
func (r *Metrics) WindowStats(ctx context.Context, deviceID int64, dataType string, startTime, endTime int64) (WindowStats, error) {
	query := `
		SELECT
			COALESCE(AVG(value), 0),
			COALESCE(MIN(value), 0),
			COALESCE(MAX(value), 0),
			COUNT(*)
		FROM metrics
		WHERE device_id = $1
			AND data_type = $2
			AND timestamp >= $3
			AND timestamp <= $4
	`

	var stats WindowStats
	err := r.pool.QueryRow(ctx, query, deviceID, dataType, startTime, endTime).Scan(
		&stats.Avg,
		&stats.Min,
		&stats.Max,
		&stats.Count,
	)
	if err != nil {
		return WindowStats{}, fmt.Errorf("failed to compute window stats: %w", err)
	}

	return stats, nil
}

// InsertSnapshot persists an aggregate snapshot.
func (r *Metrics) InsertSnapshot(ctx context.Context, s *db.AggregateSnapshot) error {
	query := `
		INSERT INTO aggregated_metrics
			(device_id, period, start_time, end_time, avg_value, min_value, max_value, count, data_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		s.DeviceID,
		s.Period,
		s.StartTime,
		s.EndTime,
		s.AvgValue,
		s.MinValue,
		s.MaxValue,
		s.Count,
		s.DataType,
		s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to insert aggregate snapshot: %w", err)
	}

	return nil
}

// DeviceStatistics returns totals and a per-data-type breakdown.
func (r *Metrics) DeviceStatistics(ctx context.Context, deviceID int64) (*db.DeviceStatistics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(DISTINCT data_type),
			COALESCE(MIN(timestamp), 0),
			COALESCE(MAX(timestamp), 0)
		FROM metrics
		WHERE device_id = $1
	`

	stats := &db.DeviceStatistics{
		DeviceID: deviceID,
		ByType:   make(map[string]db.TypeStatistics),
	}
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&stats.TotalMetrics,
		&stats.DataTypes,
		&stats.FirstTimestamp,
		&stats.LastTimestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query device statistics: %w", err)
	}

	byTypeQuery := `
		SELECT data_type, COUNT(*), AVG(value), MIN(value), MAX(value)
		FROM metrics
		WHERE device_id = $1
		GROUP BY data_type
	`

	rows, err := r.pool.Query(ctx, byTypeQuery, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query per-type statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dataType string
		var ts db.TypeStatistics
		if err := rows.Scan(&dataType, &ts.Count, &ts.AvgValue, &ts.MinValue, &ts.MaxValue); err != nil {
			return nil, fmt.Errorf("failed to scan per-type statistics: %w", err)
		}
		stats.ByType[dataType] = ts
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return stats, nil
}

// DeleteMetricsBefore removes records older than cutoff.
func (r *Metrics) DeleteMetricsBefore(ctx context.Context, cutoff int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM metrics WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}
