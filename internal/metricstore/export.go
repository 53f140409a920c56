package metricstore

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/septivank/depin-rewards-worker/internal/db"
	"github.com/septivank/depin-rewards-worker/internal/repository"
)

// ErrUnsupportedFormat reports an export format outside csv/json.
var ErrUnsupportedFormat = errors.New("unsupported export format")

var exportHeader = []string{"id", "device_id", "timestamp", "value", "data_type", "is_verified", "created_at"}

type exportedMetric struct {
	ID         int64   `json:"id"`
	DeviceID   int64   `json:"device_id"`
	Timestamp  int64   `json:"timestamp"`
	Value      float64 `json:"value"`
	DataType   string  `json:"data_type"`
	IsVerified bool    `json:"is_verified"`
	CreatedAt  string  `json:"created_at"`
}

// Export serializes all of a device's records to w in the requested
// format.
func (s *Store) Export(ctx context.Context, deviceID int64, format string, w io.Writer) error {
	records, err := s.repo.QueryMetrics(ctx, repository.MetricQuery{DeviceID: deviceID})
	if err != nil {
		return fmt.Errorf("failed to load metrics for export: %w", err)
	}

	switch format {
	case "csv":
		return exportCSV(records, w)
	case "json":
		return exportJSON(records, w)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func exportCSV(records []db.MetricRecord, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(exportHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.ID, 10),
			strconv.FormatInt(r.DeviceID, 10),
			strconv.FormatInt(r.Timestamp, 10),
			strconv.FormatFloat(r.Value, 'f', -1, 64),
			r.DataType,
			strconv.FormatBool(r.IsVerified),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func exportJSON(records []db.MetricRecord, w io.Writer) error {
	out := make([]exportedMetric, 0, len(records))
	for _, r := range records {
		out = append(out, exportedMetric{
			ID:         r.ID,
			DeviceID:   r.DeviceID,
			Timestamp:  r.Timestamp,
			Value:      r.Value,
			DataType:   r.DataType,
			IsVerified: r.IsVerified,
			CreatedAt:  r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode json export: %w", err)
	}
	return nil
}
