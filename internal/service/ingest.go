package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/septivank/depin-rewards-worker/internal/config"
	"github.com/septivank/depin-rewards-worker/internal/logging"
	"github.com/septivank/depin-rewards-worker/internal/metricstore"
	"github.com/septivank/depin-rewards-worker/internal/telemetry"
	"github.com/septivank/depin-rewards-worker/internal/validator"
	"go.uber.org/zap"
)

// EventPublisher publishes worker events. Satisfied by mq.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event interface{}) error
}

// BatchMessage is an incoming raw telemetry batch for one device.
type BatchMessage struct {
	RequestID  string                `json:"request_id"`
	DeviceID   int64                 `json:"device_id"`
	ReceivedAt time.Time             `json:"received_at"`
	Metrics    []validator.RawMetric `json:"metrics"`
}

// BatchProcessedEvent reports the outcome of one ingested batch back to
// the ingestion layer.
type BatchProcessedEvent struct {
	RequestID        string    `json:"request_id"`
	DeviceID         int64     `json:"device_id"`
	ValidCount       int       `json:"valid_count"`
	RejectedCount    int       `json:"rejected_count"`
	OutliersDropped  int       `json:"outliers_dropped"`
	StoredCount      int       `json:"stored_count"`
	RejectionReasons []string  `json:"rejection_reasons"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// IngestProcessor runs the ingestion pipeline for one message: validate,
// clean, store, then report the outcome.
type IngestProcessor struct {
	store     *metricstore.Store
	validator *validator.Validator
	publisher EventPublisher
	counters  *telemetry.Counters
	cfg       *config.Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewIngestProcessor creates a new ingest processor
func NewIngestProcessor(
	store *metricstore.Store,
	v *validator.Validator,
	publisher EventPublisher,
	counters *telemetry.Counters,
	cfg *config.Config,
	logger *zap.Logger,
) *IngestProcessor {
	return &IngestProcessor{
		store:     store,
		validator: v,
		publisher: publisher,
		counters:  counters,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessMessage processes an incoming telemetry batch. Validation
// failures never fail the message: they come back as structured
// rejection data so the caller can report partial success. A storage
// failure fails the message, which the consumer NACKs to the DLQ.
func (p *IngestProcessor) ProcessMessage(ctx context.Context, body []byte) error {
	var msg BatchMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal batch message: %w", err)
	}

	reqLogger := logging.WithRequestID(p.logger, msg.RequestID)
	reqLogger.Info("processing telemetry batch",
		zap.Int64("device_id", msg.DeviceID),
		zap.Int("metric_count", len(msg.Metrics)),
	)

	// Validation runs against the time the ingestion layer received the
	// batch, so replays produce identical partitions.
	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}

	valid, rejected := p.validator.ValidateBatch(msg.Metrics, receivedAt)

	reasons := make([]string, 0, len(rejected))
	for _, r := range rejected {
		reasons = append(reasons, r.Reason)
	}

	cleaned, outliers := p.store.Clean(valid)

	stored := 0
	if len(cleaned) > 0 {
		var err error
		stored, err = p.store.StoreMetrics(ctx, msg.DeviceID, cleaned)
		if err != nil {
			reqLogger.Error("failed to store batch", zap.Error(err))
			return fmt.Errorf("failed to store batch: %w", err)
		}
	}

	p.counters.BatchesProcessed.Inc()
	p.counters.MetricsStored.Add(float64(stored))
	p.counters.MetricsRejected.Add(float64(len(rejected)))
	p.counters.OutliersDropped.Add(float64(outliers))

	event := BatchProcessedEvent{
		RequestID:        msg.RequestID,
		DeviceID:         msg.DeviceID,
		ValidCount:       len(valid),
		RejectedCount:    len(rejected),
		OutliersDropped:  outliers,
		StoredCount:      stored,
		RejectionReasons: reasons,
		ProcessedAt:      p.now().UTC(),
	}
	if err := p.publisher.Publish(ctx, p.cfg.RabbitMQ.BatchProcessedRoutingKey, event); err != nil {
		// The batch is already committed; losing the event is
		// recoverable, losing the data is not.
		reqLogger.Error("failed to publish batch outcome", zap.Error(err))
	}

	reqLogger.Info("telemetry batch processed",
		zap.Int("valid", len(valid)),
		zap.Int("rejected", len(rejected)),
		zap.Int("outliers_dropped", outliers),
		zap.Int("stored", stored),
	)

	return nil
}
