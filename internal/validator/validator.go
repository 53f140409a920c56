package validator

import (
	"fmt"
	"math"
	"time"
)

// maxAbsValue bounds metric values; anything beyond it is garbage, not
// telemetry.
const maxAbsValue = 1e10

// DataTypes is the set of telemetry kinds a device may report.
var DataTypes = map[string]struct{}{
	"temperature": {},
	"humidity":    {},
	"vibration":   {},
	"energy":      {},
	"pressure":    {},
	"flow":        {},
	"other":       {},
}

// RawMetric is an unvalidated reading as it arrives from the ingestion
// layer. Value, data type and timestamp are pointers so a missing field
// is distinguishable from a zero one.
type RawMetric struct {
	Value      *float64 `json:"value"`
	DataType   *string  `json:"data_type"`
	Timestamp  *int64   `json:"timestamp"`
	IsVerified bool     `json:"is_verified"`
}

// Metric is a reading that passed validation.
type Metric struct {
	Timestamp  int64   `json:"timestamp"`
	Value      float64 `json:"value"`
	DataType   string  `json:"data_type"`
	IsVerified bool    `json:"is_verified"`
}

// Rejection pairs a rejected reading with the reason it was refused.
type Rejection struct {
	Metric RawMetric `json:"metric"`
	Reason string    `json:"reason"`
}

// ValidationResult holds the outcome for one reading.
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// Validator checks raw readings against the admission rules. It has no
// side effects; passing now explicitly keeps results deterministic.
type Validator struct {
	maxFuture time.Duration
	maxAge    time.Duration
}

// NewValidator creates a validator. maxFutureSeconds bounds how far into
// the future a timestamp may point, maxAgeDays how far into the past.
func NewValidator(maxFutureSeconds, maxAgeDays int) *Validator {
	return &Validator{
		maxFuture: time.Duration(maxFutureSeconds) * time.Second,
		maxAge:    time.Duration(maxAgeDays) * 24 * time.Hour,
	}
}

// Validate checks a single reading. Checks run in a fixed order and the
// first failure wins: missing field, value, timestamp, data type.
func (v *Validator) Validate(raw RawMetric, now time.Time) (Metric, ValidationResult) {
	if raw.Value == nil {
		return Metric{}, invalid("missing required field: value")
	}
	if raw.DataType == nil {
		return Metric{}, invalid("missing required field: data_type")
	}
	if raw.Timestamp == nil {
		return Metric{}, invalid("missing required field: timestamp")
	}

	value := *raw.Value
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Metric{}, invalid("invalid value format")
	}
	if value < -maxAbsValue || value > maxAbsValue {
		return Metric{}, invalid("value out of reasonable range")
	}

	ts := *raw.Timestamp
	nowUnix := now.Unix()
	if ts > nowUnix+int64(v.maxFuture.Seconds()) {
		return Metric{}, invalid("timestamp is in the future")
	}
	if ts < nowUnix-int64(v.maxAge.Seconds()) {
		return Metric{}, invalid("timestamp is too old")
	}

	if _, ok := DataTypes[*raw.DataType]; !ok {
		return Metric{}, invalid(fmt.Sprintf("invalid data_type: %s", *raw.DataType))
	}

	return Metric{
		Timestamp:  ts,
		Value:      value,
		DataType:   *raw.DataType,
		IsVerified: raw.IsVerified,
	}, ValidationResult{IsValid: true}
}

// ValidateBatch partitions a batch into valid and rejected readings,
// preserving input order within each partition.
func (v *Validator) ValidateBatch(raws []RawMetric, now time.Time) ([]Metric, []Rejection) {
	var valid []Metric
	var invalid []Rejection

	for _, raw := range raws {
		metric, result := v.Validate(raw, now)
		if result.IsValid {
			valid = append(valid, metric)
		} else {
			invalid = append(invalid, Rejection{Metric: raw, Reason: result.Reason})
		}
	}

	return valid, invalid
}

func invalid(reason string) ValidationResult {
	return ValidationResult{IsValid: false, Reason: reason}
}
