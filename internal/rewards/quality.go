package rewards

import (
	"math"
	"time"

	"github.com/septivank/depin-rewards-worker/internal/validator"
)

// recencyWindow is how far back a reading counts as recent.
const recencyWindow = 3600

// qualityScore grades a metric batch in [0, 1] as the mean of three
// factors: the verified ratio, value consistency, and recency.
//
// Consistency takes the variance across all supplied values regardless
// of data type, so mixed-unit batches score low.
func qualityScore(metrics []validator.Metric, now time.Time) float64 {
	if len(metrics) == 0 {
		return 0
	}

	count := float64(len(metrics))

	verified := 0
	for _, m := range metrics {
		if m.IsVerified {
			verified++
		}
	}
	verifiedRatio := float64(verified) / count

	values := make([]float64, len(metrics))
	for i, m := range metrics {
		values[i] = m.Value
	}
	consistency := math.Max(0, 1-variance(values)/1000)

	nowUnix := now.Unix()
	recent := 0
	for _, m := range metrics {
		if m.Timestamp > nowUnix-recencyWindow {
			recent++
		}
	}
	recency := float64(recent) / count

	return (verifiedRatio + consistency + recency) / 3
}

// variance is the population variance of values.
func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
