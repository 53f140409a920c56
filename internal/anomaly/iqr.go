package anomaly

import (
	"math"
	"sort"

	"github.com/septivank/depin-rewards-worker/internal/validator"
)

// Detector rejects statistically anomalous readings using interquartile
// range fencing, grouped per data type so units never mix.
type Detector struct {
	fenceMultiplier float64
	minGroupSize    int
}

// NewDetector creates a detector. fenceMultiplier scales the IQR fence
// (1.5 is the conventional Tukey fence). Groups smaller than
// minGroupSize are retained whole: quartile-based rejection needs a
// meaningful spread, and with fewer than 2 points there is none.
func NewDetector(fenceMultiplier float64, minGroupSize int) *Detector {
	if minGroupSize < 2 {
		minGroupSize = 2
	}
	return &Detector{
		fenceMultiplier: fenceMultiplier,
		minGroupSize:    minGroupSize,
	}
}

// FilterOutliers drops readings whose value falls outside their data
// type group's admissible range [Q1 - f*IQR, Q3 + f*IQR]. Input order is
// preserved in the result, and the retained set does not depend on the
// order records arrive in.
func (d *Detector) FilterOutliers(metrics []validator.Metric) ([]validator.Metric, int) {
	if len(metrics) == 0 {
		return nil, 0
	}

	groups := make(map[string][]float64)
	for _, m := range metrics {
		groups[m.DataType] = append(groups[m.DataType], m.Value)
	}

	type fence struct {
		lower, upper float64
	}
	fences := make(map[string]fence, len(groups))
	for dataType, values := range groups {
		if len(values) < d.minGroupSize {
			continue
		}
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)

		q1 := quantile(sorted, 0.25)
		q3 := quantile(sorted, 0.75)
		iqr := q3 - q1

		fences[dataType] = fence{
			lower: q1 - d.fenceMultiplier*iqr,
			upper: q3 + d.fenceMultiplier*iqr,
		}
	}

	kept := make([]validator.Metric, 0, len(metrics))
	dropped := 0
	for _, m := range metrics {
		f, ok := fences[m.DataType]
		if ok && (m.Value < f.lower || m.Value > f.upper) {
			dropped++
			continue
		}
		kept = append(kept, m)
	}

	return kept, dropped
}

// quantile computes the q-th quantile of sorted values using linear
// interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}

	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
