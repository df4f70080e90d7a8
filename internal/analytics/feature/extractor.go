package feature

// Package feature condenses a window of raw readings into a fixed-order
// numeric feature vector.
//
// For every recognized sensor column present in the window, the extractor
// emits an 8-statistic block: mean, population std dev, min, max, median,
// q1, q3, trend (last minus first value by arrival order). Blocks are
// concatenated in the configured column order so the vector layout is
// deterministic. Columns absent from the entire window contribute nothing;
// callers scoring against a fitted model must keep column presence
// consistent between fit and score time.

import (
	"fmt"
	"math"
	"sort"

	"github.com/assetwatch/assetwatch/internal/models"
)

// statNames is the fixed per-column statistic order.
var statNames = [...]string{"mean", "std", "min", "max", "median", "q1", "q3", "trend"}

// StatsPerColumn is the number of statistics emitted per sensor column.
const StatsPerColumn = len(statNames)

// DefaultColumns is the sensor column order used when none is configured.
func DefaultColumns() []string {
	return []string{"pressure", "temperature", "flow_rate", "motor_current", "vibration"}
}

// Extractor turns windows of readings into feature vectors.
type Extractor struct {
	columns   []string
	lastNames []string
}

// NewExtractor creates an extractor for the given column order. An empty
// slice falls back to DefaultColumns.
func NewExtractor(columns []string) *Extractor {
	if len(columns) == 0 {
		columns = DefaultColumns()
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Extractor{columns: cols}
}

// Extract computes the feature vector for a window of readings. Missing
// values for a column are excluded from that column's statistics, not
// treated as zero. An empty window yields an empty vector.
func (e *Extractor) Extract(win []models.Reading) []float64 {
	e.lastNames = e.lastNames[:0]
	if len(win) == 0 {
		return []float64{}
	}

	features := make([]float64, 0, len(e.columns)*StatsPerColumn)
	for _, col := range e.columns {
		values := make([]float64, 0, len(win))
		for _, r := range win {
			if v, ok := r.Values[col]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			continue
		}
		features = append(features, columnStats(values)...)
		for _, s := range statNames {
			e.lastNames = append(e.lastNames, fmt.Sprintf("%s_%s", col, s))
		}
	}
	return features
}

// FeatureNames returns the ordered names generated by the most recent
// Extract call, mapping vector positions back to column/statistic pairs.
func (e *Extractor) FeatureNames() []string {
	out := make([]string, len(e.lastNames))
	copy(out, e.lastNames)
	return out
}

// Columns returns the configured column order.
func (e *Extractor) Columns() []string {
	out := make([]string, len(e.columns))
	copy(out, e.columns)
	return out
}

// columnStats computes the 8-statistic block for one column's values,
// in arrival order.
func columnStats(values []float64) []float64 {
	n := float64(len(values))

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / n) // population std dev

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return []float64{
		mean,
		std,
		sorted[0],
		sorted[len(sorted)-1],
		percentile(sorted, 50),
		percentile(sorted, 25),
		percentile(sorted, 75),
		values[len(values)-1] - values[0], // trend by arrival order
	}
}

// percentile interpolates linearly between closest ranks of a sorted slice.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	w := rank - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
