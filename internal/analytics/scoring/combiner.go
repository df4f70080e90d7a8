package scoring

// Package scoring turns the monitor's raw (T2, SPE) pair into the single
// scalar anomaly score consumed by the hysteresis stage. Raw statistics are
// unbounded, so the default combiner calibrates each against the baseline's
// own score distribution by percentile rank and takes the worse of the two:
// a point is anomalous if it is extreme along known variation directions OR
// in a direction the baseline never exhibited.

import (
	"sort"

	"github.com/assetwatch/assetwatch/internal/analytics/pca"
)

// Combiner reduces raw monitor statistics to one score on [0, 1].
type Combiner interface {
	Combine(t2, spe float64, model *pca.Model) float64
}

// MaxRankCombiner is the default policy: max of the two percentile ranks.
type MaxRankCombiner struct{}

// NewMaxRankCombiner returns the default percentile-rank combiner.
func NewMaxRankCombiner() *MaxRankCombiner { return &MaxRankCombiner{} }

// Combine percentile-ranks T2 and SPE against the fitted baseline and
// returns the larger rank. An unfitted model yields 0 (no signal).
func (c *MaxRankCombiner) Combine(t2, spe float64, model *pca.Model) float64 {
	if model == nil {
		return 0
	}
	rt2 := percentileRank(model.BaselineT2(), t2)
	rspe := percentileRank(model.BaselineSPE(), spe)
	if rt2 > rspe {
		return rt2
	}
	return rspe
}

// WeightedRankCombiner blends the two percentile ranks with a fixed T2
// weight, for deployments that trust one statistic more than the other.
type WeightedRankCombiner struct {
	T2Weight float64 // on [0,1]; SPE weight is the complement
}

// Combine returns the weighted blend of the two percentile ranks.
func (c *WeightedRankCombiner) Combine(t2, spe float64, model *pca.Model) float64 {
	if model == nil {
		return 0
	}
	w := c.T2Weight
	if w < 0 {
		w = 0
	} else if w > 1 {
		w = 1
	}
	return w*percentileRank(model.BaselineT2(), t2) + (1-w)*percentileRank(model.BaselineSPE(), spe)
}

// percentileRank returns the fraction of sorted baseline values strictly
// below v. Values beyond the baseline maximum rank 1.0.
func percentileRank(sorted []float64, v float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := sort.SearchFloat64s(sorted, v)
	return float64(idx) / float64(len(sorted))
}
