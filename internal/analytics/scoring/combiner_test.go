package scoring

import (
	"math/rand"
	"testing"

	"github.com/assetwatch/assetwatch/internal/analytics/pca"
)

func fittedModel(t *testing.T) *pca.Model {
	t.Helper()
	rng := rand.New(rand.NewSource(5))
	baseline := make([][]float64, 60)
	for i := range baseline {
		row := make([]float64, 4)
		for j := range row {
			row[j] = float64(j+1)*5 + rng.NormFloat64()
		}
		baseline[i] = row
	}
	m, err := pca.Fit(baseline, 2)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	return m
}

func TestMaxRankCombiner_UnfittedIsZero(t *testing.T) {
	c := NewMaxRankCombiner()
	if got := c.Combine(123, 456, nil); got != 0 {
		t.Fatalf("expected 0 for unfitted model, got %v", got)
	}
}

func TestMaxRankCombiner_ExtremesRankHigh(t *testing.T) {
	m := fittedModel(t)
	c := NewMaxRankCombiner()

	// Far beyond any baseline score ranks at the top.
	if got := c.Combine(1e9, 1e9, m); got != 1.0 {
		t.Fatalf("expected rank 1.0 for extreme scores, got %v", got)
	}

	// Below every baseline score ranks at the bottom.
	if got := c.Combine(0, 0, m); got > 0.05 {
		t.Fatalf("expected near-zero rank for tiny scores, got %v", got)
	}
}

func TestMaxRankCombiner_TakesWorseStatistic(t *testing.T) {
	m := fittedModel(t)
	c := NewMaxRankCombiner()

	// Low T2 but extreme SPE still yields a high score.
	got := c.Combine(0, 1e9, m)
	if got != 1.0 {
		t.Fatalf("expected SPE to dominate, got %v", got)
	}
}

func TestWeightedRankCombiner_Blends(t *testing.T) {
	m := fittedModel(t)

	even := &WeightedRankCombiner{T2Weight: 0.5}
	got := even.Combine(1e9, 0, m)
	if got < 0.45 || got > 0.55 {
		t.Fatalf("expected ~0.5 blend for one extreme statistic, got %v", got)
	}

	t2Only := &WeightedRankCombiner{T2Weight: 1.0}
	if got := t2Only.Combine(1e9, 0, m); got != 1.0 {
		t.Fatalf("expected T2-only weighting to rank 1.0, got %v", got)
	}
}

func TestWeightedRankCombiner_ClampsWeight(t *testing.T) {
	m := fittedModel(t)
	c := &WeightedRankCombiner{T2Weight: 2.0}
	if got := c.Combine(1e9, 0, m); got != 1.0 {
		t.Fatalf("weight should clamp to 1.0, got %v", got)
	}
}
