package analytics

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/assetwatch/assetwatch/internal/analytics/hysteresis"
	"github.com/assetwatch/assetwatch/internal/analytics/pca"
	"github.com/assetwatch/assetwatch/internal/models"
)

// fixedCombiner pins the combined score so status transitions can be
// driven deterministically regardless of model numerics.
type fixedCombiner struct {
	mu    sync.Mutex
	score float64
}

func (c *fixedCombiner) Combine(t2, spe float64, model *pca.Model) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.score
}

func (c *fixedCombiner) set(v float64) {
	c.mu.Lock()
	c.score = v
	c.mu.Unlock()
}

func testPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	cfg := Config{
		WindowSize: 5,
		Columns:    []string{"pressure"},
		Components: 2,
		Hysteresis: hysteresis.DefaultConfig(),
	}
	return NewPipeline(cfg, zap.NewNop(), opts...)
}

func pressureReading(entity string, v float64) models.Reading {
	return models.Reading{
		EntityID:  entity,
		Values:    map[string]float64{"pressure": v},
		Timestamp: time.Now().UTC(),
	}
}

// syntheticBaseline generates feature vectors matching the single-column
// extractor output width with variance in every position.
func syntheticBaseline(rows, dim int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float64, rows)
	for i := range out {
		vec := make([]float64, dim)
		for j := range vec {
			vec[j] = float64(j) + rng.NormFloat64()
		}
		out[i] = vec
	}
	return out
}

func TestIngestRejectsMalformedReadings(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	_, err := p.Ingest(ctx, models.Reading{Values: map[string]float64{"pressure": 1}})
	require.ErrorIs(t, err, ErrMalformedReading)

	_, err = p.Ingest(ctx, models.Reading{EntityID: "pump-1"})
	require.ErrorIs(t, err, ErrMalformedReading)
}

func TestIngestWarmupThenScores(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		res, err := p.Ingest(ctx, pressureReading("pump-1", float64(100+i)))
		require.NoError(t, err)
		assert.Nil(t, res, "reading %d should still be warmup", i)
	}

	res, err := p.Ingest(ctx, pressureReading("pump-1", 104))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "pump-1", res.EntityID)
	assert.Len(t, res.Features, 8)
	assert.Len(t, res.FeatureNames, 8)

	// No model fitted yet: neutral scores, status stays OK.
	assert.Zero(t, res.T2)
	assert.Zero(t, res.SPE)
	assert.Zero(t, res.AnomalyScore)
	assert.Equal(t, models.StatusOK, res.Status)
}

func TestIngestScoresAgainstFittedModel(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	fit := p.FitModel(ctx, "pump-1", syntheticBaseline(60, 8, 7))
	require.True(t, fit.OK, "fit error: %s", fit.Error)
	assert.Equal(t, 60, fit.Rows)
	assert.Equal(t, 8, fit.Features)
	assert.True(t, p.HasModel("pump-1"))

	for i := 0; i < 5; i++ {
		_, err := p.Ingest(ctx, pressureReading("pump-1", float64(i)))
		require.NoError(t, err)
	}
	res, err := p.Ingest(ctx, pressureReading("pump-1", 5))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.GreaterOrEqual(t, res.AnomalyScore, 0.0)
	assert.LessOrEqual(t, res.AnomalyScore, 1.0)
}

func TestIngestDimensionMismatchSurfaces(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	// Model trained on 5-wide vectors while the extractor emits 8.
	fit := p.FitModel(ctx, "pump-1", syntheticBaseline(40, 5, 3))
	require.True(t, fit.OK)

	var err error
	for i := 0; i < 5; i++ {
		_, err = p.Ingest(ctx, pressureReading("pump-1", float64(i)))
	}
	require.ErrorIs(t, err, pca.ErrDimensionMismatch)
}

func TestFitFailureKeepsPriorModel(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	fit := p.FitModel(ctx, "fleet", syntheticBaseline(40, 8, 11))
	require.True(t, fit.OK)

	// Two rows cannot support two components.
	bad := p.FitModel(ctx, "fleet", syntheticBaseline(2, 8, 11))
	assert.False(t, bad.OK)
	assert.NotEmpty(t, bad.Error)
	assert.True(t, p.HasModel("fleet"), "failed refit must not evict the serving model")
}

func TestStatusTransitionsWithHysteresis(t *testing.T) {
	combiner := &fixedCombiner{score: 0.2}
	p := testPipeline(t, WithCombiner(combiner))
	ctx := context.Background()

	ingest := func() *models.ScoreResult {
		res, err := p.Ingest(ctx, pressureReading("pump-1", 100))
		require.NoError(t, err)
		return res
	}

	for i := 0; i < 5; i++ {
		ingest()
	}
	require.Equal(t, models.StatusOK, p.StatusOf("pump-1"))

	// Three consecutive alarm-zone scores escalate straight to ALARM.
	combiner.set(0.95)
	ingest()
	ingest()
	require.Equal(t, models.StatusOK, p.StatusOf("pump-1"))
	res := ingest()
	assert.Equal(t, models.StatusAlarm, res.Status)
	assert.Equal(t, models.StatusAlarm, p.StatusOf("pump-1"))

	// Recovery needs three consecutive OK-zone scores.
	combiner.set(0.1)
	ingest()
	ingest()
	require.Equal(t, models.StatusAlarm, p.StatusOf("pump-1"))
	res = ingest()
	assert.Equal(t, models.StatusOK, res.Status)
}

func TestResetEntityClearsState(t *testing.T) {
	combiner := &fixedCombiner{score: 0.95}
	p := testPipeline(t, WithCombiner(combiner))
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := p.Ingest(ctx, pressureReading("pump-1", float64(i)))
		require.NoError(t, err)
	}
	require.Equal(t, models.StatusAlarm, p.StatusOf("pump-1"))

	p.ResetEntity(ctx, "pump-1")
	assert.Equal(t, models.StatusOK, p.StatusOf("pump-1"))

	// Buffer cleared too: the next reading is warmup again.
	res, err := p.Ingest(ctx, pressureReading("pump-1", 1))
	require.NoError(t, err)
	assert.Nil(t, res)

	// Resetting an unknown entity is a no-op.
	p.ResetEntity(ctx, "no-such-entity")
}

func TestStatusOfUnknownEntityIsOK(t *testing.T) {
	p := testPipeline(t)
	assert.Equal(t, models.StatusOK, p.StatusOf("never-seen"))
}

func TestEntitiesListsLivePipelines(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	assert.Empty(t, p.Entities())

	_, err := p.Ingest(ctx, pressureReading("pump-1", 1))
	require.NoError(t, err)
	_, err = p.Ingest(ctx, pressureReading("pump-2", 1))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"pump-1", "pump-2"}, p.Entities())
}

func TestResultHooksReceiveEveryScore(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []models.ScoreResult
	p.AddResultHook(func(r models.ScoreResult) {
		mu.Lock()
		seen = append(seen, r)
		mu.Unlock()
	})

	for i := 0; i < 7; i++ {
		_, err := p.Ingest(ctx, pressureReading("pump-1", float64(i)))
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 3, "warmup readings produce no results")
	for _, r := range seen {
		assert.Equal(t, "pump-1", r.EntityID)
	}
}

func TestConcurrentIngestAcrossEntities(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	entities := []string{"pump-1", "pump-2", "pump-3", "pump-4"}
	for _, id := range entities {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := p.Ingest(ctx, pressureReading(id, float64(i)))
				assert.NoError(t, err)
			}
		}(id)
	}
	wg.Wait()

	assert.ElementsMatch(t, entities, p.Entities())
}

func TestConcurrentRefitDuringScoring(t *testing.T) {
	p := testPipeline(t)
	ctx := context.Background()

	fit := p.FitModel(ctx, "pump-1", syntheticBaseline(40, 8, 1))
	require.True(t, fit.OK)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_, err := p.Ingest(ctx, pressureReading("pump-1", float64(i%20)))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			res := p.FitModel(ctx, "pump-1", syntheticBaseline(40, 8, int64(i)))
			assert.True(t, res.OK)
		}
	}()
	wg.Wait()
}
