package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_MigrationsIdempotent(t *testing.T) {
	// Opening the same file twice must not re-apply migrations.
	path := t.TempDir() + "/aw.db"

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s2.Ping(context.Background()))
	require.NoError(t, s2.Close())
}

func TestSQLiteStore_ScoreEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	for i, entity := range []string{"pump-1", "pump-1", "fan-2"} {
		rec := &ScoreEventRecord{
			ID:           string(rune('a' + i)),
			EntityID:     entity,
			T2:           float64(i),
			SPE:          float64(i) * 2,
			AnomalyScore: 0.1 * float64(i),
			Status:       "OK",
			Features:     "[1,2]",
			FeatureNames: `["pressure_mean","pressure_std"]`,
			ScoredAt:     now.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, s.AppendScoreEvent(ctx, rec))
	}

	// Per-entity listing, newest first.
	events, err := s.ListScoreEvents(ctx, "pump-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].ID)
	assert.Equal(t, "a", events[1].ID)

	// Unfiltered listing sees all entities.
	all, err := s.ListScoreEvents(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Retention cleanup.
	n, err := s.DeleteScoreEventsBefore(ctx, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteStore_Transitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &TransitionRecord{
		EntityID:   "pump-1",
		FromStatus: "OK",
		ToStatus:   "ALARM",
		Score:      0.95,
		OccurredAt: time.Now().UTC(),
	}
	require.NoError(t, s.AppendTransition(ctx, rec))
	assert.NotZero(t, rec.ID)

	got, err := s.ListTransitions(ctx, "pump-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ALARM", got[0].ToStatus)
	assert.InDelta(t, 0.95, got[0].Score, 1e-9)

	none, err := s.ListTransitions(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_ModelRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// No model saved yet.
	missing, err := s.LoadModel(ctx, "pump-1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	rec := &ModelRecord{
		Scope:    "pump-1",
		Params:   `{"means":[1,2],"scales":[0.5,0.5],"components":[[1,0]]}`,
		Rows:     40,
		Features: 2,
		FittedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SaveModel(ctx, rec))

	got, err := s.LoadModel(ctx, "pump-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Params, got.Params)
	assert.Equal(t, 40, got.Rows)

	// Upsert replaces wholesale.
	rec.Params = `{"means":[9],"scales":[1],"components":[[1]]}`
	rec.Features = 1
	require.NoError(t, s.SaveModel(ctx, rec))

	got, err = s.LoadModel(ctx, "pump-1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Features)

	models, err := s.ListModels(ctx)
	require.NoError(t, err)
	assert.Len(t, models, 1)

	require.NoError(t, s.DeleteModel(ctx, "pump-1"))
	gone, err := s.LoadModel(ctx, "pump-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
