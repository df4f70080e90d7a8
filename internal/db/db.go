package db

import (
	"context"
	"time"
)

// Store is the main persistence interface for the monitoring service.
type Store interface {
	ScoreEventStore
	TransitionStore
	ModelStore

	// Close releases database resources.
	Close() error

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error
}

// ─── Score events ─────────────────────────────────────────────────────────────

// ScoreEventRecord is one persisted pipeline score result.
type ScoreEventRecord struct {
	ID           string    `json:"id"`
	EntityID     string    `json:"entity_id"`
	T2           float64   `json:"t2"`
	SPE          float64   `json:"spe"`
	AnomalyScore float64   `json:"anomaly_score"`
	Status       string    `json:"status"`
	Features     string    `json:"features"` // JSON array, positions match feature_names
	FeatureNames string    `json:"feature_names"`
	ScoredAt     time.Time `json:"scored_at"`
}

// ScoreEventStore persists score results for later inspection.
type ScoreEventStore interface {
	// AppendScoreEvent writes a single score event.
	AppendScoreEvent(ctx context.Context, rec *ScoreEventRecord) error

	// ListScoreEvents returns the most recent events for an entity, newest
	// first. An empty entityID returns events across all entities.
	ListScoreEvents(ctx context.Context, entityID string, limit int) ([]*ScoreEventRecord, error)

	// DeleteScoreEventsBefore removes events older than the cutoff.
	DeleteScoreEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ─── Status transitions ───────────────────────────────────────────────────────

// TransitionRecord is a persisted debounced status change.
type TransitionRecord struct {
	ID         int64     `json:"id"`
	EntityID   string    `json:"entity_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Score      float64   `json:"score"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TransitionStore persists status transitions, the service's alarm history.
type TransitionStore interface {
	// AppendTransition writes a single status transition.
	AppendTransition(ctx context.Context, rec *TransitionRecord) error

	// ListTransitions returns the most recent transitions, newest first,
	// optionally filtered by entity.
	ListTransitions(ctx context.Context, entityID string, limit int) ([]*TransitionRecord, error)
}

// ─── Models ───────────────────────────────────────────────────────────────────

// ModelRecord holds a serialized fitted monitor model for one scope so a
// restart does not lose trained state.
type ModelRecord struct {
	Scope     string    `json:"scope"`
	Params    string    `json:"params"` // JSON-serialized pca.Params
	Rows      int       `json:"rows"`
	Features  int       `json:"features"`
	FittedAt  time.Time `json:"fitted_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ModelStore persists fitted models across restarts.
type ModelStore interface {
	// SaveModel writes (or overwrites) the model row for a scope.
	SaveModel(ctx context.Context, rec *ModelRecord) error

	// LoadModel reads the model row for a scope.
	// Returns nil, nil when no model has been saved for that scope.
	LoadModel(ctx context.Context, scope string) (*ModelRecord, error)

	// ListModels returns all persisted models.
	ListModels(ctx context.Context) ([]*ModelRecord, error)

	// DeleteModel removes the model row for a scope.
	DeleteModel(ctx context.Context, scope string) error
}
