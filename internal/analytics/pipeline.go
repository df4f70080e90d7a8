// Package analytics wires the per-entity detection pipeline: sliding
// window, feature extractor, multivariate monitor, score combination, and
// hysteresis. Each monitored entity owns an independent instance of every
// stage; the only cross-entity state is the fitted monitor model, which is
// read-only after fit and replaced wholesale on refit.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetwatch/assetwatch/internal/analytics/feature"
	"github.com/assetwatch/assetwatch/internal/analytics/hysteresis"
	"github.com/assetwatch/assetwatch/internal/analytics/pca"
	"github.com/assetwatch/assetwatch/internal/analytics/scoring"
	"github.com/assetwatch/assetwatch/internal/analytics/window"
	"github.com/assetwatch/assetwatch/internal/audit"
	"github.com/assetwatch/assetwatch/internal/db"
	"github.com/assetwatch/assetwatch/internal/metrics"
	"github.com/assetwatch/assetwatch/internal/models"
)

// ErrMalformedReading is returned when a reading is missing required
// identification fields; such readings never reach the buffer.
var ErrMalformedReading = errors.New("analytics: malformed reading")

// DefaultWindowSize is the per-entity window length used when none is
// configured.
const DefaultWindowSize = 30

// Config holds pipeline tuning.
type Config struct {
	WindowSize int
	Columns    []string
	Components int
	Hysteresis hysteresis.Config

	// ScopeFor maps an entity to the model scope it scores against.
	// Defaults to per-entity models (identity).
	ScopeFor func(entityID string) string
}

// DefaultPipelineConfig returns the default pipeline tuning.
func DefaultPipelineConfig() Config {
	return Config{
		WindowSize: DefaultWindowSize,
		Columns:    feature.DefaultColumns(),
		Components: pca.DefaultComponents,
		Hysteresis: hysteresis.DefaultConfig(),
	}
}

// entityState is the mutable per-entity pipeline state. Readings for one
// entity are processed strictly in order by a single writer.
type entityState struct {
	buf       *window.Buffer
	extractor *feature.Extractor
	machine   *hysteresis.Machine
}

// Pipeline orchestrates ingestion, scoring, and status stabilization for
// all monitored entities.
type Pipeline struct {
	cfg      Config
	combiner scoring.Combiner
	store    db.Store
	auditor  audit.Logger
	logger   *zap.Logger

	mu       sync.RWMutex
	entities map[string]*entityState
	models   map[string]*pca.Model // scope → fitted model, swapped wholesale

	hookMu sync.RWMutex
	hooks  []func(models.ScoreResult)
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithStore attaches a persistence sink for score events, transitions,
// and fitted models.
func WithStore(store db.Store) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithAuditor attaches an audit logger for transitions and fits.
func WithAuditor(a audit.Logger) Option {
	return func(p *Pipeline) { p.auditor = a }
}

// WithCombiner overrides the default score combination policy.
func WithCombiner(c scoring.Combiner) Option {
	return func(p *Pipeline) { p.combiner = c }
}

// NewPipeline creates a detection pipeline.
func NewPipeline(cfg Config, logger *zap.Logger, opts ...Option) *Pipeline {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.Components <= 0 {
		cfg.Components = pca.DefaultComponents
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = feature.DefaultColumns()
	}
	if cfg.Hysteresis.RequiredConsecutive <= 0 {
		cfg.Hysteresis = hysteresis.DefaultConfig()
	}
	if cfg.ScopeFor == nil {
		cfg.ScopeFor = func(entityID string) string { return entityID }
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pipeline{
		cfg:      cfg,
		combiner: scoring.NewMaxRankCombiner(),
		logger:   logger,
		entities: make(map[string]*entityState),
		models:   make(map[string]*pca.Model),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddResultHook registers a callback invoked for every score result, e.g.
// the WebSocket broadcaster. Hooks must not block.
func (p *Pipeline) AddResultHook(fn func(models.ScoreResult)) {
	p.hookMu.Lock()
	p.hooks = append(p.hooks, fn)
	p.hookMu.Unlock()
}

// Ingest feeds one reading through the entity's pipeline. It returns a
// score result only once the entity's window is ready; nil during warmup.
func (p *Pipeline) Ingest(ctx context.Context, r models.Reading) (*models.ScoreResult, error) {
	if r.EntityID == "" || len(r.Values) == 0 {
		metrics.ReadingsRejected.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("%w: entity_id and values are required", ErrMalformedReading)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	metrics.ReadingsIngested.WithLabelValues(r.EntityID).Inc()

	state := p.getOrCreate(r.EntityID)
	state.buf.Add(r)
	if !state.buf.Ready() {
		return nil, nil
	}

	features := state.extractor.Extract(state.buf.Snapshot())
	names := state.extractor.FeatureNames()

	model := p.activeModel(p.cfg.ScopeFor(r.EntityID))
	t2, spe, err := model.Score(features)
	if err != nil {
		// Caller contract violation: surface loudly, never truncate or pad.
		return nil, fmt.Errorf("score entity %s: %w", r.EntityID, err)
	}

	anomaly := p.combiner.Combine(t2, spe, model)

	prev := state.machine.Status()
	status := state.machine.Update(anomaly)

	result := &models.ScoreResult{
		EntityID:     r.EntityID,
		FeatureNames: names,
		Features:     features,
		T2:           t2,
		SPE:          spe,
		AnomalyScore: anomaly,
		Status:       status,
		Timestamp:    r.Timestamp,
	}

	metrics.ScoresComputed.WithLabelValues(r.EntityID, string(status)).Inc()
	metrics.AnomalyScore.WithLabelValues(r.EntityID).Set(anomaly)

	if status != prev {
		p.recordTransition(ctx, models.StatusTransition{
			EntityID: r.EntityID,
			From:     prev,
			To:       status,
			Score:    anomaly,
			At:       r.Timestamp,
		})
	}
	p.persistResult(ctx, result)
	p.notify(*result)

	return result, nil
}

// FitModel (re)trains the monitor for a scope from baseline feature
// vectors and atomically swaps the active model. A failed fit leaves any
// prior model serving.
func (p *Pipeline) FitModel(ctx context.Context, scope string, baseline [][]float64) models.FitResult {
	start := time.Now()

	model, err := pca.Fit(baseline, p.cfg.Components)
	if err != nil {
		metrics.ModelFits.WithLabelValues(scope, "error").Inc()
		if p.auditor != nil {
			_ = p.auditor.LogModelFitFailed(ctx, scope, err)
		}
		p.logger.Warn("model fit rejected",
			zap.String("scope", scope),
			zap.Int("rows", len(baseline)),
			zap.Error(err),
		)
		return models.FitResult{Scope: scope, Rows: len(baseline), Error: err.Error()}
	}

	p.mu.Lock()
	p.models[scope] = model
	p.mu.Unlock()

	elapsed := time.Since(start)
	metrics.ModelFits.WithLabelValues(scope, "ok").Inc()
	metrics.ModelFitDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
	if p.auditor != nil {
		_ = p.auditor.LogModelFitted(ctx, scope, len(baseline), model.Dim(), elapsed)
	}
	p.logger.Info("model fitted",
		zap.String("scope", scope),
		zap.Int("rows", len(baseline)),
		zap.Int("features", model.Dim()),
		zap.Int("components", model.Components()),
		zap.Duration("elapsed", elapsed),
	)

	p.persistModel(ctx, scope, model, len(baseline))

	return models.FitResult{OK: true, Scope: scope, Rows: len(baseline), Features: model.Dim()}
}

// ResetEntity clears the entity's buffer and hysteresis state. A missing
// entity is a no-op.
func (p *Pipeline) ResetEntity(ctx context.Context, entityID string) {
	p.mu.RLock()
	state, ok := p.entities[entityID]
	p.mu.RUnlock()
	if !ok {
		return
	}

	state.buf.Clear()
	state.machine.Reset()
	if p.auditor != nil {
		_ = p.auditor.LogEntityReset(ctx, entityID)
	}
	p.logger.Info("entity reset", zap.String("entity_id", entityID))
}

// StatusOf returns the current debounced status for an entity; entities
// never seen report OK.
func (p *Pipeline) StatusOf(entityID string) models.Status {
	p.mu.RLock()
	state, ok := p.entities[entityID]
	p.mu.RUnlock()
	if !ok {
		return models.StatusOK
	}
	return state.machine.Status()
}

// Entities returns the IDs of all entities with live pipeline state.
func (p *Pipeline) Entities() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.entities))
	for id := range p.entities {
		out = append(out, id)
	}
	return out
}

// HasModel reports whether a fitted model is active for the scope.
func (p *Pipeline) HasModel(scope string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.models[scope] != nil
}

// RestoreModels loads persisted models from the store, typically at
// startup so trained state survives restarts.
func (p *Pipeline) RestoreModels(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	records, err := p.store.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("list persisted models: %w", err)
	}

	restored := 0
	for _, rec := range records {
		var params pca.Params
		if err := json.Unmarshal([]byte(rec.Params), &params); err != nil {
			p.logger.Warn("skipping unreadable persisted model",
				zap.String("scope", rec.Scope), zap.Error(err))
			continue
		}
		model, err := pca.FromParams(&params)
		if err != nil {
			p.logger.Warn("skipping invalid persisted model",
				zap.String("scope", rec.Scope), zap.Error(err))
			continue
		}
		p.mu.Lock()
		p.models[rec.Scope] = model
		p.mu.Unlock()
		if p.auditor != nil {
			_ = p.auditor.Log(ctx, audit.NewEvent(audit.EventModelRestored).
				WithScope(rec.Scope).
				WithMetadata("rows", rec.Rows).
				WithMetadata("features", rec.Features))
		}
		restored++
	}
	if restored > 0 {
		p.logger.Info("restored persisted models", zap.Int("count", restored))
	}
	return nil
}

// ─── Internal ─────────────────────────────────────────────────────────────────

func (p *Pipeline) getOrCreate(entityID string) *entityState {
	p.mu.RLock()
	state, ok := p.entities[entityID]
	p.mu.RUnlock()
	if ok {
		return state
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if state, ok = p.entities[entityID]; ok {
		return state
	}
	state = &entityState{
		buf:       window.New(p.cfg.WindowSize),
		extractor: feature.NewExtractor(p.cfg.Columns),
		machine:   hysteresis.New(p.cfg.Hysteresis),
	}
	p.entities[entityID] = state
	metrics.ActiveEntities.Set(float64(len(p.entities)))
	return state
}

func (p *Pipeline) activeModel(scope string) *pca.Model {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.models[scope] // nil means unfitted: neutral scoring
}

func (p *Pipeline) recordTransition(ctx context.Context, tr models.StatusTransition) {
	metrics.StatusTransitions.WithLabelValues(tr.EntityID, string(tr.From), string(tr.To)).Inc()
	p.logger.Info("status transition",
		zap.String("entity_id", tr.EntityID),
		zap.String("from", string(tr.From)),
		zap.String("to", string(tr.To)),
		zap.Float64("score", tr.Score),
	)
	if p.auditor != nil {
		_ = p.auditor.LogStatusTransition(ctx, tr)
	}
	if p.store != nil {
		rec := &db.TransitionRecord{
			EntityID:   tr.EntityID,
			FromStatus: string(tr.From),
			ToStatus:   string(tr.To),
			Score:      tr.Score,
			OccurredAt: tr.At,
		}
		if err := p.store.AppendTransition(ctx, rec); err != nil {
			p.logger.Error("persist transition", zap.Error(err))
		}
	}
}

func (p *Pipeline) persistResult(ctx context.Context, result *models.ScoreResult) {
	if p.store == nil {
		return
	}
	featJSON, _ := json.Marshal(result.Features)
	namesJSON, _ := json.Marshal(result.FeatureNames)
	rec := &db.ScoreEventRecord{
		ID:           uuid.NewString(),
		EntityID:     result.EntityID,
		T2:           result.T2,
		SPE:          result.SPE,
		AnomalyScore: result.AnomalyScore,
		Status:       string(result.Status),
		Features:     string(featJSON),
		FeatureNames: string(namesJSON),
		ScoredAt:     result.Timestamp,
	}
	if err := p.store.AppendScoreEvent(ctx, rec); err != nil {
		p.logger.Error("persist score event", zap.Error(err))
	}
}

func (p *Pipeline) persistModel(ctx context.Context, scope string, model *pca.Model, rows int) {
	if p.store == nil {
		return
	}
	raw, err := json.Marshal(model.Params())
	if err != nil {
		p.logger.Error("serialize model", zap.String("scope", scope), zap.Error(err))
		return
	}
	rec := &db.ModelRecord{
		Scope:    scope,
		Params:   string(raw),
		Rows:     rows,
		Features: model.Dim(),
		FittedAt: time.Now().UTC(),
	}
	if err := p.store.SaveModel(ctx, rec); err != nil {
		p.logger.Error("persist model", zap.String("scope", scope), zap.Error(err))
	}
}

func (p *Pipeline) notify(result models.ScoreResult) {
	p.hookMu.RLock()
	hooks := p.hooks
	p.hookMu.RUnlock()
	for _, fn := range hooks {
		fn(result)
	}
}
