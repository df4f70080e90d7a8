package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// schema versions are tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS score_events (
    id            TEXT PRIMARY KEY,
    entity_id     TEXT NOT NULL,
    t2            REAL NOT NULL DEFAULT 0.0,
    spe           REAL NOT NULL DEFAULT 0.0,
    anomaly_score REAL NOT NULL DEFAULT 0.0,
    status        TEXT NOT NULL DEFAULT 'OK',
    features      TEXT NOT NULL DEFAULT '[]',
    feature_names TEXT NOT NULL DEFAULT '[]',
    scored_at     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_score_events_entity    ON score_events(entity_id, scored_at DESC);
CREATE INDEX IF NOT EXISTS idx_score_events_scored_at ON score_events(scored_at DESC);

CREATE TABLE IF NOT EXISTS status_transitions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id   TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    score       REAL NOT NULL DEFAULT 0.0,
    occurred_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_entity      ON status_transitions(entity_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_transitions_occurred_at ON status_transitions(occurred_at DESC);
`,
	},
	// Migration 2: persisted monitor models for restart recovery.
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS models (
    scope      TEXT PRIMARY KEY,
    params     TEXT NOT NULL,
    rows_count INTEGER NOT NULL DEFAULT 0,
    features   INTEGER NOT NULL DEFAULT 0,
    fitted_at  DATETIME NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// Enable WAL mode for better concurrency and performance.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue // already applied
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}

		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Score events ─────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendScoreEvent(ctx context.Context, rec *ScoreEventRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO score_events(id, entity_id, t2, spe, anomaly_score, status, features, feature_names, scored_at)
        VALUES(?,?,?,?,?,?,?,?,?)
    `,
		rec.ID, rec.EntityID, rec.T2, rec.SPE, rec.AnomalyScore,
		rec.Status, rec.Features, rec.FeatureNames, rec.ScoredAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert score event: %w", err)
	}
	return nil
}

func (s *sqliteStore) ListScoreEvents(ctx context.Context, entityID string, limit int) ([]*ScoreEventRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, entity_id, t2, spe, anomaly_score, status, features, feature_names, scored_at
              FROM score_events`
	args := []interface{}{}
	if entityID != "" {
		query += ` WHERE entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY scored_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query score events: %w", err)
	}
	defer rows.Close()

	var out []*ScoreEventRecord
	for rows.Next() {
		var rec ScoreEventRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.EntityID, &rec.T2, &rec.SPE, &rec.AnomalyScore,
			&rec.Status, &rec.Features, &rec.FeatureNames, &ts); err != nil {
			return nil, err
		}
		rec.ScoredAt, _ = parseTime(ts)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteScoreEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM score_events WHERE scored_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete old score events: %w", err)
	}
	return res.RowsAffected()
}

// ─── Status transitions ───────────────────────────────────────────────────────

func (s *sqliteStore) AppendTransition(ctx context.Context, rec *TransitionRecord) error {
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO status_transitions(entity_id, from_status, to_status, score, occurred_at)
        VALUES(?,?,?,?,?)
    `, rec.EntityID, rec.FromStatus, rec.ToStatus, rec.Score, rec.OccurredAt.UTC())
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

func (s *sqliteStore) ListTransitions(ctx context.Context, entityID string, limit int) ([]*TransitionRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, entity_id, from_status, to_status, score, occurred_at FROM status_transitions`
	args := []interface{}{}
	if entityID != "" {
		query += ` WHERE entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []*TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var ts string
		if err := rows.Scan(&rec.ID, &rec.EntityID, &rec.FromStatus, &rec.ToStatus, &rec.Score, &ts); err != nil {
			return nil, err
		}
		rec.OccurredAt, _ = parseTime(ts)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// ─── Models ───────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveModel(ctx context.Context, rec *ModelRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO models(scope, params, rows_count, features, fitted_at, updated_at)
        VALUES(?,?,?,?,?,?)
        ON CONFLICT(scope) DO UPDATE SET
            params     = excluded.params,
            rows_count = excluded.rows_count,
            features   = excluded.features,
            fitted_at  = excluded.fitted_at,
            updated_at = excluded.updated_at
    `, rec.Scope, rec.Params, rec.Rows, rec.Features, rec.FittedAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}
	return nil
}

func (s *sqliteStore) LoadModel(ctx context.Context, scope string) (*ModelRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT scope, params, rows_count, features, fitted_at, updated_at FROM models WHERE scope=?`, scope)

	var rec ModelRecord
	var fittedAt, updatedAt string
	err := row.Scan(&rec.Scope, &rec.Params, &rec.Rows, &rec.Features, &fittedAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", scope, err)
	}
	rec.FittedAt, _ = parseTime(fittedAt)
	rec.UpdatedAt, _ = parseTime(updatedAt)
	return &rec, nil
}

func (s *sqliteStore) ListModels(ctx context.Context) ([]*ModelRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT scope, params, rows_count, features, fitted_at, updated_at FROM models ORDER BY scope ASC`)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	var out []*ModelRecord
	for rows.Next() {
		var rec ModelRecord
		var fittedAt, updatedAt string
		if err := rows.Scan(&rec.Scope, &rec.Params, &rec.Rows, &rec.Features, &fittedAt, &updatedAt); err != nil {
			return nil, err
		}
		rec.FittedAt, _ = parseTime(fittedAt)
		rec.UpdatedAt, _ = parseTime(updatedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) DeleteModel(ctx context.Context, scope string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE scope=?`, scope)
	if err != nil {
		return fmt.Errorf("delete model %q: %w", scope, err)
	}
	return nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// parseTime handles the timestamp layouts the sqlite driver hands back.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
