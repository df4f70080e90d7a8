package models

// Package models defines core data types shared across assetwatch.
//
// These types flow between the ingestion surface, the detection pipeline,
// the persistence layer, and the streaming API.

import "time"

// Status is the debounced condition of a monitored entity.
type Status string

const (
	StatusOK    Status = "OK"
	StatusWarn  Status = "WARN"
	StatusAlarm Status = "ALARM"
)

// Reading is a single raw sensor measurement for one entity.
// A reading may carry values for several sensor columns sampled together;
// columns not present in Values are treated as absent, never as zero.
// Immutable once produced.
type Reading struct {
	EntityID  string             `json:"entity_id"`
	Values    map[string]float64 `json:"values"`
	Timestamp time.Time          `json:"timestamp"`
}

// ScoreResult is the output of one pipeline pass over a ready window.
type ScoreResult struct {
	EntityID     string    `json:"entity_id"`
	FeatureNames []string  `json:"feature_names"`
	Features     []float64 `json:"features"`
	T2           float64   `json:"t2"`
	SPE          float64   `json:"spe"`
	AnomalyScore float64   `json:"anomaly_score"`
	Status       Status    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
}

// FitResult reports the outcome of a model (re)fit.
type FitResult struct {
	OK       bool   `json:"ok"`
	Scope    string `json:"scope"`
	Rows     int    `json:"rows"`
	Features int    `json:"features"`
	Error    string `json:"error,omitempty"`
}

// StatusTransition records a hysteresis state change for one entity.
type StatusTransition struct {
	EntityID string    `json:"entity_id"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Score    float64   `json:"score"`
	At       time.Time `json:"at"`
}
