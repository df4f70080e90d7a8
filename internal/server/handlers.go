package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/assetwatch/assetwatch/internal/analytics"
	"github.com/assetwatch/assetwatch/internal/models"
)

const maxRequestBody = 4 << 20 // 4 MiB, baseline uploads are the largest payloads

// readingRequest is the ingestion payload.
type readingRequest struct {
	EntityID  string             `json:"entity_id"`
	Values    map[string]float64 `json:"values"`
	Timestamp time.Time          `json:"timestamp,omitempty"`
}

// fitRequest carries baseline feature vectors for a model fit.
type fitRequest struct {
	Baseline [][]float64 `json:"baseline"`
}

// entityStatus is the per-entity status payload.
type entityStatus struct {
	EntityID string        `json:"entity_id"`
	Status   models.Status `json:"status"`
	HasModel bool          `json:"has_model"`
}

// handleReadings handles POST /api/v1/readings
func (s *Server) handleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req readingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.pipeline.Ingest(r.Context(), models.Reading{
		EntityID:  req.EntityID,
		Values:    req.Values,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		if errors.Is(err, analytics.ErrMalformedReading) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("ingest failed", zap.String("entity_id", req.EntityID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result == nil {
		// Window still warming up
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"entity_id": req.EntityID,
			"state":     "buffering",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleModels handles POST /api/v1/models/{scope}/fit
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/models/")
	scope, action, ok := strings.Cut(rest, "/")
	if !ok || action != "fit" || scope == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var req fitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Baseline) == 0 {
		writeError(w, http.StatusBadRequest, "baseline is required")
		return
	}

	result := s.pipeline.FitModel(r.Context(), scope, req.Baseline)
	if !result.OK {
		// Fit rejection is a client data problem, not a server fault
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleEntities handles GET /api/v1/entities
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids := s.pipeline.Entities()
	list := make([]entityStatus, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.entityStatusFor(id))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entities": list,
		"count":    len(list),
	})
}

// handleEntity handles /api/v1/entities/{id}/status and /api/v1/entities/{id}/reset
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/entities/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "status":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, s.entityStatusFor(id))

	case "reset":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.pipeline.ResetEntity(r.Context(), id)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"entity_id": id,
			"state":     "reset",
		})

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

// handleAnomalies handles GET /api/v1/anomalies
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	entityID := r.URL.Query().Get("entity_id")
	limit := queryLimit(r, 100)

	transitions, err := s.store.ListTransitions(r.Context(), entityID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transitions": transitions,
		"count":       len(transitions),
	})
}

// handleScores handles GET /api/v1/scores
func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is not configured")
		return
	}

	entityID := r.URL.Query().Get("entity_id")
	limit := queryLimit(r, 100)

	events, err := s.store.ListScoreEvents(r.Context(), entityID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles readiness check requests
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ready := s.IsRunning()
	if s.store != nil {
		ready = ready && s.store.Ping(r.Context()) == nil
	}
	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not_ready"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":                 "assetwatch",
		"version":              "0.1.0",
		"window_size":          s.config.Detection.WindowSize,
		"columns":              s.config.Detection.Columns,
		"components":           s.config.Detection.Components,
		"warn_threshold":       s.config.Detection.WarnThreshold,
		"alarm_threshold":      s.config.Detection.AlarmThreshold,
		"required_consecutive": s.config.Detection.RequiredConsecutive,
		"model_scope":          s.config.Detection.ModelScope,
		"timestamp":            time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) entityStatusFor(id string) entityStatus {
	scope := id
	if s.config.Detection.ModelScope == "fleet" {
		scope = "fleet"
	}
	return entityStatus{
		EntityID: id,
		Status:   s.pipeline.StatusOf(id),
		HasModel: s.pipeline.HasModel(scope),
	}
}

// decodeJSON decodes a JSON request body with a size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryLimit parses the limit query parameter with a default.
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
