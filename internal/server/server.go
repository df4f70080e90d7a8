package server

// Package server exposes the assetwatch HTTP and WebSocket surface.
//
// Responsibilities:
//   - Ingest sensor readings and return score results
//   - Accept baseline uploads to (re)fit monitor models
//   - Report per-entity status and recent anomaly history
//   - Stream score results to WebSocket subscribers
//   - Serve health, readiness, and Prometheus metrics endpoints
//   - Run the retention sweep that prunes old score events

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/assetwatch/assetwatch/internal/analytics"
	"github.com/assetwatch/assetwatch/internal/audit"
	"github.com/assetwatch/assetwatch/internal/config"
	"github.com/assetwatch/assetwatch/internal/db"
	"github.com/assetwatch/assetwatch/internal/middleware"
)

// ingestRequestsPerMin bounds how fast a single client may POST readings.
const ingestRequestsPerMin = 600

// Server represents the assetwatch server
type Server struct {
	config *config.Config
	logger *zap.Logger

	// Core components
	pipeline *analytics.Pipeline
	store    db.Store
	auditor  audit.Logger
	hub      *streamHub
	limiter  *middleware.RateLimiter

	// HTTP server
	httpServer *http.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// NewServer creates a new assetwatch server
func NewServer(cfg *config.Config, logger *zap.Logger, pipeline *analytics.Pipeline, store db.Store, auditor audit.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:   cfg,
		logger:   logger,
		pipeline: pipeline,
		store:    store,
		auditor:  auditor,
		hub:      newStreamHub(logger),
		limiter:  middleware.NewRateLimiter(ingestRequestsPerMin),
		ctx:      ctx,
		cancel:   cancel,
	}

	// Every score result fans out to connected WebSocket subscribers.
	pipeline.AddResultHook(srv.hub.Broadcast)

	return srv, nil
}

// Start starts the server
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run(s.ctx)
	}()

	if s.store != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.retentionLoop()
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("starting HTTP server", zap.Int("port", s.config.Server.Port))
		var err error
		if s.config.Server.TLSEnabled {
			err = s.httpServer.ListenAndServeTLS(s.config.Server.TLSCertPath, s.config.Server.TLSKeyPath)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	if s.auditor != nil {
		_ = s.auditor.Log(s.ctx, audit.NewEvent(audit.EventServerStarted).
			WithDescription(fmt.Sprintf("listening on port %d", s.config.Server.Port)))
	}
	s.logger.Info("assetwatch server started",
		zap.Int("window_size", s.config.Detection.WindowSize),
		zap.String("model_scope", s.config.Detection.ModelScope),
		zap.Strings("columns", s.config.Detection.Columns),
	)

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping assetwatch server")

	// Shutdown HTTP server
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error shutting down HTTP server", zap.Error(err))
		}
	}

	// Cancel context and wait for goroutines
	s.cancel()
	s.wg.Wait()
	s.limiter.Stop()

	if s.auditor != nil {
		_ = s.auditor.Log(context.Background(), audit.NewEvent(audit.EventServerShutdown))
	}
	s.logger.Info("assetwatch server stopped")
	return nil
}

// Wait blocks until the server is stopped
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// registerHandlers registers HTTP handlers
func (s *Server) registerHandlers(mux *http.ServeMux) {
	// Health and readiness
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/info", s.handleInfo)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	// Ingestion
	mux.HandleFunc("/api/v1/readings", s.limiter.Middleware(s.handleReadings))

	// Model fitting: POST /api/v1/models/{scope}/fit
	mux.HandleFunc("/api/v1/models/", s.handleModels)

	// Entity status and reset: /api/v1/entities and /api/v1/entities/{id}/...
	mux.HandleFunc("/api/v1/entities", s.handleEntities)
	mux.HandleFunc("/api/v1/entities/", s.handleEntity)

	// History
	mux.HandleFunc("/api/v1/anomalies", s.handleAnomalies)
	mux.HandleFunc("/api/v1/scores", s.handleScores)

	// WebSocket score stream
	mux.HandleFunc("/api/v1/stream", s.handleStream)
}

// retentionLoop periodically prunes score events older than the configured
// retention window.
func (s *Server) retentionLoop() {
	interval := time.Duration(s.config.Retention.CleanupIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -s.config.Retention.ScoreEventDays)
			deleted, err := s.store.DeleteScoreEventsBefore(s.ctx, cutoff)
			if err != nil {
				s.logger.Error("retention sweep failed", zap.Error(err))
				continue
			}
			if deleted > 0 {
				s.logger.Info("retention sweep pruned score events",
					zap.Int64("deleted", deleted),
					zap.Time("cutoff", cutoff),
				)
			}
		}
	}
}
