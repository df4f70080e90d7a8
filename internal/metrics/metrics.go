package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Monitoring service metrics for production observability
var (
	// Ingestion metrics
	ReadingsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetwatch_readings_ingested_total",
			Help: "Total number of sensor readings accepted for processing",
		},
		[]string{"entity_id"},
	)

	ReadingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetwatch_readings_rejected_total",
			Help: "Total number of malformed readings rejected at ingestion",
		},
		[]string{"reason"},
	)

	// Scoring metrics
	ScoresComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetwatch_scores_computed_total",
			Help: "Total number of anomaly scores produced",
		},
		[]string{"entity_id", "status"},
	)

	AnomalyScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assetwatch_anomaly_score",
			Help: "Most recent combined anomaly score per entity",
		},
		[]string{"entity_id"},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetwatch_status_transitions_total",
			Help: "Total number of debounced status transitions",
		},
		[]string{"entity_id", "from", "to"},
	)

	// Model metrics
	ModelFits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetwatch_model_fits_total",
			Help: "Total number of monitor model fit attempts",
		},
		[]string{"scope", "status"},
	)

	ModelFitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetwatch_model_fit_duration_seconds",
			Help:    "Monitor model fit duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"scope"},
	)

	// Pipeline metrics
	ActiveEntities = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetwatch_active_entities",
			Help: "Current number of entities with live pipelines",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "assetwatch_websocket_connections",
			Help: "Current number of active WebSocket stream subscribers",
		},
	)

	WebSocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetwatch_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: inbound/outbound
	)
)
