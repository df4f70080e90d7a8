package audit

import "time"

// EventType represents the type of audit event
type EventType string

const (
	// Status events
	EventStatusTransition EventType = "status.transition"
	EventEntityReset      EventType = "status.entity_reset"

	// Model events
	EventModelFitted   EventType = "model.fitted"
	EventModelFitError EventType = "model.fit_error"
	EventModelRestored EventType = "model.restored"

	// Configuration events
	EventConfigLoaded  EventType = "config.loaded"
	EventConfigChanged EventType = "config.changed"

	// System events
	EventServerStarted  EventType = "system.server_started"
	EventServerShutdown EventType = "system.server_shutdown"
)

// Result represents the outcome of an audited action
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Event represents a single audit event
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType EventType `json:"event_type"`
	Result    Result    `json:"result"`

	// Entity information
	EntityID string `json:"entity_id,omitempty"`
	Scope    string `json:"scope,omitempty"`

	// Event details
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`

	// Error information
	Error string `json:"error,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`
}

// NewEvent creates a new audit event with default values
func NewEvent(eventType EventType) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Result:    ResultSuccess,
		Metadata:  make(map[string]interface{}),
	}
}

// WithEntity sets the entity the event concerns
func (e *Event) WithEntity(entityID string) *Event {
	e.EntityID = entityID
	return e
}

// WithScope sets the model scope the event concerns
func (e *Event) WithScope(scope string) *Event {
	e.Scope = scope
	return e
}

// WithDescription sets a human-readable description
func (e *Event) WithDescription(desc string) *Event {
	e.Description = desc
	return e
}

// WithResult sets the result of the event
func (e *Event) WithResult(result Result) *Event {
	e.Result = result
	return e
}

// WithMetadata attaches one metadata entry
func (e *Event) WithMetadata(key string, value interface{}) *Event {
	e.Metadata[key] = value
	return e
}

// WithError sets error information
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Result = ResultFailure
	}
	return e
}

// WithDuration sets the duration in milliseconds
func (e *Event) WithDuration(duration time.Duration) *Event {
	e.DurationMs = duration.Milliseconds()
	return e
}
