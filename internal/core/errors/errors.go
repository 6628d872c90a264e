package errors

import "errors"

const (
	HttpInternalError           = "internal_error"
	HttpInvalidJsonError        = "invalid_json"
	HttpInvalidTimestampError   = "invalid_timestamp"
	HttpUnknownAggregationError = "unknown_aggregation"
	HttpNotReadyError           = "not_ready"
	HttpPersistenceError        = "persistence_failure"
)

// Engine error taxonomy. Callers match with errors.Is; concrete failures are
// wrapped around these with fmt.Errorf("%w ...").
var (
	// ErrInvalidTimestamp marks a malformed or pre-epoch event time. The event is dropped.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrPersistence marks a durable read/write failure. In-memory state stays open, so a retry is safe.
	ErrPersistence = errors.New("persistence failure")

	// ErrRecovery is fatal: the engine must not accept ingests with inconsistent rollups.
	ErrRecovery = errors.New("recovery failure")

	// ErrNotReady is returned by ingest calls made before recovery has opened the startup gate.
	ErrNotReady = errors.New("aggregation not ready")

	// ErrLateEventDropped is returned when the late policy rejects an event for a purged bucket.
	ErrLateEventDropped = errors.New("late event dropped")

	// ErrUnknownAggregation is returned when a request names an aggregation that is not loaded.
	ErrUnknownAggregation = errors.New("unknown aggregation")
)

// ErrorResponse is the error response body for API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
