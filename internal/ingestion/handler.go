package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	v1 "github.com/aevon-lab/aevon-rollup/internal/api/v1"
	httperr "github.com/aevon-lab/aevon-rollup/internal/core/errors"
)

const (
	msgReadBodyFailed   = "Failed to read request body"
	msgInvalidJSON      = "Invalid JSON body"
	msgInvalidTimestamp = "Invalid event time"
	msgIngestFailed     = "Failed to aggregate event"
)

// Per-aggregation outcomes reported in the response body.
const (
	outcomeAccepted = "accepted"
	outcomeDropped  = "dropped"
	outcomeFailed   = "failed"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// IngestHandler handles HTTP POST requests for event ingestion.
func (s *Service) IngestHandler(c *gin.Context) {
	evt, payloadSize, err := s.parseEvent(c)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := validateEvent(evt); err != nil {
		writeError(c, err)
		return
	}

	slog.Debug("[Ingestion] Received Event",
		"event_id", evt.ID,
		"event_type", evt.Type,
		"event_time", evt.EventTime(),
		"payload_size", payloadSize)

	outcomes, ingestErr := s.route(c.Request.Context(), evt)
	if ingestErr != nil {
		writeError(c, ingestErr)
		return
	}

	if len(outcomes) > 0 && allDropped(outcomes) {
		c.JSON(http.StatusOK, gin.H{"status": outcomeDropped, "event_id": evt.ID, "aggregations": outcomes})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": outcomeAccepted, "event_id": evt.ID, "aggregations": outcomes})
}

// parseEvent reads the raw request body and binds it into an Event struct.
// Returns the parsed event and the raw payload size (used for structured logging upstream).
func (s *Service) parseEvent(c *gin.Context) (*v1.Event, int, *ingestionError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("[Ingestion] Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("[Ingestion] Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var evt v1.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("[Ingestion] Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	evt.IngestedAt = time.Now().UTC()
	return &evt, len(bodyBytes), nil
}

func validateEvent(evt *v1.Event) *ingestionError {
	if err := evt.Validate(); err != nil {
		slog.Warn("[Ingestion] Envelope validation failed", "error", err, "event_id", evt.ID)
		return &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    err.Error(),
		}
	}
	return nil
}

// route folds the event into every chain fed by its type. Chains are independent:
// a failure in one does not undo the others, so the per-aggregation outcomes are
// returned alongside the error.
func (s *Service) route(ctx context.Context, evt *v1.Event) (map[string]string, *ingestionError) {
	chains := s.bySource[evt.Type]
	outcomes := make(map[string]string, len(chains))
	ts := evt.EventTime()

	var firstErr error
	for _, chain := range chains {
		def := chain.Definition()
		err := chain.Ingest(ctx, def.GroupKeyFor(evt.Data), ts, evt.Data)
		switch {
		case err == nil:
			outcomes[def.Name] = outcomeAccepted
		case errors.Is(err, httperr.ErrLateEventDropped):
			outcomes[def.Name] = outcomeDropped
		default:
			outcomes[def.Name] = outcomeFailed
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(chains) == 0 {
		slog.Debug("[Ingestion] No aggregation consumes event type", "event_type", evt.Type, "event_id", evt.ID)
	}
	if firstErr == nil {
		return outcomes, nil
	}

	ie := &ingestionError{
		statusCode: http.StatusInternalServerError,
		errorType:  httperr.HttpInternalError,
		message:    msgIngestFailed,
		details:    map[string]interface{}{"aggregations": outcomes, "error": firstErr.Error()},
	}
	switch {
	case errors.Is(firstErr, httperr.ErrInvalidTimestamp):
		slog.Warn("[Ingestion] Event time rejected", "event_id", evt.ID, "error", firstErr)
		ie.statusCode, ie.errorType, ie.message = http.StatusBadRequest, httperr.HttpInvalidTimestampError, msgInvalidTimestamp
	case errors.Is(firstErr, httperr.ErrNotReady):
		ie.statusCode, ie.errorType = http.StatusServiceUnavailable, httperr.HttpNotReadyError
	case errors.Is(firstErr, httperr.ErrPersistence):
		slog.Error("[Ingestion] Failed to aggregate event", "event_id", evt.ID, "error", firstErr)
		ie.statusCode, ie.errorType = http.StatusServiceUnavailable, httperr.HttpPersistenceError
	default:
		slog.Error("[Ingestion] Failed to aggregate event", "event_id", evt.ID, "error", firstErr)
	}
	return outcomes, ie
}

func allDropped(outcomes map[string]string) bool {
	for _, o := range outcomes {
		if o != outcomeDropped {
			return false
		}
	}
	return true
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
