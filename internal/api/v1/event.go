package v1

import (
	"fmt"
	"time"
)

// Event is one input record for the aggregation engine.
// It separates the "Envelope" (System Attributes) from the "Letter" (Data).
type Event struct {
	// --- System Attributes (The Envelope) ---

	// ID identifies the event in logs. The ingestion service assigns a UUID when it is empty.
	ID string `json:"id"`

	// Type is the stream name (e.g., "stockStream"). Every aggregation whose
	// source_event equals Type receives the event.
	Type string `json:"type"`

	// Metadata is a generic key-value store for context (e.g., source, trace_id, region).
	Metadata map[string]string `json:"metadata,omitempty"`

	// OccurredAt is the event time (client-side clock). Buckets are assigned from it.
	OccurredAt time.Time `json:"occurred_at"`

	// Timestamp is the event time in epoch milliseconds. It is used when OccurredAt is unset.
	Timestamp *int64 `json:"timestamp,omitempty"`

	// IngestedAt is when the server received the event.
	// This should be set by the Ingestion Service, not the user.
	IngestedAt time.Time `json:"ingested_at"`

	// --- User Payload (The Letter) ---

	// Data carries the group-by columns and the numeric fields folded by aggregates.
	Data map[string]interface{} `json:"data"`
}

// EventTime returns the time used for bucket assignment.
func (e *Event) EventTime() time.Time {
	if !e.OccurredAt.IsZero() {
		return e.OccurredAt.UTC()
	}
	if e.Timestamp != nil {
		return time.UnixMilli(*e.Timestamp).UTC()
	}
	return time.Time{}
}

// Validate ensures the event has all required system attributes.
func (e *Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}

	if e.OccurredAt.IsZero() && e.Timestamp == nil {
		return fmt.Errorf("occurred_at or timestamp is required")
	}

	if e.Data == nil {
		return fmt.Errorf("data is required")
	}

	return nil
}
