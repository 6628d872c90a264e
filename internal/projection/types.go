package projection

import (
	"time"

	"github.com/shopspring/decimal"
)

// QueryRequest selects the buckets of one aggregation at one granularity.
// Buckets whose start falls in [Start, End) are returned; Start is aligned
// down to its bucket so the bucket containing Start is included.
type QueryRequest struct {
	Aggregation string
	Start       time.Time
	End         time.Time
	Granularity string
	Group       []string // one value per group_by column; empty for all groups
}

// BucketValue is one bucket of one group in the response.
type BucketValue struct {
	BucketStart time.Time                  `json:"bucket_start"`
	BucketEnd   time.Time                  `json:"bucket_end"`
	Group       map[string]string          `json:"group"`
	Values      map[string]decimal.Decimal `json:"values"`
	EventCount  int64                      `json:"event_count"`
	LastEventAt time.Time                  `json:"last_event_at"`
	Open        bool                       `json:"open"`
}

// QueryResponse is the merged, ordered result of a query.
// Partial is set when the store could not be read and only in-memory buckets are returned.
type QueryResponse struct {
	Aggregation string        `json:"aggregation"`
	Granularity string        `json:"granularity"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Columns     []string      `json:"columns"`
	Partial     bool          `json:"partial"`
	Values      []BucketValue `json:"values"`
}

// DefinitionSummary describes one configured aggregation.
type DefinitionSummary struct {
	Name          string   `json:"name"`
	SourceEvent   string   `json:"source_event"`
	Granularities []string `json:"granularities"`
	GroupBy       []string `json:"group_by"`
	Columns       []string `json:"columns"`
	Fingerprint   string   `json:"fingerprint"`
	Ready         bool     `json:"ready"`
}

// PurgeResponse reports the outcome of a retention purge.
type PurgeResponse struct {
	Aggregation     string    `json:"aggregation"`
	Granularity     string    `json:"granularity"`
	Removed         int64     `json:"removed"`
	EffectiveCutoff time.Time `json:"effective_cutoff"`
}
