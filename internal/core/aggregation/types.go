package aggregation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Supported aggregation functions.
// avg keeps composite state (sum+count) so it can be merged and re-derived after recovery.
const (
	OpCount = "count"
	OpSum   = "sum"
	OpAvg   = "avg"
	OpMin   = "min"
	OpMax   = "max"
)

// groupSeparator joins group values into an ID. Unit separator never appears in normal keys.
const groupSeparator = "\x1f"

// GroupKey is the ordered tuple of grouping-column values of an event.
type GroupKey []string

// ID returns the stable string form of the key, used as map key and store key.
func (k GroupKey) ID() string {
	return strings.Join(k, groupSeparator)
}

// ParseGroupID is the inverse of GroupKey.ID.
func ParseGroupID(id string) GroupKey {
	if id == "" {
		return GroupKey{}
	}
	return GroupKey(strings.Split(id, groupSeparator))
}

// BucketKey identifies one bucket within a granularity level.
type BucketKey struct {
	Group string
	Start time.Time
}

// Accumulator is the running state of one output column.
// Count is the number of values folded in; min/max use it as the "has value" marker.
type Accumulator struct {
	Function string          `json:"fn"`
	Sum      decimal.Decimal `json:"sum"`
	Count    int64           `json:"count"`
	Extreme  decimal.Decimal `json:"extreme"`
}

// AggregateState holds every accumulator of one bucket plus bucket-level bookkeeping.
type AggregateState struct {
	Values      map[string]Accumulator `json:"values"`
	EventCount  int64                  `json:"event_count"`
	LastEventAt time.Time              `json:"last_event_at"`
}

// BucketRow is the unit of store I/O: one bucket of one group at one level.
type BucketRow struct {
	BucketStart time.Time
	Group       GroupKey
	State       AggregateState
	Values      map[string]decimal.Decimal // projected output columns
	UpdatedAt   time.Time
}

// NewRow builds a row and projects its output columns from state.
func NewRow(start time.Time, group GroupKey, state AggregateState) BucketRow {
	return BucketRow{
		BucketStart: start.UTC(),
		Group:       group,
		State:       state,
		Values:      state.Project(),
	}
}

// Key returns the row's bucket key.
func (r BucketRow) Key() BucketKey {
	return BucketKey{Group: r.Group.ID(), Start: r.BucketStart.UTC()}
}
