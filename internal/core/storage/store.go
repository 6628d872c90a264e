package storage

import (
	"context"
	"time"

	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
)

// BucketStore persists closed buckets, one logical table per (aggregation, level).
// Upsert replaces the whole row on its BucketKey. Implementations need not
// provide multi-row atomicity.
type BucketStore interface {
	// Upsert writes row, replacing any existing row with the same bucket start and group.
	Upsert(ctx context.Context, agg string, level granularity.Level, row aggregation.BucketRow) error

	// RangeRead returns rows with start <= bucketStart < end, ordered by bucketStart then group.
	// A zero end means unbounded.
	RangeRead(ctx context.Context, agg string, level granularity.Level, start, end time.Time) ([]aggregation.BucketRow, error)

	// LatestPerGroup returns, for each group, the row with the greatest bucketStart.
	LatestPerGroup(ctx context.Context, agg string, level granularity.Level) ([]aggregation.BucketRow, error)

	// ReadBucket returns the row for one bucket, or false if it does not exist.
	ReadBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) (aggregation.BucketRow, bool, error)

	// DeleteBucket removes one row; deleting a missing row is not an error.
	DeleteBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) error

	// PurgeBefore deletes rows with bucketStart < cutoff and returns how many were removed.
	PurgeBefore(ctx context.Context, agg string, level granularity.Level, cutoff time.Time) (int64, error)
}

// Pinger is implemented by stores that can report their own health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// InRange reports whether start falls in [from, to). A zero bound is open.
func InRange(start, from, to time.Time) bool {
	if !from.IsZero() && start.Before(from) {
		return false
	}
	if !to.IsZero() && !start.Before(to) {
		return false
	}
	return true
}
