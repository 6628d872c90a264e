package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
)

// BreakerConfig configures the circuit breaker placed in front of a BucketStore.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	Timeout          time.Duration
	MaxRequests      uint32
}

// BreakerStore trips after consecutive store failures so that ingest and query
// paths fail fast while the backing store is down.
type BreakerStore struct {
	next BucketStore
	cb   *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore wraps next with a gobreaker circuit breaker.
func NewBreakerStore(next BucketStore, cfg BreakerConfig) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "bucket-store"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("[BucketStore] Circuit breaker state changed",
				"name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State returns the breaker state for health reporting.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func (b *BreakerStore) execute(op string, fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if err != nil {
		return nil, fmt.Errorf("bucket store %s: %w", op, err)
	}
	return out, nil
}

func (b *BreakerStore) Upsert(ctx context.Context, agg string, level granularity.Level, row aggregation.BucketRow) error {
	_, err := b.execute("upsert", func() (any, error) {
		return nil, b.next.Upsert(ctx, agg, level, row)
	})
	return err
}

func (b *BreakerStore) RangeRead(ctx context.Context, agg string, level granularity.Level, start, end time.Time) ([]aggregation.BucketRow, error) {
	out, err := b.execute("range read", func() (any, error) {
		return b.next.RangeRead(ctx, agg, level, start, end)
	})
	if err != nil {
		return nil, err
	}
	return out.([]aggregation.BucketRow), nil
}

func (b *BreakerStore) LatestPerGroup(ctx context.Context, agg string, level granularity.Level) ([]aggregation.BucketRow, error) {
	out, err := b.execute("latest per group", func() (any, error) {
		return b.next.LatestPerGroup(ctx, agg, level)
	})
	if err != nil {
		return nil, err
	}
	return out.([]aggregation.BucketRow), nil
}

type readResult struct {
	row   aggregation.BucketRow
	found bool
}

func (b *BreakerStore) ReadBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) (aggregation.BucketRow, bool, error) {
	out, err := b.execute("read bucket", func() (any, error) {
		row, found, err := b.next.ReadBucket(ctx, agg, level, groupID, start)
		return readResult{row: row, found: found}, err
	})
	if err != nil {
		return aggregation.BucketRow{}, false, err
	}
	res := out.(readResult)
	return res.row, res.found, nil
}

func (b *BreakerStore) DeleteBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) error {
	_, err := b.execute("delete bucket", func() (any, error) {
		return nil, b.next.DeleteBucket(ctx, agg, level, groupID, start)
	})
	return err
}

func (b *BreakerStore) PurgeBefore(ctx context.Context, agg string, level granularity.Level, cutoff time.Time) (int64, error) {
	out, err := b.execute("purge", func() (any, error) {
		return b.next.PurgeBefore(ctx, agg, level, cutoff)
	})
	if err != nil {
		return 0, err
	}
	return out.(int64), nil
}

// Ping forwards to the wrapped store when it supports health checks.
func (b *BreakerStore) Ping(ctx context.Context) error {
	if p, ok := b.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
