package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	coreerr "github.com/aevon-lab/aevon-rollup/internal/core/errors"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
	"github.com/aevon-lab/aevon-rollup/internal/core/partition"
	"github.com/aevon-lab/aevon-rollup/internal/core/storage"
)

// openBucket is one not-yet-closed bucket.
// state is the full content; pending is the part not yet forwarded to the next level.
type openBucket struct {
	group     aggregation.GroupKey
	start     time.Time
	state     aggregation.AggregateState
	pending   aggregation.AggregateState
	updatedAt time.Time
}

func (o *openBucket) add(delta aggregation.AggregateState, now time.Time) {
	o.state.Merge(delta)
	o.pending.Merge(delta)
	o.updatedAt = now
}

// shard owns a slice of the group space for one level.
// The same group ID maps to the same shard index at every level.
type shard struct {
	mu     sync.Mutex
	open   map[string]*openBucket
	closed map[string]time.Time // last closed bucket start per group
}

// Executor maintains open buckets for one granularity of one aggregation.
type Executor struct {
	def   *aggregation.Definition
	level granularity.Level
	store storage.BucketStore
	next  *Executor
	nowFn func() time.Time

	shards []*shard

	// writeSeq advances on every store write at this level; queries use it to detect races.
	writeSeq atomic.Uint64

	purgeMu      sync.Mutex
	purgedBefore time.Time
}

func newExecutor(def *aggregation.Definition, level granularity.Level, store storage.BucketStore, shards int, nowFn func() time.Time) *Executor {
	if shards <= 0 {
		shards = partition.DefaultShards
	}
	e := &Executor{
		def:    def,
		level:  level,
		store:  store,
		nowFn:  nowFn,
		shards: make([]*shard, shards),
	}
	for i := range e.shards {
		e.shards[i] = &shard{
			open:   make(map[string]*openBucket),
			closed: make(map[string]time.Time),
		}
	}
	return e
}

// Level returns the granularity this executor maintains.
func (e *Executor) Level() granularity.Level { return e.level }

// WriteSeq returns the number of store writes issued at this level so far.
func (e *Executor) WriteSeq() uint64 { return e.writeSeq.Load() }

func (e *Executor) shardIndex(groupID string) int {
	return partition.For(groupID, len(e.shards))
}

func (e *Executor) shardFor(groupID string) *shard {
	return e.shards[e.shardIndex(groupID)]
}

func (e *Executor) labels() []string {
	return []string{e.def.Name, e.level.String()}
}

// ingestPartial merges a partial state whose source bucket starts at sourceStart.
// For the finest level sourceStart is the event timestamp itself.
func (e *Executor) ingestPartial(ctx context.Context, group aggregation.GroupKey, sourceStart time.Time, partial aggregation.AggregateState) error {
	start, err := granularity.BucketStart(sourceStart, e.level)
	if err != nil {
		return err
	}
	id := group.ID()
	sh := e.shardFor(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()
	return e.contributeLocked(ctx, sh, id, group, start, partial)
}

func (e *Executor) contributeLocked(ctx context.Context, sh *shard, id string, group aggregation.GroupKey, start time.Time, delta aggregation.AggregateState) error {
	now := e.nowFn()

	if o, ok := sh.open[id]; ok {
		switch {
		case start.Equal(o.start):
			o.add(delta, now)
			return nil
		case start.Before(o.start):
			return e.compensateLocked(ctx, group, start, delta)
		}
		if err := e.closeLocked(ctx, sh, id, o); err != nil {
			return err
		}
	} else if w, ok := sh.closed[id]; ok {
		switch {
		case start.Equal(w):
			return e.reopenLocked(ctx, sh, id, group, start, delta, now)
		case start.Before(w):
			return e.compensateLocked(ctx, group, start, delta)
		}
	}

	sh.open[id] = &openBucket{
		group:     group,
		start:     start,
		state:     delta.Clone(),
		pending:   delta.Clone(),
		updatedAt: now,
	}
	openBuckets.WithLabelValues(e.labels()...).Inc()
	return nil
}

// reopenLocked re-materializes the most recently closed bucket from its row.
// Only the new delta is pending; the row's content already reached the next level.
func (e *Executor) reopenLocked(ctx context.Context, sh *shard, id string, group aggregation.GroupKey, start time.Time, delta aggregation.AggregateState, now time.Time) error {
	row, found, err := e.store.ReadBucket(ctx, e.def.Name, e.level, id, start)
	if err != nil {
		persistenceFailures.WithLabelValues(e.labels()...).Inc()
		return fmt.Errorf("%w: reopen %s bucket %s for %q: %w", coreerr.ErrPersistence, e.level, start.Format(time.RFC3339), id, err)
	}

	state := e.def.NewState()
	if found {
		state.Merge(row.State)
	}
	state.Merge(delta)

	sh.open[id] = &openBucket{
		group:     group,
		start:     start,
		state:     state,
		pending:   delta.Clone(),
		updatedAt: now,
	}
	openBuckets.WithLabelValues(e.labels()...).Inc()

	slog.Debug("[Executor] Reopened closed bucket",
		"aggregation", e.def.Name,
		"granularity", e.level.String(),
		"group", id,
		"bucket_start", start,
	)
	return nil
}

// closeLocked persists o and forwards its pending delta. The entry is removed
// only after both succeed, so a failed close leaves the bucket open for retry.
func (e *Executor) closeLocked(ctx context.Context, sh *shard, id string, o *openBucket) error {
	began := time.Now()

	row := aggregation.NewRow(o.start, o.group, o.state)
	if err := e.store.Upsert(ctx, e.def.Name, e.level, row); err != nil {
		persistenceFailures.WithLabelValues(e.labels()...).Inc()
		slog.Error("[Executor] Failed to persist bucket",
			"aggregation", e.def.Name,
			"granularity", e.level.String(),
			"group", id,
			"bucket_start", o.start,
			"error", err,
		)
		return fmt.Errorf("%w: close %s bucket %s for %q: %w", coreerr.ErrPersistence, e.level, o.start.Format(time.RFC3339), id, err)
	}
	e.writeSeq.Add(1)

	if e.next != nil && !o.pending.IsZero() {
		if err := e.next.ingestPartial(ctx, o.group, o.start, o.pending); err != nil {
			return err
		}
		o.pending = e.def.NewState()
	}

	delete(sh.open, id)
	if w, ok := sh.closed[id]; !ok || o.start.After(w) {
		sh.closed[id] = o.start
	}
	openBuckets.WithLabelValues(e.labels()...).Dec()
	bucketsClosed.WithLabelValues(e.labels()...).Inc()
	closeTime.WithLabelValues(e.labels()...).Observe(float64(time.Since(began).Microseconds()))

	slog.Debug("[Executor] Closed bucket",
		"aggregation", e.def.Name,
		"granularity", e.level.String(),
		"group", id,
		"bucket_start", o.start,
		"events", o.state.EventCount,
	)
	return nil
}

// compensateLocked merges a late contribution into the persisted row of an
// already-closed bucket and forwards the delta upward. When the forward fails
// the row is put back as it was read, so a retried event lands exactly once.
func (e *Executor) compensateLocked(ctx context.Context, group aggregation.GroupKey, start time.Time, delta aggregation.AggregateState) error {
	id := group.ID()

	row, found, err := e.store.ReadBucket(ctx, e.def.Name, e.level, id, start)
	if err != nil {
		persistenceFailures.WithLabelValues(e.labels()...).Inc()
		return fmt.Errorf("%w: read late %s bucket %s for %q: %w", coreerr.ErrPersistence, e.level, start.Format(time.RFC3339), id, err)
	}

	state := e.def.NewState()
	if found {
		state.Merge(row.State)
	}
	state.Merge(delta)

	if err := e.store.Upsert(ctx, e.def.Name, e.level, aggregation.NewRow(start, group, state)); err != nil {
		persistenceFailures.WithLabelValues(e.labels()...).Inc()
		return fmt.Errorf("%w: compensate %s bucket %s for %q: %w", coreerr.ErrPersistence, e.level, start.Format(time.RFC3339), id, err)
	}
	e.writeSeq.Add(1)
	lateCompensations.WithLabelValues(e.labels()...).Inc()

	slog.Warn("[Executor] Late contribution merged into closed bucket",
		"aggregation", e.def.Name,
		"granularity", e.level.String(),
		"group", id,
		"bucket_start", start,
		"recreated", !found,
	)

	if e.next == nil {
		return nil
	}
	if err := e.next.ingestPartial(ctx, group, start, delta); err != nil {
		return multierr.Append(err, e.restoreLocked(ctx, id, start, row, found))
	}
	return nil
}

// restoreLocked undoes a compensation: the previous row is rewritten, or the
// recreated row removed when none existed.
func (e *Executor) restoreLocked(ctx context.Context, id string, start time.Time, prev aggregation.BucketRow, existed bool) error {
	var err error
	if existed {
		err = e.store.Upsert(ctx, e.def.Name, e.level, prev)
	} else {
		err = e.store.DeleteBucket(ctx, e.def.Name, e.level, id, start)
	}
	if err != nil {
		persistenceFailures.WithLabelValues(e.labels()...).Inc()
		slog.Error("[Executor] Failed to roll back late contribution",
			"aggregation", e.def.Name,
			"granularity", e.level.String(),
			"group", id,
			"bucket_start", start,
			"error", err,
		)
		return fmt.Errorf("%w: roll back %s bucket %s for %q: %w", coreerr.ErrPersistence, e.level, start.Format(time.RFC3339), id, err)
	}
	e.writeSeq.Add(1)
	return nil
}

// flush closes open buckets for which keep returns false. Every shard is
// visited even after a failure; the returned error joins all failures.
func (e *Executor) flush(ctx context.Context, keep func(o *openBucket) bool) (int, error) {
	var (
		closed int
		errs   error
	)
	for _, sh := range e.shards {
		sh.mu.Lock()
		for id, o := range sh.open {
			if keep != nil && keep(o) {
				continue
			}
			if err := e.closeLocked(ctx, sh, id, o); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			closed++
		}
		sh.mu.Unlock()
	}
	return closed, errs
}

// earliestOpen returns the smallest open bucket start at this level.
func (e *Executor) earliestOpen() (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for _, sh := range e.shards {
		sh.mu.Lock()
		for _, o := range sh.open {
			if !found || o.start.Before(earliest) {
				earliest, found = o.start, true
			}
		}
		sh.mu.Unlock()
	}
	return earliest, found
}

// PurgedBefore returns this level's purge watermark; zero if nothing was purged.
func (e *Executor) PurgedBefore() time.Time {
	e.purgeMu.Lock()
	defer e.purgeMu.Unlock()
	return e.purgedBefore
}

func (e *Executor) markPurged(cutoff time.Time) {
	e.purgeMu.Lock()
	defer e.purgeMu.Unlock()
	if cutoff.After(e.purgedBefore) {
		e.purgedBefore = cutoff
	}
}

// openCount returns the number of open buckets across all shards.
func (e *Executor) openCount() int {
	n := 0
	for _, sh := range e.shards {
		sh.mu.Lock()
		n += len(sh.open)
		sh.mu.Unlock()
	}
	return n
}
