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

// LatePolicy decides what happens to an event older than a level's purge watermark.
type LatePolicy string

const (
	// LatePolicyUpdate compensates the persisted row, recreating it if it was purged.
	LatePolicyUpdate LatePolicy = "update"
	// LatePolicyDrop rejects the event with ErrLateEventDropped.
	LatePolicyDrop LatePolicy = "drop"
)

// ParseLatePolicy maps a config value to a LatePolicy. Empty means update.
func ParseLatePolicy(s string) (LatePolicy, error) {
	switch LatePolicy(s) {
	case "", LatePolicyUpdate:
		return LatePolicyUpdate, nil
	case LatePolicyDrop:
		return LatePolicyDrop, nil
	}
	return "", fmt.Errorf("unknown late policy %q (want update or drop)", s)
}

// Options tunes a Chain. The zero value is usable.
type Options struct {
	Shards     int
	LatePolicy LatePolicy

	// SkipReplayed skips events not newer than the group's latest durable event
	// seen at recovery. The guard for a group lifts on its first newer event.
	SkipReplayed bool

	// Lookback bounds how far back recovery reads finer rows for a group that
	// has no row at the coarser level. Zero reads everything.
	Lookback time.Duration

	NowFn func() time.Time
}

func (o Options) normalized() Options {
	if o.Shards <= 0 {
		o.Shards = partition.DefaultShards
	}
	if o.LatePolicy == "" {
		o.LatePolicy = LatePolicyUpdate
	}
	if o.NowFn == nil {
		o.NowFn = time.Now
	}
	return o
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{SkipReplayed: true}.normalized()
}

// Chain is the handle for one aggregation: its executors wired finest to
// coarsest, and the startup gate that keeps ingest closed until recovery ran.
type Chain struct {
	def       *aggregation.Definition
	store     storage.BucketStore
	opts      Options
	executors []*Executor

	ready atomic.Bool

	// gate is held shared by every ingest; StopIngest takes it exclusively.
	gate    sync.RWMutex
	stopped bool

	guardMu     sync.Mutex
	replayGuard map[string]time.Time
}

// NewChain builds one executor per granularity of def.
func NewChain(def aggregation.Definition, store storage.BucketStore, opts Options) *Chain {
	opts = opts.normalized()
	d := def
	c := &Chain{
		def:         &d,
		store:       store,
		opts:        opts,
		replayGuard: make(map[string]time.Time),
	}
	for _, lvl := range d.Granularities {
		c.executors = append(c.executors, newExecutor(c.def, lvl, store, opts.Shards, opts.NowFn))
	}
	for i := 0; i < len(c.executors)-1; i++ {
		c.executors[i].next = c.executors[i+1]
	}
	return c
}

// Definition returns the aggregation this chain maintains.
func (c *Chain) Definition() *aggregation.Definition { return c.def }

// Name returns the aggregation name.
func (c *Chain) Name() string { return c.def.Name }

// Ready reports whether recovery completed and ingest is open.
func (c *Chain) Ready() bool { return c.ready.Load() }

func (c *Chain) markReady() { c.ready.Store(true) }

// StopIngest refuses further ingests with ErrNotReady and returns once every
// ingest already in progress has finished. Queries and flushes keep working.
func (c *Chain) StopIngest() {
	c.gate.Lock()
	defer c.gate.Unlock()
	c.stopped = true
}

// Executor returns the executor for level, or false if the chain does not maintain it.
func (c *Chain) Executor(level granularity.Level) (*Executor, bool) {
	for _, e := range c.executors {
		if e.level == level {
			return e, true
		}
	}
	return nil, false
}

func (c *Chain) levelIndex(level granularity.Level) int {
	for i, e := range c.executors {
		if e.level == level {
			return i
		}
	}
	return -1
}

// Ingest folds one event into the finest executor. Cascading closes run
// synchronously, so a returned ErrPersistence leaves the event unfolded and
// the caller may retry it.
func (c *Chain) Ingest(ctx context.Context, group aggregation.GroupKey, ts time.Time, fields map[string]interface{}) error {
	c.gate.RLock()
	defer c.gate.RUnlock()
	if !c.Ready() || c.stopped {
		return coreerr.ErrNotReady
	}
	if _, err := granularity.BucketStart(ts, c.def.Finest()); err != nil {
		eventsSkipped.WithLabelValues(c.def.Name, "invalid_timestamp").Inc()
		return err
	}
	ts = ts.UTC()

	if c.opts.LatePolicy == LatePolicyDrop {
		for _, e := range c.executors {
			purged := e.PurgedBefore()
			if !purged.IsZero() && granularity.MustBucketStart(ts, e.level).Before(purged) {
				eventsSkipped.WithLabelValues(c.def.Name, "late_dropped").Inc()
				slog.Warn("[Chain] Dropped event for purged bucket",
					"aggregation", c.def.Name,
					"granularity", e.level.String(),
					"event_time", ts,
					"purged_before", purged,
				)
				return fmt.Errorf("%w: %s bucket for %s purged before %s",
					coreerr.ErrLateEventDropped, e.level, ts.Format(time.RFC3339), purged.Format(time.RFC3339))
			}
		}
	}

	id := group.ID()
	if c.opts.SkipReplayed && c.replayed(id, ts) {
		eventsSkipped.WithLabelValues(c.def.Name, "replayed").Inc()
		slog.Debug("[Chain] Skipped event already reflected in durable state",
			"aggregation", c.def.Name,
			"group", id,
			"event_time", ts,
		)
		return nil
	}

	if err := c.executors[0].ingestPartial(ctx, group, ts, c.def.Delta(ts, fields)); err != nil {
		return err
	}
	eventsIngested.WithLabelValues(c.def.Name).Inc()
	return nil
}

// replayed reports whether ts is covered by the group's replay guard, and
// lifts the guard once a newer event arrives.
func (c *Chain) replayed(id string, ts time.Time) bool {
	c.guardMu.Lock()
	defer c.guardMu.Unlock()
	guard, ok := c.replayGuard[id]
	if !ok {
		return false
	}
	if !ts.After(guard) {
		return true
	}
	delete(c.replayGuard, id)
	return false
}

func (c *Chain) setReplayGuard(id string, lastEventAt time.Time) {
	if lastEventAt.IsZero() {
		return
	}
	c.guardMu.Lock()
	defer c.guardMu.Unlock()
	c.replayGuard[id] = lastEventAt
}

// FlushAll closes every open bucket at every level, finest first, so that the
// coarser levels receive the finer tails before they are closed themselves.
func (c *Chain) FlushAll(ctx context.Context) error {
	return c.flush(ctx, nil)
}

// FlushIdle closes buckets that have not been touched for idle.
func (c *Chain) FlushIdle(ctx context.Context, idle time.Duration) error {
	now := c.opts.NowFn()
	return c.flush(ctx, func(o *openBucket) bool {
		return now.Sub(o.updatedAt) < idle
	})
}

func (c *Chain) flush(ctx context.Context, keep func(*openBucket) bool) error {
	var errs error
	for _, e := range c.executors {
		n, err := e.flush(ctx, keep)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("flush %s: %w", e.level, err))
		}
		if n > 0 {
			slog.Debug("[Chain] Flushed open buckets",
				"aggregation", c.def.Name,
				"granularity", e.level.String(),
				"closed", n,
			)
		}
	}
	return errs
}

// Snapshot is a consistent copy of the in-memory state relevant to one level.
// Open holds that level's open buckets in full. Pending holds contributions of
// finer levels not yet forwarded, rolled up to the level's bucket starts.
type Snapshot struct {
	Open     map[aggregation.BucketKey]aggregation.BucketRow
	Pending  map[aggregation.BucketKey]aggregation.BucketRow
	WriteSeq uint64
}

// Snapshot copies the open state visible at level for buckets starting in
// [from, to). A non-empty groupID restricts the copy to that group. Shards of
// the same index are locked finest first at every level up to level, the same
// order cascades take, so no contribution is seen twice or missed.
func (c *Chain) Snapshot(level granularity.Level, from, to time.Time, groupID string) (Snapshot, error) {
	target := c.levelIndex(level)
	if target < 0 {
		return Snapshot{}, fmt.Errorf("%w: %s does not maintain %s", coreerr.ErrUnknownAggregation, c.def.Name, level)
	}

	snap := Snapshot{
		Open:    make(map[aggregation.BucketKey]aggregation.BucketRow),
		Pending: make(map[aggregation.BucketKey]aggregation.BucketRow),
	}

	indexes := make([]int, 0, c.opts.Shards)
	if groupID != "" {
		indexes = append(indexes, partition.For(groupID, c.opts.Shards))
	} else {
		for k := 0; k < c.opts.Shards; k++ {
			indexes = append(indexes, k)
		}
	}

	for _, k := range indexes {
		levels := c.executors[:target+1]
		for _, e := range levels {
			e.shards[k].mu.Lock()
		}
		for i, e := range levels {
			for id, o := range e.shards[k].open {
				if groupID != "" && id != groupID {
					continue
				}
				start := granularity.MustBucketStart(o.start, level)
				if !storage.InRange(start, from, to) {
					continue
				}
				key := aggregation.BucketKey{Group: id, Start: start}
				if i == target {
					snap.Open[key] = aggregation.NewRow(start, o.group, o.state.Clone())
					continue
				}
				if o.pending.IsZero() {
					continue
				}
				row, ok := snap.Pending[key]
				if !ok {
					row = aggregation.NewRow(start, o.group, c.def.NewState())
				}
				row.State.Merge(o.pending)
				snap.Pending[key] = row
			}
		}
		for i := len(levels) - 1; i >= 0; i-- {
			levels[i].shards[k].mu.Unlock()
		}
	}

	for key, row := range snap.Pending {
		row.Values = row.State.Project()
		snap.Pending[key] = row
	}
	snap.WriteSeq = c.executors[target].WriteSeq()
	return snap, nil
}

// PurgeBefore deletes persisted rows at level older than cutoff. The cutoff is
// aligned down to the next coarser bucket so a coarser bucket never loses only
// part of its finer rows, and capped at the earliest bucket still open at this
// level or the next one, whose recovery reads these rows. It returns the number
// of rows removed and the cutoff applied.
func (c *Chain) PurgeBefore(ctx context.Context, level granularity.Level, cutoff time.Time) (int64, time.Time, error) {
	idx := c.levelIndex(level)
	if idx < 0 {
		return 0, time.Time{}, fmt.Errorf("%w: %s does not maintain %s", coreerr.ErrUnknownAggregation, c.def.Name, level)
	}
	effective, err := granularity.BucketStart(cutoff, level)
	if err != nil {
		return 0, time.Time{}, err
	}
	if idx+1 < len(c.executors) {
		effective = granularity.MustBucketStart(effective, c.executors[idx+1].level)
	}
	for _, e := range c.executors[idx:min(idx+2, len(c.executors))] {
		if earliest, ok := e.earliestOpen(); ok {
			if s := granularity.MustBucketStart(earliest, level); s.Before(effective) {
				effective = s
			}
		}
	}

	n, err := c.store.PurgeBefore(ctx, c.def.Name, level, effective)
	if err != nil {
		return 0, effective, fmt.Errorf("%w: purge %s %s before %s: %w",
			coreerr.ErrPersistence, c.def.Name, level, effective.Format(time.RFC3339), err)
	}
	c.executors[idx].markPurged(effective)

	slog.Info("[Chain] Purged buckets",
		"aggregation", c.def.Name,
		"granularity", level.String(),
		"requested_cutoff", cutoff,
		"effective_cutoff", effective,
		"removed", n,
	)
	return n, effective, nil
}

// OpenBuckets returns the number of open buckets per level.
func (c *Chain) OpenBuckets() map[granularity.Level]int {
	out := make(map[granularity.Level]int, len(c.executors))
	for _, e := range c.executors {
		out[e.level] = e.openCount()
	}
	return out
}
