package aggregation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	coreerr "github.com/aevon-lab/aevon-rollup/internal/core/errors"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
)

// Coordinator recovers a set of chains before they accept events.
type Coordinator struct {
	chains []*Chain
}

// NewCoordinator creates a coordinator for chains.
func NewCoordinator(chains ...*Chain) *Coordinator {
	return &Coordinator{chains: chains}
}

// Run recovers every chain concurrently. It returns the first failure; chains
// that failed keep their gate closed.
func (rc *Coordinator) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range rc.chains {
		c := c
		g.Go(func() error {
			return c.Recover(gctx)
		})
	}
	return g.Wait()
}

// Recover rebuilds the chain from durable rows and opens the ingest gate.
//
// Levels are visited finest first. The finest level only learns its per-group
// watermark and replay guard, because raw events are not retained. Every
// coarser level is recomputed from the rows of the level below, starting at
// the group's latest row at this level: the stored latest row is kept when it
// already holds at least as many events as the recomputation, otherwise the
// recomputed buckets replace it. The result is written back before the next
// level reads it, so roll-up consistency holds across all levels on return.
// A bucket that is still current by wall clock is kept open with nothing pending.
//
// Recover is idempotent: on a consistent store it writes nothing.
func (c *Chain) Recover(ctx context.Context) error {
	began := time.Now()
	now := c.opts.NowFn().UTC()

	for _, e := range c.executors {
		e.reset()
	}
	c.guardMu.Lock()
	c.replayGuard = make(map[string]time.Time)
	c.guardMu.Unlock()

	latest := make([][]aggregation.BucketRow, len(c.executors))
	g, gctx := errgroup.WithContext(ctx)
	for i, e := range c.executors {
		i, e := i, e
		g.Go(func() error {
			rows, err := c.store.LatestPerGroup(gctx, c.def.Name, e.level)
			if err != nil {
				return fmt.Errorf("latest %s rows: %w", e.level, err)
			}
			latest[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return c.recoveryFailed(err)
	}

	heads := make(map[string]aggregation.BucketRow, len(latest[0]))
	for _, row := range latest[0] {
		heads[row.Group.ID()] = row
		c.setReplayGuard(row.Group.ID(), row.State.LastEventAt)
	}
	c.executors[0].restore(heads, now)

	var rewritten int
	for i := 1; i < len(c.executors); i++ {
		var (
			n   int
			err error
		)
		heads, n, err = c.rebuildLevel(ctx, i, heads, latest[i], now)
		if err != nil {
			return c.recoveryFailed(err)
		}
		rewritten += n
	}

	c.markReady()
	recoveryTime.WithLabelValues(c.def.Name).Observe(float64(time.Since(began).Milliseconds()))
	slog.Info("[Recovery] Aggregation recovered",
		"aggregation", c.def.Name,
		"fingerprint", c.def.Fingerprint,
		"groups", len(latest[0]),
		"rewritten_buckets", rewritten,
		"duration", time.Since(began),
	)
	return nil
}

func (c *Chain) recoveryFailed(err error) error {
	slog.Error("[Recovery] Recovery failed, ingest stays closed",
		"aggregation", c.def.Name,
		"error", err,
	)
	return fmt.Errorf("%w: %s: %w", coreerr.ErrRecovery, c.def.Name, err)
}

// rebuildLevel recomputes level idx from the rows of level idx-1. finerHeads
// holds the latest finer row per group; stored holds the latest row per group
// at this level. It returns the latest row per group at this level after the
// rebuild and the number of rows written.
func (c *Chain) rebuildLevel(ctx context.Context, idx int, finerHeads map[string]aggregation.BucketRow, stored []aggregation.BucketRow, now time.Time) (map[string]aggregation.BucketRow, int, error) {
	e := c.executors[idx]
	finer := c.executors[idx-1]

	var floor time.Time
	if c.opts.Lookback > 0 {
		floor = granularity.MustBucketStart(now.Add(-c.opts.Lookback), e.level)
	}

	heads := make(map[string]aggregation.BucketRow, len(stored))
	from := make(map[string]time.Time, len(finerHeads))
	for _, row := range stored {
		id := row.Group.ID()
		heads[id] = row
		from[id] = row.BucketStart
	}
	for id := range finerHeads {
		if _, ok := from[id]; !ok {
			from[id] = floor
		}
	}
	if len(from) == 0 {
		e.restore(heads, now)
		return heads, 0, nil
	}

	readFrom := time.Time{}
	first := true
	for _, f := range from {
		if first || f.Before(readFrom) {
			readFrom, first = f, false
		}
	}

	rows, err := c.store.RangeRead(ctx, c.def.Name, finer.level, readFrom, time.Time{})
	if err != nil {
		return nil, 0, fmt.Errorf("read %s rows since %s: %w", finer.level, readFrom.Format(time.RFC3339), err)
	}

	recomputed := make(map[aggregation.BucketKey]aggregation.BucketRow)
	for _, row := range rows {
		id := row.Group.ID()
		f, ok := from[id]
		if !ok || row.BucketStart.Before(f) {
			continue
		}
		key := aggregation.BucketKey{Group: id, Start: granularity.MustBucketStart(row.BucketStart, e.level)}
		acc, ok := recomputed[key]
		if !ok {
			acc = aggregation.NewRow(key.Start, row.Group, c.def.NewState())
		}
		acc.State.Merge(row.State)
		recomputed[key] = acc
	}

	written := 0
	for key, row := range recomputed {
		if head, ok := heads[key.Group]; ok && head.BucketStart.Equal(key.Start) &&
			head.State.EventCount >= row.State.EventCount {
			continue
		}
		row = aggregation.NewRow(row.BucketStart, row.Group, row.State)
		if err := c.store.Upsert(ctx, c.def.Name, e.level, row); err != nil {
			return nil, written, fmt.Errorf("write recomputed %s bucket %s for %q: %w",
				e.level, key.Start.Format(time.RFC3339), key.Group, err)
		}
		e.writeSeq.Add(1)
		written++

		if head, ok := heads[key.Group]; !ok || !row.BucketStart.Before(head.BucketStart) {
			heads[key.Group] = row
		}
		slog.Debug("[Recovery] Rewrote bucket from finer rows",
			"aggregation", c.def.Name,
			"granularity", e.level.String(),
			"group", key.Group,
			"bucket_start", key.Start,
			"events", row.State.EventCount,
		)
	}

	e.restore(heads, now)
	return heads, written, nil
}

// reset drops all in-memory state of the executor.
func (e *Executor) reset() {
	dropped := 0
	for _, sh := range e.shards {
		sh.mu.Lock()
		dropped += len(sh.open)
		sh.open = make(map[string]*openBucket)
		sh.closed = make(map[string]time.Time)
		sh.mu.Unlock()
	}
	if dropped > 0 {
		openBuckets.WithLabelValues(e.labels()...).Sub(float64(dropped))
	}
}

// restore installs the latest durable row of each group as its watermark. A
// row for the bucket that is current at now is re-materialized as open; its
// content is already durable at the next level, so nothing is pending.
func (e *Executor) restore(heads map[string]aggregation.BucketRow, now time.Time) {
	current := granularity.MustBucketStart(now, e.level)
	for id, row := range heads {
		sh := e.shardFor(id)
		sh.mu.Lock()
		if row.BucketStart.Equal(current) {
			sh.open[id] = &openBucket{
				group:     row.Group,
				start:     row.BucketStart,
				state:     row.State.Clone(),
				pending:   e.def.NewState(),
				updatedAt: now,
			}
			openBuckets.WithLabelValues(e.labels()...).Inc()
		} else {
			sh.closed[id] = row.BucketStart
		}
		sh.mu.Unlock()
	}
}
