package aggregation

import (
	"context"
	"log/slog"
	"time"

	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
)

// RetentionPolicy removes persisted buckets older than a per-level age.
// A level without an entry is kept forever.
type RetentionPolicy struct {
	Interval time.Duration
	MaxAge   map[granularity.Level]time.Duration
}

// SchedulerOptions configures the background maintenance loop.
type SchedulerOptions struct {
	// SweepInterval is how often idle buckets are flushed; zero disables the sweep.
	SweepInterval time.Duration
	// IdleAfter is how long a bucket may go untouched before the sweep closes it.
	IdleAfter time.Duration
	// Retention is disabled when its Interval is zero.
	Retention RetentionPolicy
	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration

	NowFn func() time.Time
}

func (o SchedulerOptions) normalized() SchedulerOptions {
	if o.IdleAfter <= 0 {
		o.IdleAfter = o.SweepInterval
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	if o.NowFn == nil {
		o.NowFn = time.Now
	}
	return o
}

// Scheduler runs idle flushes and retention purges for a set of chains, and
// flushes everything once more when it stops.
type Scheduler struct {
	chains []*Chain
	opts   SchedulerOptions
}

// NewScheduler creates a scheduler for chains.
func NewScheduler(chains []*Chain, opts SchedulerOptions) *Scheduler {
	return &Scheduler{
		chains: chains,
		opts:   opts.normalized(),
	}
}

// Start runs until ctx is cancelled, then stops ingest on every chain and
// performs a final FlushAll.
func (s *Scheduler) Start(ctx context.Context) error {
	var sweepC, purgeC <-chan time.Time
	if s.opts.SweepInterval > 0 {
		t := time.NewTicker(s.opts.SweepInterval)
		defer t.Stop()
		sweepC = t.C
	}
	if s.opts.Retention.Interval > 0 && len(s.opts.Retention.MaxAge) > 0 {
		t := time.NewTicker(s.opts.Retention.Interval)
		defer t.Stop()
		purgeC = t.C
	}

	slog.Info("[Scheduler] Starting maintenance loop",
		"aggregations", len(s.chains),
		"sweep_interval", s.opts.SweepInterval,
		"idle_after", s.opts.IdleAfter,
		"retention_interval", s.opts.Retention.Interval,
	)

	for {
		select {
		case <-sweepC:
			s.sweep(ctx)
		case <-purgeC:
			s.purge(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
			defer cancel()

			slog.Info("[Scheduler] Running final flush before shutdown...")
			s.flushAll(shutdownCtx)
			slog.Info("[Scheduler] Final flush complete")
			return nil
		}
	}
}

// sweep closes buckets idle for longer than IdleAfter.
func (s *Scheduler) sweep(ctx context.Context) {
	for _, c := range s.chains {
		if !c.Ready() {
			continue
		}
		if err := c.FlushIdle(ctx, s.opts.IdleAfter); err != nil {
			slog.Error("[Scheduler] Idle flush failed",
				"aggregation", c.Name(),
				"error", err,
			)
		}
	}
}

// purge applies the retention policy to every chain and level it names.
func (s *Scheduler) purge(ctx context.Context) {
	now := s.opts.NowFn()
	for _, c := range s.chains {
		if !c.Ready() {
			continue
		}
		for _, lvl := range c.def.Granularities {
			age, ok := s.opts.Retention.MaxAge[lvl]
			if !ok || age <= 0 {
				continue
			}
			if _, _, err := c.PurgeBefore(ctx, lvl, now.Add(-age)); err != nil {
				slog.Error("[Scheduler] Retention purge failed",
					"aggregation", c.Name(),
					"granularity", lvl.String(),
					"error", err,
				)
			}
		}
	}
}

func (s *Scheduler) flushAll(ctx context.Context) {
	for _, c := range s.chains {
		c.StopIngest()
		if !c.Ready() {
			continue
		}
		if err := c.FlushAll(ctx); err != nil {
			slog.Error("[Scheduler] Final flush failed",
				"aggregation", c.Name(),
				"error", err,
			)
		}
	}
}
