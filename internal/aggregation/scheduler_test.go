package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	coreerr "github.com/aevon-lab/aevon-rollup/internal/core/errors"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
)

func TestScheduler_FinalFlushOnShutdown(t *testing.T) {
	store := newFaultyStore()
	c := recoveredChain(t, store, newClock(ms(base)), Options{})
	ingestPrice(t, c, "WSO2", ms(base), 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	s := NewScheduler([]*Chain{c}, SchedulerOptions{SweepInterval: time.Hour})
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	require.Len(t, storedRows(t, store, granularity.Years), 1)
	require.Zero(t, c.OpenBuckets()[granularity.Seconds])

	// nothing can slip in after the final flush
	err := c.Ingest(context.Background(), aggregation.GroupKey{"WSO2"}, ms(base+1000), map[string]interface{}{"price": 1.0})
	require.ErrorIs(t, err, coreerr.ErrNotReady)
	require.Zero(t, c.OpenBuckets()[granularity.Seconds])
}

func TestScheduler_SweepFlushesIdleBuckets(t *testing.T) {
	store := newFaultyStore()
	clk := newClock(ms(base))
	c := recoveredChain(t, store, clk, Options{})
	ingestPrice(t, c, "WSO2", ms(base), 100)

	s := NewScheduler([]*Chain{c}, SchedulerOptions{SweepInterval: time.Minute, IdleAfter: 10 * time.Second})
	clk.Set(ms(base + 5_000))
	s.sweep(context.Background())
	require.Empty(t, storedRows(t, store, granularity.Seconds))

	clk.Set(ms(base + 15_000))
	s.sweep(context.Background())
	require.Len(t, storedRows(t, store, granularity.Seconds), 1)
}

func TestScheduler_PurgeAppliesRetention(t *testing.T) {
	ctx := context.Background()
	store := newFaultyStore()
	clk := newClock(ms(base))
	c := recoveredChain(t, store, clk, Options{})
	ingestPrice(t, c, "WSO2", ms(base), 100)
	ingestPrice(t, c, "WSO2", ms(base+120_000), 100)
	require.NoError(t, c.FlushAll(ctx))
	require.Len(t, storedRows(t, store, granularity.Seconds), 2)

	clk.Set(ms(base + 180_000))
	s := NewScheduler([]*Chain{c}, SchedulerOptions{
		Retention: RetentionPolicy{
			Interval: time.Hour,
			MaxAge:   map[granularity.Level]time.Duration{granularity.Seconds: time.Minute},
		},
		NowFn: clk.Now,
	})
	s.purge(ctx)

	require.Len(t, storedRows(t, store, granularity.Seconds), 1)
	require.Len(t, storedRows(t, store, granularity.Minutes), 2)
}

func TestScheduler_SkipsChainsNotReady(t *testing.T) {
	store := newFaultyStore()
	c := NewChain(stockDefinition(t), store, Options{})
	s := NewScheduler([]*Chain{c}, SchedulerOptions{})
	s.sweep(context.Background())
	s.flushAll(context.Background())
	require.False(t, c.Ready())
}
