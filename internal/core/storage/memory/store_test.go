package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
)

func testRow(t *testing.T, group string, start time.Time, price float64) aggregation.BucketRow {
	t.Helper()
	def, err := aggregation.Compile(aggregation.RawDefinition{
		Name:        "stock",
		SourceEvent: "stockStream",
		GroupBy:     []string{"symbol"},
		Aggregates:  []aggregation.AggregateSpec{{Function: aggregation.OpSum, Field: "price", As: "total"}},
	})
	require.NoError(t, err)
	return aggregation.NewRow(start, aggregation.GroupKey{group}, def.Delta(start, map[string]interface{}{"price": price}))
}

func TestStore_UpsertReplacesAndReads(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	t0 := time.Date(2018, 5, 8, 13, 27, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, "stock", granularity.Minutes, testRow(t, "IBM", t0, 100)))
	require.NoError(t, s.Upsert(ctx, "stock", granularity.Minutes, testRow(t, "IBM", t0, 250)))
	require.Equal(t, 1, s.Len("stock", granularity.Minutes))

	row, found, err := s.ReadBucket(ctx, "stock", granularity.Minutes, "IBM", t0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "250", row.Values["total"].String())

	_, found, err = s.ReadBucket(ctx, "stock", granularity.Hours, "IBM", t0)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_RangeReadLatestAndPurge(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	t0 := time.Date(2018, 5, 8, 13, 27, 0, 0, time.UTC)

	for i, group := range []string{"WSO2", "IBM", "IBM"} {
		require.NoError(t, s.Upsert(ctx, "stock", granularity.Minutes, testRow(t, group, t0.Add(time.Duration(i)*time.Minute), 100)))
	}

	rows, err := s.RangeRead(ctx, "stock", granularity.Minutes, t0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "WSO2", rows[0].Group.ID())

	rows, err = s.RangeRead(ctx, "stock", granularity.Minutes, t0.Add(time.Minute), time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	latest, err := s.LatestPerGroup(ctx, "stock", granularity.Minutes)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	require.Equal(t, "WSO2", latest[0].Group.ID())
	require.Equal(t, t0.Add(2*time.Minute), latest[1].BucketStart)

	n, err := s.PurgeBefore(ctx, "stock", granularity.Minutes, t0.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, 2, s.Len("stock", granularity.Minutes))
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStore().RangeRead(ctx, "stock", granularity.Minutes, time.Time{}, time.Time{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestStore_DeleteBucket(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	t0 := time.Date(2018, 5, 8, 13, 27, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, "stock", granularity.Seconds, testRow(t, "IBM", t0, 100)))
	require.NoError(t, s.Upsert(ctx, "stock", granularity.Seconds, testRow(t, "WSO2", t0, 100)))

	require.NoError(t, s.DeleteBucket(ctx, "stock", granularity.Seconds, "IBM", t0))
	require.NoError(t, s.DeleteBucket(ctx, "stock", granularity.Seconds, "IBM", t0))
	require.NoError(t, s.DeleteBucket(ctx, "stock", granularity.Hours, "IBM", t0))

	_, found, err := s.ReadBucket(ctx, "stock", granularity.Seconds, "IBM", t0)
	require.NoError(t, err)
	require.False(t, found)
	require.Equal(t, 1, s.Len("stock", granularity.Seconds))
}
