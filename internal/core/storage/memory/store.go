// Package memory is a map-backed BucketStore for tests and ephemeral deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
	"github.com/aevon-lab/aevon-rollup/internal/core/storage"
)

type tableKey struct {
	agg   string
	level granularity.Level
}

// Store keeps rows per (aggregation, level) table keyed by BucketKey.
type Store struct {
	mu     sync.RWMutex
	tables map[tableKey]map[aggregation.BucketKey]aggregation.BucketRow
	nowFn  func() time.Time
}

var _ storage.BucketStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		tables: make(map[tableKey]map[aggregation.BucketKey]aggregation.BucketRow),
		nowFn:  time.Now,
	}
}

func (s *Store) Upsert(ctx context.Context, agg string, level granularity.Level, row aggregation.BucketRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tk := tableKey{agg: agg, level: level}
	table, ok := s.tables[tk]
	if !ok {
		table = make(map[aggregation.BucketKey]aggregation.BucketRow)
		s.tables[tk] = table
	}
	row = copyRow(row)
	row.UpdatedAt = s.nowFn().UTC()
	table[row.Key()] = row
	return nil
}

func (s *Store) RangeRead(ctx context.Context, agg string, level granularity.Level, start, end time.Time) ([]aggregation.BucketRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []aggregation.BucketRow
	for _, row := range s.tables[tableKey{agg: agg, level: level}] {
		if storage.InRange(row.BucketStart, start, end) {
			out = append(out, copyRow(row))
		}
	}
	sortRows(out)
	return out, nil
}

func (s *Store) LatestPerGroup(ctx context.Context, agg string, level granularity.Level) ([]aggregation.BucketRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[string]aggregation.BucketRow)
	for key, row := range s.tables[tableKey{agg: agg, level: level}] {
		cur, ok := latest[key.Group]
		if !ok || row.BucketStart.After(cur.BucketStart) {
			latest[key.Group] = row
		}
	}
	out := make([]aggregation.BucketRow, 0, len(latest))
	for _, row := range latest {
		out = append(out, copyRow(row))
	}
	sortRows(out)
	return out, nil
}

func (s *Store) ReadBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) (aggregation.BucketRow, bool, error) {
	if err := ctx.Err(); err != nil {
		return aggregation.BucketRow{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.tables[tableKey{agg: agg, level: level}][aggregation.BucketKey{Group: groupID, Start: start.UTC()}]
	if !ok {
		return aggregation.BucketRow{}, false, nil
	}
	return copyRow(row), true, nil
}

func (s *Store) DeleteBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables[tableKey{agg: agg, level: level}], aggregation.BucketKey{Group: groupID, Start: start.UTC()})
	return nil
}

func (s *Store) PurgeBefore(ctx context.Context, agg string, level granularity.Level, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	table := s.tables[tableKey{agg: agg, level: level}]
	for key, row := range table {
		if row.BucketStart.Before(cutoff) {
			delete(table, key)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of rows stored for one table.
func (s *Store) Len(agg string, level granularity.Level) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[tableKey{agg: agg, level: level}])
}

func copyRow(row aggregation.BucketRow) aggregation.BucketRow {
	row.Group = append(aggregation.GroupKey(nil), row.Group...)
	row.State = row.State.Clone()
	row.Values = row.State.Project()
	return row
}

func sortRows(rows []aggregation.BucketRow) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].BucketStart.Equal(rows[j].BucketStart) {
			return rows[i].BucketStart.Before(rows[j].BucketStart)
		}
		return rows[i].Group.ID() < rows[j].Group.ID()
	})
}
