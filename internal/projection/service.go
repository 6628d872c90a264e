package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	rollup "github.com/aevon-lab/aevon-rollup/internal/aggregation"
	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	coreerr "github.com/aevon-lab/aevon-rollup/internal/core/errors"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
	"github.com/aevon-lab/aevon-rollup/internal/core/storage"
)

// maxSnapshotAttempts bounds retries when a bucket close races the store read.
const maxSnapshotAttempts = 3

// ErrInvalidQuery marks request validation errors that should return HTTP 400.
var ErrInvalidQuery = errors.New("invalid aggregate query")

// Service implements the query layer. It serves a hybrid read path: persisted
// buckets from the store merged with the open buckets held by the chains.
type Service struct {
	store  storage.BucketStore
	chains map[string]*rollup.Chain
	names  []string
	reads  singleflight.Group
	nowFn  func() time.Time
}

// NewService creates a new query service over chains.
func NewService(store storage.BucketStore, chains []*rollup.Chain) *Service {
	byName := make(map[string]*rollup.Chain, len(chains))
	names := make([]string, 0, len(chains))
	for _, c := range chains {
		byName[c.Name()] = c
		names = append(names, c.Name())
	}
	sort.Strings(names)

	return &Service{
		store:  store,
		chains: byName,
		names:  names,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Chain returns the chain for name.
func (s *Service) Chain(name string) (*rollup.Chain, error) {
	c, ok := s.chains[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", coreerr.ErrUnknownAggregation, name)
	}
	return c, nil
}

// Definitions summarizes every configured aggregation, ordered by name.
func (s *Service) Definitions() []DefinitionSummary {
	out := make([]DefinitionSummary, 0, len(s.names))
	for _, name := range s.names {
		c := s.chains[name]
		def := c.Definition()
		levels := make([]string, len(def.Granularities))
		for i, l := range def.Granularities {
			levels[i] = l.String()
		}
		out = append(out, DefinitionSummary{
			Name:          def.Name,
			SourceEvent:   def.SourceEvent,
			Granularities: levels,
			GroupBy:       def.GroupBy,
			Columns:       def.Columns(),
			Fingerprint:   def.Fingerprint,
			Ready:         c.Ready(),
		})
	}
	return out
}

// Query merges persisted and open buckets for req.
func (s *Service) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	c, err := s.Chain(req.Aggregation)
	if err != nil {
		return nil, err
	}
	if !c.Ready() {
		return nil, coreerr.ErrNotReady
	}
	def := c.Definition()

	level, from, to, groupID, err := s.normalizeAndValidate(def, req)
	if err != nil {
		return nil, err
	}
	exec, _ := c.Executor(level)

	var (
		persisted []aggregation.BucketRow
		snap      rollup.Snapshot
		partial   bool
	)
	for attempt := 1; ; attempt++ {
		seq := exec.WriteSeq()
		persisted, err = s.readPersisted(ctx, def.Name, level, from, to)
		partial = err != nil
		if partial {
			slog.Warn("[Query] Store read failed, serving in-memory buckets only",
				"aggregation", def.Name,
				"granularity", level.String(),
				"error", err,
			)
		}

		snap, err = c.Snapshot(level, from, to, groupID)
		if err != nil {
			return nil, err
		}
		if partial || snap.WriteSeq == seq || attempt == maxSnapshotAttempts {
			break
		}
		slog.Debug("[Query] Bucket closed during read, retrying",
			"aggregation", def.Name,
			"granularity", level.String(),
			"attempt", attempt,
		)
	}

	rows := mergeBuckets(def, persisted, snap, groupID)
	values := make([]BucketValue, 0, len(rows))
	for _, r := range rows {
		values = append(values, toBucketValue(def, level, r.row, r.open))
	}

	return &QueryResponse{
		Aggregation: def.Name,
		Granularity: level.String(),
		Start:       from,
		End:         to,
		Columns:     def.Columns(),
		Partial:     partial,
		Values:      values,
	}, nil
}

func (s *Service) normalizeAndValidate(def *aggregation.Definition, req QueryRequest) (granularity.Level, time.Time, time.Time, string, error) {
	level := def.Finest()
	if req.Granularity != "" {
		l, err := granularity.ParseLevel(req.Granularity)
		if err != nil {
			return 0, time.Time{}, time.Time{}, "", invalidQueryf("%v", err)
		}
		level = l
	}
	if !def.HasLevel(level) {
		return 0, time.Time{}, time.Time{}, "", invalidQueryf("aggregation %s does not maintain %s", def.Name, level)
	}

	if req.Start.IsZero() {
		return 0, time.Time{}, time.Time{}, "", invalidQueryf("start is required")
	}
	end := req.End
	if end.IsZero() {
		end = s.nowFn()
	}
	if !end.After(req.Start) {
		return 0, time.Time{}, time.Time{}, "", invalidQueryf("end time must be after start time")
	}
	from, err := granularity.BucketStart(req.Start, level)
	if err != nil {
		return 0, time.Time{}, time.Time{}, "", invalidQueryf("start: %v", err)
	}

	var groupID string
	if len(req.Group) > 0 {
		if len(req.Group) != len(def.GroupBy) {
			return 0, time.Time{}, time.Time{}, "", invalidQueryf("group needs %d values (%v), got %d", len(def.GroupBy), def.GroupBy, len(req.Group))
		}
		groupID = aggregation.GroupKey(req.Group).ID()
	}
	return level, from, end.UTC(), groupID, nil
}

// readPersisted reads the store, collapsing identical concurrent reads.
// Callers must treat the returned rows as read-only.
func (s *Service) readPersisted(ctx context.Context, agg string, level granularity.Level, from, to time.Time) ([]aggregation.BucketRow, error) {
	key := fmt.Sprintf("%s|%d|%d|%d", agg, level, from.UnixNano(), to.UnixNano())
	v, err, _ := s.reads.Do(key, func() (interface{}, error) {
		return s.store.RangeRead(ctx, agg, level, from, to)
	})
	if err != nil {
		return nil, err
	}
	return v.([]aggregation.BucketRow), nil
}

type mergedRow struct {
	row  aggregation.BucketRow
	open bool
}

// mergeBuckets overlays the snapshot on persisted rows: an open bucket replaces
// its persisted copy, and pending finer contributions are added on top.
// Rows are ordered by bucket start, then group.
func mergeBuckets(def *aggregation.Definition, persisted []aggregation.BucketRow, snap rollup.Snapshot, groupID string) []mergedRow {
	merged := make(map[aggregation.BucketKey]mergedRow, len(persisted)+len(snap.Open))
	for _, row := range persisted {
		key := row.Key()
		if groupID != "" && key.Group != groupID {
			continue
		}
		merged[key] = mergedRow{row: row}
	}
	for key, row := range snap.Open {
		merged[key] = mergedRow{row: row, open: true}
	}
	for key, p := range snap.Pending {
		cur, ok := merged[key]
		if !ok {
			merged[key] = mergedRow{row: p, open: true}
			continue
		}
		state := def.NewState()
		state.Merge(cur.row.State)
		state.Merge(p.State)
		merged[key] = mergedRow{row: aggregation.NewRow(key.Start, cur.row.Group, state), open: true}
	}

	out := make([]mergedRow, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].row, out[j].row
		if !a.BucketStart.Equal(b.BucketStart) {
			return a.BucketStart.Before(b.BucketStart)
		}
		return a.Group.ID() < b.Group.ID()
	})
	return out
}

func toBucketValue(def *aggregation.Definition, level granularity.Level, row aggregation.BucketRow, open bool) BucketValue {
	group := make(map[string]string, len(def.GroupBy))
	for i, col := range def.GroupBy {
		if i < len(row.Group) {
			group[col] = row.Group[i]
		}
	}
	values := row.Values
	if values == nil {
		values = row.State.Project()
	}
	return BucketValue{
		BucketStart: row.BucketStart,
		BucketEnd:   granularity.BucketEnd(row.BucketStart, level),
		Group:       group,
		Values:      values,
		EventCount:  row.State.EventCount,
		LastEventAt: row.State.LastEventAt,
		Open:        open,
	}
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
