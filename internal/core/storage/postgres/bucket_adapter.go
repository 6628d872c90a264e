package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
	"github.com/aevon-lab/aevon-rollup/internal/core/storage"
)

// BucketAdapter implements storage.BucketStore on PostgreSQL.
// Every statement is single-row or single-statement; no transaction spans rows.
type BucketAdapter struct {
	db    *sql.DB
	nowFn func() time.Time
}

var _ storage.BucketStore = (*BucketAdapter)(nil)

// NewBucketAdapter creates a new BucketAdapter sharing the given connection.
func NewBucketAdapter(db *sql.DB) *BucketAdapter {
	return &BucketAdapter{db: db, nowFn: time.Now}
}

// Upsert replaces the row for row.Key() in the (agg, level) table.
func (a *BucketAdapter) Upsert(ctx context.Context, agg string, level granularity.Level, row aggregation.BucketRow) error {
	stateJSON, err := json.Marshal(row.State)
	if err != nil {
		return fmt.Errorf("bucket upsert: marshal state: %w", err)
	}
	outputJSON, err := json.Marshal(row.State.Project())
	if err != nil {
		return fmt.Errorf("bucket upsert: marshal output: %w", err)
	}

	var lastEventAt sql.NullTime
	if !row.State.LastEventAt.IsZero() {
		lastEventAt = sql.NullTime{Time: row.State.LastEventAt.UTC(), Valid: true}
	}

	if _, err := a.db.ExecContext(ctx, queryUpsertBucket,
		agg,
		level.String(),
		row.Group.ID(),
		row.BucketStart.UTC(),
		pq.Array([]string(row.Group)),
		stateJSON,
		outputJSON,
		row.State.EventCount,
		lastEventAt,
		a.nowFn().UTC(),
	); err != nil {
		return fmt.Errorf("bucket upsert %s/%s %q@%s: %w",
			agg, level, row.Group.ID(), row.BucketStart.UTC().Format(time.RFC3339), err)
	}
	return nil
}

// RangeRead returns rows with start <= bucket_start < end. A zero end reads to the latest row.
func (a *BucketAdapter) RangeRead(ctx context.Context, agg string, level granularity.Level, start, end time.Time) ([]aggregation.BucketRow, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if end.IsZero() {
		rows, err = a.db.QueryContext(ctx, queryRangeBucketsFrom, agg, level.String(), start.UTC())
	} else {
		rows, err = a.db.QueryContext(ctx, queryRangeBuckets, agg, level.String(), start.UTC(), end.UTC())
	}
	if err != nil {
		return nil, fmt.Errorf("bucket range read %s/%s: %w", agg, level, err)
	}
	defer rows.Close()

	return collectRows(rows)
}

// LatestPerGroup returns each group's newest row via DISTINCT ON.
func (a *BucketAdapter) LatestPerGroup(ctx context.Context, agg string, level granularity.Level) ([]aggregation.BucketRow, error) {
	rows, err := a.db.QueryContext(ctx, queryLatestPerGroup, agg, level.String())
	if err != nil {
		return nil, fmt.Errorf("bucket latest per group %s/%s: %w", agg, level, err)
	}
	defer rows.Close()

	out, err := collectRows(rows)
	if err != nil {
		return nil, err
	}
	slog.Debug("[BucketAdapter] Loaded latest rows", "aggregation", agg, "granularity", level.String(), "groups", len(out))
	return out, nil
}

// ReadBucket returns one row, or false when it does not exist.
func (a *BucketAdapter) ReadBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) (aggregation.BucketRow, bool, error) {
	row, err := scanBucketRow(a.db.QueryRowContext(ctx, queryReadBucket, agg, level.String(), groupID, start.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return aggregation.BucketRow{}, false, nil
	}
	if err != nil {
		return aggregation.BucketRow{}, false, fmt.Errorf("bucket read %s/%s %q: %w", agg, level, groupID, err)
	}
	return row, true, nil
}

// DeleteBucket removes one row by key.
func (a *BucketAdapter) DeleteBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) error {
	if _, err := a.db.ExecContext(ctx, queryDeleteBucket, agg, level.String(), groupID, start.UTC()); err != nil {
		return fmt.Errorf("bucket delete %s/%s %q: %w", agg, level, groupID, err)
	}
	return nil
}

// PurgeBefore deletes rows with bucket_start < cutoff.
func (a *BucketAdapter) PurgeBefore(ctx context.Context, agg string, level granularity.Level, cutoff time.Time) (int64, error) {
	result, err := a.db.ExecContext(ctx, queryPurgeBefore, agg, level.String(), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("bucket purge %s/%s: %w", agg, level, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bucket purge %s/%s: rows affected: %w", agg, level, err)
	}
	if n > 0 {
		slog.Info("[BucketAdapter] Purged buckets",
			"aggregation", agg,
			"granularity", level.String(),
			"before", cutoff.UTC(),
			"rows", n,
		)
	}
	return n, nil
}

// Ping checks database connectivity.
func (a *BucketAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanBucketRow scans one row of (group_values, bucket_start, state, updated_at).
// Compatible with both sql.Row (single) and sql.Rows (multiple).
func scanBucketRow(s scanner) (aggregation.BucketRow, error) {
	var (
		groupValues []string
		start       time.Time
		stateJSON   []byte
		updatedAt   time.Time
	)
	if err := s.Scan(pq.Array(&groupValues), &start, &stateJSON, &updatedAt); err != nil {
		return aggregation.BucketRow{}, err
	}

	var state aggregation.AggregateState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return aggregation.BucketRow{}, fmt.Errorf("unmarshal state: %w", err)
	}
	if state.Values == nil {
		state.Values = make(map[string]aggregation.Accumulator)
	}

	row := aggregation.NewRow(start, aggregation.GroupKey(groupValues), state)
	if row.Group == nil {
		row.Group = aggregation.GroupKey{}
	}
	row.UpdatedAt = updatedAt.UTC()
	return row, nil
}

func collectRows(rows *sql.Rows) ([]aggregation.BucketRow, error) {
	var out []aggregation.BucketRow
	for rows.Next() {
		row, err := scanBucketRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bucket row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket rows: %w", err)
	}
	return out, nil
}
