// Package badger implements the bucket store on an embedded BadgerDB LSM tree.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/aevon-lab/aevon-rollup/internal/core/aggregation"
	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
	"github.com/aevon-lab/aevon-rollup/internal/core/storage"
)

// Key layout: "bkt" 0x00 <aggregation> 0x00 <level byte> <bucket start, 8 bytes big-endian unix seconds> <group id>
// Big-endian starts make a prefix scan return rows in bucketStart order, then group order.
const keyTag = "bkt"

// Config holds BadgerDB configuration.
type Config struct {
	// Path to store database files
	Path string

	// InMemory mode (for testing)
	InMemory bool

	// MaxMemoryMB limits BadgerDB memory usage in MB (0 = laptop-friendly defaults)
	MaxMemoryMB int64
}

// Store implements storage.BucketStore using BadgerDB.
type Store struct {
	db    *badger.DB
	nowFn func() time.Time
}

var _ storage.BucketStore = (*Store)(nil)

type storedRow struct {
	Group     []string                   `json:"group"`
	State     aggregation.AggregateState `json:"state"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// New opens a BadgerDB bucket store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	memTableSize := int64(16 << 20)
	if cfg.MaxMemoryMB > 0 {
		memTableSize = cfg.MaxMemoryMB << 20 / 3
	}

	// Rows are small and rewritten in place; one version and tight caches are enough.
	opts = opts.
		WithCompression(options.Snappy).
		WithNumVersionsToKeep(1).
		WithMemTableSize(memTableSize).
		WithNumMemtables(3).
		WithBlockCacheSize(memTableSize / 2).
		WithIndexCacheSize(memTableSize / 4).
		WithMaxLevels(4).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithNumCompactors(2).
		WithValueLogFileSize(64 << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &Store{db: db, nowFn: time.Now}, nil
}

func tablePrefix(agg string, level granularity.Level) []byte {
	p := make([]byte, 0, len(keyTag)+len(agg)+3)
	p = append(p, keyTag...)
	p = append(p, 0)
	p = append(p, agg...)
	p = append(p, 0, byte(level))
	return p
}

func startBytes(start time.Time) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(start.UTC().Unix()))
	return b[:]
}

func makeKey(agg string, level granularity.Level, start time.Time, groupID string) []byte {
	key := tablePrefix(agg, level)
	key = append(key, startBytes(start)...)
	return append(key, groupID...)
}

// parseKey splits the part after the table prefix into bucket start and group ID.
func parseKey(prefixLen int, key []byte) (time.Time, string) {
	rest := key[prefixLen:]
	start := time.Unix(int64(binary.BigEndian.Uint64(rest[:8])), 0).UTC()
	return start, string(rest[8:])
}

func decodeRow(start time.Time, val []byte) (aggregation.BucketRow, error) {
	var sr storedRow
	if err := json.Unmarshal(val, &sr); err != nil {
		return aggregation.BucketRow{}, fmt.Errorf("failed to decode bucket row: %w", err)
	}
	if sr.State.Values == nil {
		sr.State.Values = make(map[string]aggregation.Accumulator)
	}
	row := aggregation.NewRow(start, aggregation.GroupKey(sr.Group), sr.State)
	if row.Group == nil {
		row.Group = aggregation.GroupKey{}
	}
	row.UpdatedAt = sr.UpdatedAt
	return row, nil
}

// Upsert replaces the row at its bucket key.
func (s *Store) Upsert(ctx context.Context, agg string, level granularity.Level, row aggregation.BucketRow) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(storedRow{
		Group:     []string(row.Group),
		State:     row.State,
		UpdatedAt: s.nowFn().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode bucket row: %w", err)
	}
	key := makeKey(agg, level, row.BucketStart, row.Group.ID())
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	}); err != nil {
		return fmt.Errorf("badger upsert %s/%s: %w", agg, level, err)
	}
	return nil
}

// scan walks the (agg, level) table from start in key order until visit returns false.
func (s *Store) scan(ctx context.Context, agg string, level granularity.Level, from time.Time, visit func(start time.Time, groupID string, item *badger.Item) (bool, error)) error {
	prefix := tablePrefix(agg, level)
	seek := prefix
	if !from.IsZero() && !from.Before(time.Unix(0, 0)) {
		seek = append(append([]byte(nil), prefix...), startBytes(from)...)
	}

	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchSize = 100

		it := txn.NewIterator(opts)
		defer it.Close()

		var iterCount int
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			iterCount++
			if iterCount%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			item := it.Item()
			start, groupID := parseKey(len(prefix), item.Key())
			more, err := visit(start, groupID, item)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
		return nil
	})
}

// RangeRead returns rows with start <= bucketStart < end in key order.
func (s *Store) RangeRead(ctx context.Context, agg string, level granularity.Level, start, end time.Time) ([]aggregation.BucketRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []aggregation.BucketRow
	err := s.scan(ctx, agg, level, start, func(bucketStart time.Time, _ string, item *badger.Item) (bool, error) {
		if !end.IsZero() && !bucketStart.Before(end) {
			return false, nil
		}
		return true, item.Value(func(val []byte) error {
			row, err := decodeRow(bucketStart, val)
			if err != nil {
				return err
			}
			out = append(out, row)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger range read %s/%s: %w", agg, level, err)
	}
	return out, nil
}

// LatestPerGroup scans the table once and keeps each group's newest row.
func (s *Store) LatestPerGroup(ctx context.Context, agg string, level granularity.Level) ([]aggregation.BucketRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	latest := make(map[string]aggregation.BucketRow)
	err := s.scan(ctx, agg, level, time.Time{}, func(bucketStart time.Time, groupID string, item *badger.Item) (bool, error) {
		// Keys ascend by start, so a later key for the same group always wins.
		return true, item.Value(func(val []byte) error {
			row, err := decodeRow(bucketStart, val)
			if err != nil {
				return err
			}
			latest[groupID] = row
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("badger latest per group %s/%s: %w", agg, level, err)
	}

	out := make([]aggregation.BucketRow, 0, len(latest))
	for _, row := range latest {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Group.ID() < out[j].Group.ID() })
	return out, nil
}

// ReadBucket fetches a single row by key.
func (s *Store) ReadBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) (aggregation.BucketRow, bool, error) {
	if err := ctx.Err(); err != nil {
		return aggregation.BucketRow{}, false, err
	}
	var (
		row   aggregation.BucketRow
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(makeKey(agg, level, start, groupID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			row, err = decodeRow(start.UTC(), val)
			return err
		})
	})
	if err != nil {
		return aggregation.BucketRow{}, false, fmt.Errorf("badger read %s/%s %q: %w", agg, level, groupID, err)
	}
	return row, found, nil
}

// DeleteBucket removes a single row by key.
func (s *Store) DeleteBucket(ctx context.Context, agg string, level granularity.Level, groupID string, start time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(makeKey(agg, level, start, groupID))
	})
	if err != nil {
		return fmt.Errorf("badger delete %s/%s %q: %w", agg, level, groupID, err)
	}
	return nil
}

// PurgeBefore deletes rows with bucketStart < cutoff using a write batch.
func (s *Store) PurgeBefore(ctx context.Context, agg string, level granularity.Level, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var keys [][]byte
	err := s.scan(ctx, agg, level, time.Time{}, func(bucketStart time.Time, _ string, item *badger.Item) (bool, error) {
		if !bucketStart.Before(cutoff) {
			return false, nil
		}
		keys = append(keys, item.KeyCopy(nil))
		return true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger purge %s/%s: %w", agg, level, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("badger purge %s/%s: delete: %w", agg, level, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("badger purge %s/%s: flush: %w", agg, level, err)
	}

	slog.Info("[Badger] Purged buckets",
		"aggregation", agg,
		"granularity", level.String(),
		"before", cutoff.UTC(),
		"rows", len(keys),
	)
	return int64(len(keys)), nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return fmt.Errorf("badger is closed")
	}
	return nil
}

// Close shuts down BadgerDB cleanly.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC runs value log garbage collection. badger.ErrNoRewrite means nothing to reclaim.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}
