// Package granularity defines the ladder of time units rollups are maintained at
// and the pure bucketing functions over it. All arithmetic is UTC Gregorian.
package granularity

import (
	"fmt"
	"strings"
	"time"

	coreerr "github.com/aevon-lab/aevon-rollup/internal/core/errors"
)

// Level is one rung of the granularity ladder. Levels are totally ordered, finest first.
type Level int

const (
	Seconds Level = iota
	Minutes
	Hours
	Days
	Months
	Years
)

// All lists every level, finest first.
var All = []Level{Seconds, Minutes, Hours, Days, Months, Years}

var names = [...]string{"SECONDS", "MINUTES", "HOURS", "DAYS", "MONTHS", "YEARS"}

var aliases = map[string]Level{
	"sec": Seconds, "secs": Seconds, "second": Seconds, "seconds": Seconds,
	"min": Minutes, "mins": Minutes, "minute": Minutes, "minutes": Minutes,
	"hour": Hours, "hours": Hours,
	"day": Days, "days": Days,
	"month": Months, "months": Months,
	"year": Years, "years": Years,
}

// epochFloor is the earliest accepted event time.
var epochFloor = time.Unix(0, 0).UTC()

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return names[l]
}

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	return l >= Seconds && l <= Years
}

// Next returns the adjacent coarser level, or false for the top of the ladder.
func (l Level) Next() (Level, bool) {
	if !l.Valid() || l == Years {
		return l, false
	}
	return l + 1, true
}

// ParseLevel accepts level names and common aliases, case-insensitively.
func ParseLevel(s string) (Level, error) {
	lvl, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown granularity %q", s)
	}
	return lvl, nil
}

// ParseRange expands "sec...year" style ranges (inclusive on both ends).
// A single level name yields just that level.
func ParseRange(s string) ([]Level, error) {
	from, to, isRange := strings.Cut(s, "...")
	if !isRange {
		lvl, err := ParseLevel(s)
		if err != nil {
			return nil, err
		}
		return []Level{lvl}, nil
	}

	lo, err := ParseLevel(from)
	if err != nil {
		return nil, err
	}
	hi, err := ParseLevel(to)
	if err != nil {
		return nil, err
	}
	if hi < lo {
		return nil, fmt.Errorf("granularity range %q runs from coarser to finer", s)
	}

	levels := make([]Level, 0, hi-lo+1)
	for l := lo; l <= hi; l++ {
		levels = append(levels, l)
	}
	return levels, nil
}

// BucketStart truncates ts to the start of its bucket at level l.
// Example: BucketStart(2018-05-08 13:27:41, Minutes) → 2018-05-08 13:27:00
func BucketStart(ts time.Time, l Level) (time.Time, error) {
	if ts.IsZero() || ts.Before(epochFloor) {
		return time.Time{}, fmt.Errorf("%w: %s is before the epoch floor", coreerr.ErrInvalidTimestamp, ts.Format(time.RFC3339Nano))
	}
	if !l.Valid() {
		return time.Time{}, fmt.Errorf("invalid granularity %d", int(l))
	}
	return truncate(ts.UTC(), l), nil
}

// MustBucketStart is BucketStart for timestamps already known to be valid.
func MustBucketStart(ts time.Time, l Level) time.Time {
	start, err := BucketStart(ts, l)
	if err != nil {
		panic(err)
	}
	return start
}

// BucketEnd returns the exclusive end of the bucket starting at start.
func BucketEnd(start time.Time, l Level) time.Time {
	start = start.UTC()
	switch l {
	case Seconds:
		return start.Add(time.Second)
	case Minutes:
		return start.Add(time.Minute)
	case Hours:
		return start.Add(time.Hour)
	case Days:
		return start.AddDate(0, 0, 1)
	case Months:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(1, 0, 0)
	}
}

func truncate(t time.Time, l Level) time.Time {
	y, mo, d := t.Date()
	switch l {
	case Seconds:
		return t.Truncate(time.Second)
	case Minutes:
		return t.Truncate(time.Minute)
	case Hours:
		return t.Truncate(time.Hour)
	case Days:
		return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	case Months:
		return time.Date(y, mo, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
}
