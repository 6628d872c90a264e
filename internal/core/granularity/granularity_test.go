package granularity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreerr "github.com/aevon-lab/aevon-rollup/internal/core/errors"
)

func TestBucketStart(t *testing.T) {
	ts := time.Date(2018, 5, 8, 13, 27, 41, 987654321, time.UTC)

	tests := []struct {
		level Level
		want  time.Time
	}{
		{Seconds, time.Date(2018, 5, 8, 13, 27, 41, 0, time.UTC)},
		{Minutes, time.Date(2018, 5, 8, 13, 27, 0, 0, time.UTC)},
		{Hours, time.Date(2018, 5, 8, 13, 0, 0, 0, time.UTC)},
		{Days, time.Date(2018, 5, 8, 0, 0, 0, 0, time.UTC)},
		{Months, time.Date(2018, 5, 1, 0, 0, 0, 0, time.UTC)},
		{Years, time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		t.Run(tc.level.String(), func(t *testing.T) {
			got, err := BucketStart(ts, tc.level)
			require.NoError(t, err)
			require.True(t, tc.want.Equal(got), "want=%s got=%s", tc.want, got)
		})
	}
}

func TestBucketStart_NormalizesZone(t *testing.T) {
	// 00:30 in UTC+2 is 22:30 the previous day in UTC.
	zone := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2020, 3, 1, 0, 30, 0, 0, zone)

	got, err := BucketStart(ts, Days)
	require.NoError(t, err)
	require.Equal(t, time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), got)
}

func TestBucketStart_IsDeterministic(t *testing.T) {
	ts := time.UnixMilli(1525786081000)
	for _, lvl := range All {
		first, err := BucketStart(ts, lvl)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			again, err := BucketStart(ts, lvl)
			require.NoError(t, err)
			require.Equal(t, first, again)
		}
	}
}

func TestBucketStart_InvalidTimestamp(t *testing.T) {
	_, err := BucketStart(time.Unix(-1, 0), Seconds)
	require.Error(t, err)
	require.True(t, errors.Is(err, coreerr.ErrInvalidTimestamp))

	_, err = BucketStart(time.Time{}, Minutes)
	require.True(t, errors.Is(err, coreerr.ErrInvalidTimestamp))
}

func TestBucketEnd(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		level Level
		want  time.Time
	}{
		{"second", time.Date(2018, 5, 8, 13, 27, 41, 0, time.UTC), Seconds, time.Date(2018, 5, 8, 13, 27, 42, 0, time.UTC)},
		{"minute", time.Date(2018, 5, 8, 13, 59, 0, 0, time.UTC), Minutes, time.Date(2018, 5, 8, 14, 0, 0, 0, time.UTC)},
		{"hour", time.Date(2018, 5, 8, 23, 0, 0, 0, time.UTC), Hours, time.Date(2018, 5, 9, 0, 0, 0, 0, time.UTC)},
		{"day rolls month", time.Date(2018, 2, 28, 0, 0, 0, 0, time.UTC), Days, time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"leap february", time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), Months, time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"december", time.Date(2018, 12, 1, 0, 0, 0, 0, time.UTC), Months, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"year", time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), Years, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, BucketEnd(tc.start, tc.level))
		})
	}
}

func TestNext(t *testing.T) {
	for i, lvl := range All[:len(All)-1] {
		next, ok := lvl.Next()
		require.True(t, ok)
		require.Equal(t, All[i+1], next)
	}

	_, ok := Years.Next()
	require.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{input: "sec", want: Seconds},
		{input: "SECONDS", want: Seconds},
		{input: "min", want: Minutes},
		{input: " hours ", want: Hours},
		{input: "day", want: Days},
		{input: "Months", want: Months},
		{input: "year", want: Years},
		{input: "week", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseLevel(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseRange(t *testing.T) {
	levels, err := ParseRange("sec...year")
	require.NoError(t, err)
	require.Equal(t, All, levels)

	levels, err = ParseRange("min...day")
	require.NoError(t, err)
	require.Equal(t, []Level{Minutes, Hours, Days}, levels)

	levels, err = ParseRange("hours")
	require.NoError(t, err)
	require.Equal(t, []Level{Hours}, levels)

	_, err = ParseRange("year...sec")
	require.Error(t, err)

	_, err = ParseRange("sec...fortnight")
	require.Error(t, err)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "MINUTES", Minutes.String())
	assert.Equal(t, "Level(42)", Level(42).String())
}

func TestParseSpan(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      time.Duration
		wantError bool
	}{
		{name: "minute", input: "1m", want: time.Minute},
		{name: "hour", input: "2h", want: 2 * time.Hour},
		{name: "days suffix", input: "3d", want: 72 * time.Hour},
		{name: "years suffix", input: "1y", want: 365 * 24 * time.Hour},
		{name: "empty invalid", input: "", wantError: true},
		{name: "negative invalid", input: "-1m", wantError: true},
		{name: "zero days invalid", input: "0d", wantError: true},
		{name: "bad day format invalid", input: "xd", wantError: true},
		{name: "unknown unit invalid", input: "10x", wantError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseSpan(tc.input)
			if tc.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
