package aggregation

import (
	"time"

	"github.com/shopspring/decimal"
)

// Function defines the fold and merge semantics of an aggregation function.
// To add a new function: implement this interface and register it in Functions.
type Function interface {
	// Add folds a single event value into acc.
	Add(acc Accumulator, v decimal.Decimal) Accumulator

	// Merge combines two partial accumulators. Must be associative and commutative.
	Merge(a, b Accumulator) Accumulator

	// Result projects the accumulator to its output value.
	Result(acc Accumulator) decimal.Decimal
}

// Functions is the registry of all supported aggregation functions.
var Functions = map[string]Function{
	OpCount: countFn{},
	OpSum:   sumFn{},
	OpAvg:   avgFn{},
	OpMin:   minFn{},
	OpMax:   maxFn{},
}

// ValidFunction reports whether fn is a registered aggregation function.
func ValidFunction(fn string) bool {
	_, ok := Functions[fn]
	return ok
}

// countFn counts events. The incoming value is ignored.
type countFn struct{}

func (countFn) Add(acc Accumulator, _ decimal.Decimal) Accumulator {
	acc.Count++
	return acc
}
func (countFn) Merge(a, b Accumulator) Accumulator {
	a.Count += b.Count
	return a
}
func (countFn) Result(acc Accumulator) decimal.Decimal { return decimal.NewFromInt(acc.Count) }

// sumFn accumulates the sum of incoming values.
type sumFn struct{}

func (sumFn) Add(acc Accumulator, v decimal.Decimal) Accumulator {
	acc.Sum = acc.Sum.Add(v)
	acc.Count++
	return acc
}
func (sumFn) Merge(a, b Accumulator) Accumulator {
	a.Sum = a.Sum.Add(b.Sum)
	a.Count += b.Count
	return a
}
func (sumFn) Result(acc Accumulator) decimal.Decimal { return acc.Sum }

// avgFn keeps (sum, count) and divides on projection.
type avgFn struct{ sumFn }

func (avgFn) Result(acc Accumulator) decimal.Decimal {
	if acc.Count == 0 {
		return decimal.Zero
	}
	return acc.Sum.Div(decimal.NewFromInt(acc.Count))
}

// minFn tracks the minimum value seen.
type minFn struct{}

func (minFn) Add(acc Accumulator, v decimal.Decimal) Accumulator {
	return minFn{}.Merge(acc, Accumulator{Function: acc.Function, Extreme: v, Count: 1})
}
func (minFn) Merge(a, b Accumulator) Accumulator {
	switch {
	case b.Count == 0:
	case a.Count == 0 || b.Extreme.LessThan(a.Extreme):
		a.Extreme = b.Extreme
	}
	a.Count += b.Count
	return a
}
func (minFn) Result(acc Accumulator) decimal.Decimal { return acc.Extreme }

// maxFn tracks the maximum value seen.
type maxFn struct{}

func (maxFn) Add(acc Accumulator, v decimal.Decimal) Accumulator {
	return maxFn{}.Merge(acc, Accumulator{Function: acc.Function, Extreme: v, Count: 1})
}
func (maxFn) Merge(a, b Accumulator) Accumulator {
	switch {
	case b.Count == 0:
	case a.Count == 0 || b.Extreme.GreaterThan(a.Extreme):
		a.Extreme = b.Extreme
	}
	a.Count += b.Count
	return a
}
func (maxFn) Result(acc Accumulator) decimal.Decimal { return acc.Extreme }

// Merge folds other into s in place. Columns missing from s are taken from other.
func (s *AggregateState) Merge(other AggregateState) {
	if s.Values == nil {
		s.Values = make(map[string]Accumulator, len(other.Values))
	}
	for col, acc := range other.Values {
		cur, ok := s.Values[col]
		if !ok {
			s.Values[col] = acc
			continue
		}
		fn, ok := Functions[cur.Function]
		if !ok {
			continue
		}
		s.Values[col] = fn.Merge(cur, acc)
	}
	s.EventCount += other.EventCount
	if other.LastEventAt.After(s.LastEventAt) {
		s.LastEventAt = other.LastEventAt
	}
}

// Clone returns a copy that shares no mutable state with s.
func (s AggregateState) Clone() AggregateState {
	out := AggregateState{
		Values:      make(map[string]Accumulator, len(s.Values)),
		EventCount:  s.EventCount,
		LastEventAt: s.LastEventAt,
	}
	for col, acc := range s.Values {
		out.Values[col] = acc
	}
	return out
}

// IsZero reports whether no event has been folded into s.
func (s AggregateState) IsZero() bool {
	return s.EventCount == 0
}

// Project computes the output column values of s.
func (s AggregateState) Project() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(s.Values))
	for col, acc := range s.Values {
		fn, ok := Functions[acc.Function]
		if !ok {
			continue
		}
		out[col] = fn.Result(acc)
	}
	return out
}

// Touch records that an event at ts was folded into s.
func (s *AggregateState) Touch(ts time.Time) {
	s.EventCount++
	if ts.After(s.LastEventAt) {
		s.LastEventAt = ts.UTC()
	}
}
