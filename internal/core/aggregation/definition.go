package aggregation

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aevon-lab/aevon-rollup/internal/core/granularity"
)

// AggregateSpec is one output column: Function applied to Field, stored as As.
type AggregateSpec struct {
	Function string `yaml:"function" json:"function"`
	Field    string `yaml:"field" json:"field,omitempty"` // empty for count
	As       string `yaml:"as" json:"as"`
}

// Definition declares one incremental aggregation: which events feed it, how
// they are grouped, what is computed, and at which granularities.
type Definition struct {
	Name          string
	SourceEvent   string
	Granularities []granularity.Level // ascending, finest first
	GroupBy       []string
	Aggregates    []AggregateSpec
	Fingerprint   string // SHA-256 of the source document; logged at startup
}

// RawDefinition is the on-disk YAML shape. Either every ("sec...year") or
// granularities (a list of level names) selects the levels; both empty means all levels.
type RawDefinition struct {
	Name          string          `yaml:"name"`
	SourceEvent   string          `yaml:"source_event"`
	Every         string          `yaml:"every"`
	Granularities []string        `yaml:"granularities"`
	GroupBy       []string        `yaml:"group_by"`
	Aggregates    []AggregateSpec `yaml:"aggregates"`
}

// Compile validates raw and turns it into a Definition.
func Compile(raw RawDefinition) (Definition, error) {
	if raw.Name == "" {
		return Definition{}, fmt.Errorf("aggregation name must not be empty")
	}
	if raw.SourceEvent == "" {
		return Definition{}, fmt.Errorf("aggregation %q: source_event must not be empty", raw.Name)
	}
	if raw.Every != "" && len(raw.Granularities) > 0 {
		return Definition{}, fmt.Errorf("aggregation %q: set either every or granularities, not both", raw.Name)
	}

	levels, err := compileLevels(raw)
	if err != nil {
		return Definition{}, fmt.Errorf("aggregation %q: %w", raw.Name, err)
	}

	if len(raw.Aggregates) == 0 {
		return Definition{}, fmt.Errorf("aggregation %q: at least one aggregate is required", raw.Name)
	}
	seen := make(map[string]struct{}, len(raw.Aggregates))
	specs := make([]AggregateSpec, 0, len(raw.Aggregates))
	for _, spec := range raw.Aggregates {
		spec.Function = strings.ToLower(strings.TrimSpace(spec.Function))
		if !ValidFunction(spec.Function) {
			return Definition{}, fmt.Errorf("aggregation %q: unsupported function %q", raw.Name, spec.Function)
		}
		if spec.Function != OpCount && spec.Field == "" {
			return Definition{}, fmt.Errorf("aggregation %q: %s requires a field", raw.Name, spec.Function)
		}
		if spec.As == "" {
			spec.As = spec.Function
			if spec.Field != "" {
				spec.As += "_" + spec.Field
			}
		}
		if _, dup := seen[spec.As]; dup {
			return Definition{}, fmt.Errorf("aggregation %q: duplicate output column %q", raw.Name, spec.As)
		}
		seen[spec.As] = struct{}{}
		specs = append(specs, spec)
	}

	for _, col := range raw.GroupBy {
		if col == "" {
			return Definition{}, fmt.Errorf("aggregation %q: group_by column must not be empty", raw.Name)
		}
	}

	return Definition{
		Name:          raw.Name,
		SourceEvent:   raw.SourceEvent,
		Granularities: levels,
		GroupBy:       append([]string(nil), raw.GroupBy...),
		Aggregates:    specs,
		Fingerprint:   fingerprint(raw),
	}, nil
}

func compileLevels(raw RawDefinition) ([]granularity.Level, error) {
	if raw.Every != "" {
		return granularity.ParseRange(raw.Every)
	}
	if len(raw.Granularities) == 0 {
		return append([]granularity.Level(nil), granularity.All...), nil
	}

	set := make(map[granularity.Level]struct{}, len(raw.Granularities))
	for _, name := range raw.Granularities {
		lvl, err := granularity.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		if _, dup := set[lvl]; dup {
			return nil, fmt.Errorf("granularity %s listed twice", lvl)
		}
		set[lvl] = struct{}{}
	}
	levels := make([]granularity.Level, 0, len(set))
	for lvl := range set {
		levels = append(levels, lvl)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	return levels, nil
}

func fingerprint(raw RawDefinition) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", raw.Name, raw.SourceEvent, raw.Every,
		strings.Join(raw.Granularities, ","), strings.Join(raw.GroupBy, ","))
	for _, spec := range raw.Aggregates {
		fmt.Fprintf(h, "|%s:%s:%s", spec.Function, spec.Field, spec.As)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Finest returns the lowest granularity the definition maintains.
func (d *Definition) Finest() granularity.Level {
	return d.Granularities[0]
}

// HasLevel reports whether the definition maintains level l.
func (d *Definition) HasLevel(l granularity.Level) bool {
	for _, lvl := range d.Granularities {
		if lvl == l {
			return true
		}
	}
	return false
}

// NewState returns an empty state with one accumulator per output column.
func (d *Definition) NewState() AggregateState {
	s := AggregateState{Values: make(map[string]Accumulator, len(d.Aggregates))}
	for _, spec := range d.Aggregates {
		s.Values[spec.As] = Accumulator{Function: spec.Function}
	}
	return s
}

// Delta folds a single event into a fresh state. Non-count columns whose
// field is missing or non-numeric are left untouched.
func (d *Definition) Delta(ts time.Time, data map[string]interface{}) AggregateState {
	s := d.NewState()
	for _, spec := range d.Aggregates {
		acc := s.Values[spec.As]
		fn := Functions[spec.Function]
		if spec.Function == OpCount {
			s.Values[spec.As] = fn.Add(acc, decimal.NewFromInt(1))
			continue
		}
		v, ok := LookupDecimal(data, spec.Field)
		if !ok {
			continue
		}
		s.Values[spec.As] = fn.Add(acc, v)
	}
	s.Touch(ts)
	return s
}

// GroupKeyFor extracts the group-by values from an event's data.
// A missing column contributes an empty value.
func (d *Definition) GroupKeyFor(data map[string]interface{}) GroupKey {
	key := make(GroupKey, len(d.GroupBy))
	for i, col := range d.GroupBy {
		v, ok := data[col]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString {
			key[i] = s
			continue
		}
		key[i] = fmt.Sprint(v)
	}
	return key
}

// Columns returns the output column names in declaration order.
func (d *Definition) Columns() []string {
	cols := make([]string, len(d.Aggregates))
	for i, spec := range d.Aggregates {
		cols[i] = spec.As
	}
	return cols
}
