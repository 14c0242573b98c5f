package filter

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
)

// Kind is the control a column is filtered with.
type Kind string

const (
	KindCategorical Kind = "categorical"
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindText        Kind = "text"
)

const (
	// CategoricalThreshold is the distinct-value count below which any column is
	// filtered as a category.
	CategoricalThreshold = 30
	// LogOffset keeps log10 finite for zero values.
	LogOffset = 1e-6
	// SliderSteps is the number of steps across a numeric control's span.
	SliderSteps = 100
)

// ErrInvalidPattern is returned when a text control holds a pattern that does not
// compile. The offending column is left unfiltered.
var ErrInvalidPattern = errors.New("invalid pattern")

// Classify picks the control kind for a column.
func Classify(col domain.Column) Kind {
	switch {
	case col.Type == domain.FieldTypeCategorical || col.NUnique() < CategoricalThreshold:
		return KindCategorical
	case col.Type.IsNumeric():
		return KindNumeric
	case col.Type == domain.FieldTypeTimestamp:
		return KindDatetime
	default:
		return KindText
	}
}

// Kinds classifies every column of the table after datetime coercion.
func Kinds(table domain.Table) map[string]Kind {
	return classifyAll(CoerceDatetimes(table))
}

func classifyAll(table domain.Table) map[string]Kind {
	kinds := make(map[string]Kind, len(table.Columns))
	for _, col := range table.Columns {
		kinds[col.Name] = Classify(col)
	}
	return kinds
}

// Control is the rendered state of one column's filter after it was applied.
type Control struct {
	Column string `json:"column"`
	Kind   Kind   `json:"kind"`

	Options  []string `json:"options,omitempty"`
	Selected []string `json:"selected,omitempty"`

	Min          float64       `json:"min"`
	Max          float64       `json:"max"`
	Step         float64       `json:"step"`
	Range        *domain.Range `json:"range,omitempty"`
	LogAvailable bool          `json:"log_available,omitempty"`
	Log          bool          `json:"log,omitempty"`
	Histogram    *Histogram    `json:"histogram,omitempty"`

	DateMin *time.Time        `json:"date_min,omitempty"`
	DateMax *time.Time        `json:"date_max,omitempty"`
	Dates   *domain.DateRange `json:"dates,omitempty"`

	Pattern string `json:"pattern,omitempty"`
	Error   string `json:"error,omitempty"`

	// RowsAfter is the row count once this control and every earlier one applied.
	RowsAfter int `json:"rows_after"`
}

// Result is the outcome of filtering a table.
type Result struct {
	Table    domain.Table       `json:"-"`
	Columns  []string           `json:"columns"`
	Kinds    map[string]Kind    `json:"kinds"`
	Controls []Control          `json:"controls"`
	Summary  domain.UnitSummary `json:"summary"`
}

// predicate reports whether a row of the table it was built for passes.
type predicate func(row int) bool

// Apply filters the table column by column in the order of state.Columns. Kinds
// are resolved once against the whole table; option lists and spans are computed
// against the rows that survived the earlier controls.
//
// The result is always usable. The error, when non-nil, wraps ErrInvalidPattern
// for every text control whose pattern did not compile.
func Apply(table domain.Table, state domain.FilterState) (Result, error) {
	table = CoerceDatetimes(table)
	kinds := classifyAll(table)

	result := Result{
		Columns: table.ColumnNames(),
		Kinds:   kinds,
	}

	var errs []error
	running := table
	seen := map[string]struct{}{}
	for _, name := range state.Columns {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		col, ok := running.Column(name)
		if !ok {
			continue
		}

		var (
			control Control
			keep    predicate
			err     error
		)
		switch kinds[name] {
		case KindCategorical:
			control, keep = categorical(col, state)
		case KindNumeric:
			control, keep = numeric(col, state)
		case KindDatetime:
			control, keep = datetime(col, state)
		default:
			control, keep, err = text(col, state)
		}
		if err != nil {
			errs = append(errs, err)
		}
		if keep != nil {
			running = running.Where(keep)
		}
		control.RowsAfter = running.Len()
		result.Controls = append(result.Controls, control)
	}

	result.Table = running
	result.Summary = domain.Summarize(running)
	return result, errors.Join(errs...)
}

func categorical(col domain.Column, state domain.FilterState) (Control, predicate) {
	unique, hasNull := col.Unique()
	options := make([]string, 0, len(unique)+1)
	for _, v := range unique {
		options = append(options, domain.FormatValue(v))
	}
	if hasNull {
		options = append(options, domain.NullLabel)
	}

	selected, ok := state.Selections[col.Name]
	if !ok {
		selected = options
	}
	control := Control{
		Column:   col.Name,
		Kind:     KindCategorical,
		Options:  options,
		Selected: append([]string{}, selected...),
	}

	allowed := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		allowed[s] = struct{}{}
	}
	return control, func(row int) bool {
		_, ok := allowed[domain.FormatValue(col.Values[row])]
		return ok
	}
}

func numeric(col domain.Column, state domain.FilterState) (Control, predicate) {
	raw, valid := col.Floats()
	rawMin, _, found := span(raw, valid)

	control := Control{Column: col.Name, Kind: KindNumeric}
	control.LogAvailable = found && rawMin >= 0
	control.Log = control.LogAvailable && state.Log[col.Name]

	x := raw
	if control.Log {
		x = make([]float64, len(raw))
		for i, v := range raw {
			x[i] = math.Log10(v + LogOffset)
		}
	}

	lo, hi, _ := span(x, valid)
	control.Min, control.Max = lo, hi
	control.Step = (hi - lo) / SliderSteps

	selected := domain.Range{Low: lo, High: hi}
	if stored, ok := state.Ranges[col.Name]; ok {
		selected = stored
		if selected.Low < lo {
			selected.Low = lo
		}
		if selected.High > hi {
			selected.High = hi
		}
	}
	control.Range = &selected
	control.Histogram = NewHistogram(x, valid, lo, hi, HistogramBins)

	return control, func(row int) bool {
		return valid[row] && x[row] >= selected.Low && x[row] <= selected.High
	}
}

func datetime(col domain.Column, state domain.FilterState) (Control, predicate) {
	control := Control{Column: col.Name, Kind: KindDatetime}

	var first, last time.Time
	for _, v := range col.Values {
		ts, ok := v.(time.Time)
		if !ok {
			continue
		}
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if last.IsZero() || ts.After(last) {
			last = ts
		}
	}

	start, end := first, last
	if !first.IsZero() {
		control.DateMin, control.DateMax = &first, &last
	}
	if stored, ok := state.Dates[col.Name]; ok {
		control.Dates = &domain.DateRange{Start: stored.Start, End: stored.End}
		if !stored.Complete() {
			return control, nil
		}
		start = truncateDay(*stored.Start)
		end = truncateDay(*stored.End).Add(24*time.Hour - time.Nanosecond)
	} else if !first.IsZero() {
		control.Dates = &domain.DateRange{Start: &first, End: &last}
	}

	return control, func(row int) bool {
		ts, ok := col.Values[row].(time.Time)
		if !ok {
			return false
		}
		return !ts.Before(start) && !ts.After(end)
	}
}

func text(col domain.Column, state domain.FilterState) (Control, predicate, error) {
	pattern := state.Patterns[col.Name]
	control := Control{Column: col.Name, Kind: KindText, Pattern: pattern}
	if pattern == "" {
		return control, nil, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		control.Error = err.Error()
		return control, nil, fmt.Errorf("column %s: %w: %v", col.Name, ErrInvalidPattern, err)
	}
	return control, func(row int) bool {
		v := col.Values[row]
		if v == nil {
			return re.MatchString("")
		}
		return re.MatchString(domain.FormatValue(v))
	}, nil
}

// span returns the min and max of the valid values and whether any was valid.
func span(values []float64, valid []bool) (float64, float64, bool) {
	lo, hi := 0.0, 0.0
	found := false
	for i, v := range values {
		if !valid[i] {
			continue
		}
		if !found {
			lo, hi = v, v
			found = true
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, found
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
