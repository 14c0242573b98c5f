package dashboard

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/filter"
)

const dateLayout = "2006-01-02"

// Form field prefixes of the filter panel. Each is followed by the column name.
const (
	fieldSelection = "sel."
	fieldOptions   = "opts."
	fieldLow       = "lo."
	fieldHigh      = "hi."
	fieldMin       = "min."
	fieldMax       = "max."
	fieldLog       = "log."
	fieldLogWas    = "logwas."
	fieldStart     = "start."
	fieldEnd       = "end."
	fieldPattern   = "pat."
)

// applyFilterForm folds a submitted filter panel into state. Only the controls
// listed in the "control" field are read; a control submitted at its default
// value is reset so later upstream filter changes keep it at the default.
func applyFilterForm(state *domain.FilterState, form url.Values, kinds map[string]filter.Kind) {
	if form.Has("reset") {
		*state = domain.NewFilterState()
		return
	}

	if form.Has("columns_submitted") {
		columns := make([]string, 0, len(form["columns"]))
		for _, c := range form["columns"] {
			if _, ok := kinds[c]; ok {
				columns = append(columns, c)
			}
		}
		state.SetColumns(columns)
	}

	for _, col := range form["control"] {
		switch kinds[col] {
		case filter.KindCategorical:
			selected := form[fieldSelection+col]
			if n, err := strconv.Atoi(form.Get(fieldOptions + col)); err == nil && n == len(selected) {
				state.ResetColumn(col)
				continue
			}
			state.SetSelection(col, selected)

		case filter.KindNumeric:
			on := form.Get(fieldLog+col) != ""
			was := form.Get(fieldLogWas+col) == "1"
			if on != was {
				// The submitted bounds are on the old scale.
				state.SetLog(col, on)
				continue
			}
			lo, errLo := parseFloat(form.Get(fieldLow + col))
			hi, errHi := parseFloat(form.Get(fieldHigh + col))
			if errLo != nil || errHi != nil {
				continue
			}
			if lo > hi {
				lo, hi = hi, lo
			}
			// A bound left at the span's edge stays open so it keeps covering the
			// edge row once the submitted text has lost precision.
			atLow, atHigh := false, false
			if lower, err := parseFloat(form.Get(fieldMin + col)); err == nil && lo <= lower {
				lo, atLow = -math.MaxFloat64, true
			}
			if upper, err := parseFloat(form.Get(fieldMax + col)); err == nil && hi >= upper {
				hi, atHigh = math.MaxFloat64, true
			}
			if atLow && atHigh {
				state.ResetColumn(col)
				continue
			}
			state.SetRange(col, domain.Range{Low: lo, High: hi})

		case filter.KindDatetime:
			start := parseDate(form.Get(fieldStart + col))
			end := parseDate(form.Get(fieldEnd + col))
			state.SetDates(col, domain.DateRange{Start: start, End: end})

		case filter.KindText:
			pattern := form.Get(fieldPattern + col)
			if pattern == "" {
				state.ResetColumn(col)
				continue
			}
			state.SetPattern(col, pattern)
		}
	}
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func parseDate(s string) *time.Time {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &t
}

// parseUnitKey reads a unit key from query parameters.
func parseUnitKey(q url.Values) (domain.UnitKey, error) {
	var key domain.UnitKey
	ints := []struct {
		name string
		dest *int64
	}{
		{domain.ColumnSubjectID, &key.SubjectID},
		{domain.ColumnSession, &key.Session},
		{domain.ColumnInsertionNumber, &key.InsertionNumber},
		{domain.ColumnUnit, &key.Unit},
	}
	for _, field := range ints {
		raw := strings.TrimSpace(q.Get(field.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.UnitKey{}, &paramError{name: field.name, value: raw}
		}
		*field.dest = v
	}
	key.H2O = q.Get(domain.ColumnH2O)
	key.AreaOfInterest = q.Get(domain.ColumnAreaOfInterest)
	if raw := strings.TrimSpace(q.Get(domain.ColumnSessionDate)); raw != "" {
		d, err := time.Parse(dateLayout, raw)
		if err != nil {
			d, err = time.Parse("20060102", raw)
		}
		if err != nil {
			return domain.UnitKey{}, &paramError{name: domain.ColumnSessionDate, value: raw}
		}
		key.SessionDate = d
	}
	return key, nil
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return "invalid " + e.name + " " + strconv.Quote(e.value)
}
