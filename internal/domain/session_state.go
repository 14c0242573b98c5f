package domain

import (
	"encoding/json"
	"time"
)

// DefaultFilterColumns is the column selection shown before the user picks any.
var DefaultFilterColumns = []string{ColumnAreaOfInterest}

// Selection sources.
const (
	SelectSourceTable  = "table"
	SelectSourceFilter = "filter"
)

// SelectSources lists the sources a gallery can draw from, in display order.
var SelectSources = []string{SelectSourceTable, SelectSourceFilter}

// Range is a closed numeric interval.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DateRange is a closed interval of calendar days. A nil bound means the range is
// incomplete and applies no filtering.
type DateRange struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Complete reports whether both bounds are set.
func (r DateRange) Complete() bool {
	return r.Start != nil && r.End != nil
}

// FilterState is the persisted value of every filter control. A column with no
// entry in a map uses the control's default.
type FilterState struct {
	Columns    []string             `json:"columns"`
	Selections map[string][]string  `json:"selections,omitempty"`
	Ranges     map[string]Range     `json:"ranges,omitempty"`
	Log        map[string]bool      `json:"log,omitempty"`
	Dates      map[string]DateRange `json:"dates,omitempty"`
	Patterns   map[string]string    `json:"patterns,omitempty"`
}

// NewFilterState returns a state with the default column selection.
func NewFilterState() FilterState {
	return FilterState{Columns: append([]string(nil), DefaultFilterColumns...)}
}

// SetColumns replaces the selected filter columns.
func (s *FilterState) SetColumns(columns []string) {
	s.Columns = append([]string{}, columns...)
}

// SetSelection stores the chosen categorical values for a column.
func (s *FilterState) SetSelection(column string, values []string) {
	if s.Selections == nil {
		s.Selections = map[string][]string{}
	}
	s.Selections[column] = append([]string{}, values...)
}

// SetRange stores the numeric range for a column.
func (s *FilterState) SetRange(column string, r Range) {
	if s.Ranges == nil {
		s.Ranges = map[string]Range{}
	}
	s.Ranges[column] = r
}

// SetLog toggles the log transform. A change of scale invalidates the stored range.
func (s *FilterState) SetLog(column string, on bool) {
	if s.Log == nil {
		s.Log = map[string]bool{}
	}
	if s.Log[column] != on {
		delete(s.Ranges, column)
	}
	s.Log[column] = on
}

// SetDates stores the date range for a column.
func (s *FilterState) SetDates(column string, r DateRange) {
	if s.Dates == nil {
		s.Dates = map[string]DateRange{}
	}
	s.Dates[column] = r
}

// SetPattern stores the text pattern for a column.
func (s *FilterState) SetPattern(column, pattern string) {
	if s.Patterns == nil {
		s.Patterns = map[string]string{}
	}
	s.Patterns[column] = pattern
}

// ResetColumn drops the stored control value of a column so its default applies
// again. The log toggle is kept.
func (s *FilterState) ResetColumn(column string) {
	delete(s.Selections, column)
	delete(s.Ranges, column)
	delete(s.Dates, column)
	delete(s.Patterns, column)
}

// GallerySettings holds the gallery form values.
type GallerySettings struct {
	Source    string   `json:"source"`
	NumCols   int      `json:"num_cols"`
	DrawTypes []string `json:"draw_types"`
	AutoDraw  bool     `json:"auto_draw"`
}

// Gallery column bounds.
const (
	MinGalleryCols     = 1
	MaxGalleryCols     = 10
	DefaultGalleryCols = 3
)

// DefaultGallerySettings returns the settings used before the user changes any.
func DefaultGallerySettings() GallerySettings {
	return GallerySettings{
		Source:    SelectSourceTable,
		NumCols:   DefaultGalleryCols,
		DrawTypes: []string{"psth"},
	}
}

// Normalize clamps the column count and fills missing values with defaults.
func (g GallerySettings) Normalize() GallerySettings {
	if g.NumCols < MinGalleryCols {
		g.NumCols = DefaultGalleryCols
	}
	if g.NumCols > MaxGalleryCols {
		g.NumCols = MaxGalleryCols
	}
	if g.Source == "" {
		g.Source = SelectSourceTable
	}
	if g.DrawTypes == nil {
		g.DrawTypes = []string{"psth"}
	}
	return g
}

// SessionState is everything one browser session remembers between requests.
type SessionState struct {
	Filter    FilterState          `json:"filter"`
	Selected  map[string][]UnitKey `json:"selected"`
	Gallery   GallerySettings      `json:"gallery"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// NewSessionState returns the state of a fresh session.
func NewSessionState() SessionState {
	return SessionState{
		Filter:   NewFilterState(),
		Selected: map[string][]UnitKey{},
		Gallery:  DefaultGallerySettings(),
	}
}

// Select replaces the unit keys held by a source.
func (s *SessionState) Select(source string, keys []UnitKey) {
	if s.Selected == nil {
		s.Selected = map[string][]UnitKey{}
	}
	s.Selected[source] = append([]UnitKey{}, keys...)
}

// ClearSelection empties a source.
func (s *SessionState) ClearSelection(source string) {
	if s.Selected != nil {
		s.Selected[source] = []UnitKey{}
	}
}

// Selection returns the keys held by a source.
func (s SessionState) Selection(source string) []UnitKey {
	return s.Selected[source]
}

// MarshalState encodes state for a store.
func MarshalState(state SessionState) ([]byte, error) {
	return json.Marshal(state)
}

// UnmarshalState decodes state read from a store.
func UnmarshalState(data []byte) (SessionState, error) {
	state := NewSessionState()
	if err := json.Unmarshal(data, &state); err != nil {
		return SessionState{}, err
	}
	if state.Selected == nil {
		state.Selected = map[string][]UnitKey{}
	}
	state.Gallery = state.Gallery.Normalize()
	return state, nil
}
