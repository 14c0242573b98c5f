package domain

import (
	"fmt"
	"strings"
	"time"
)

// Column names that identify a unit in the dataset.
const (
	ColumnSubjectID       = "subject_id"
	ColumnH2O             = "h2o"
	ColumnSession         = "session"
	ColumnSessionDate     = "session_date"
	ColumnInsertionNumber = "insertion_number"
	ColumnUnit            = "unit"
	ColumnAreaOfInterest  = "area_of_interest"
)

// UnitKey identifies one recorded unit. It carries both the numeric subject id and
// the water restriction name because the two image classes name files differently.
type UnitKey struct {
	SubjectID       int64     `json:"subject_id"`
	H2O             string    `json:"h2o"`
	Session         int64     `json:"session"`
	SessionDate     time.Time `json:"session_date"`
	InsertionNumber int64     `json:"insertion_number"`
	Unit            int64     `json:"unit"`
	AreaOfInterest  string    `json:"area_of_interest"`
}

// UnitKeyFromRow extracts the key fields from one table row. Missing columns leave
// the zero value; a present but malformed integral field is an error.
func UnitKeyFromRow(t Table, row int) (UnitKey, error) {
	var key UnitKey
	ints := []struct {
		column string
		dest   *int64
	}{
		{ColumnSubjectID, &key.SubjectID},
		{ColumnSession, &key.Session},
		{ColumnInsertionNumber, &key.InsertionNumber},
		{ColumnUnit, &key.Unit},
	}
	for _, field := range ints {
		v, ok := t.Value(field.column, row)
		if !ok || v == nil {
			continue
		}
		i, ok := ToInt(v)
		if !ok {
			return UnitKey{}, fmt.Errorf("row %d: %s value %v is not an integer", row, field.column, v)
		}
		*field.dest = i
	}
	if v, ok := t.Value(ColumnH2O, row); ok && v != nil {
		key.H2O = FormatValue(v)
	}
	if v, ok := t.Value(ColumnAreaOfInterest, row); ok && v != nil {
		key.AreaOfInterest = FormatValue(v)
	}
	if v, ok := t.Value(ColumnSessionDate, row); ok && v != nil {
		switch d := v.(type) {
		case time.Time:
			key.SessionDate = d
		case string:
			parsed, err := time.Parse("2006-01-02 15:04:05", d)
			if err != nil {
				parsed, err = time.Parse("2006-01-02", d)
			}
			if err != nil {
				return UnitKey{}, fmt.Errorf("row %d: session_date %q: %w", row, d, err)
			}
			key.SessionDate = parsed
		}
	}
	return key, nil
}

// UnitKeys extracts a key for every row of the table.
func UnitKeys(t Table) ([]UnitKey, error) {
	keys := make([]UnitKey, 0, t.Len())
	for row := 0; row < t.Len(); row++ {
		key, err := UnitKeyFromRow(t, row)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// DateStamp formats the session date as it appears in figure filenames.
func (k UnitKey) DateStamp() string {
	if k.SessionDate.IsZero() {
		return ""
	}
	return k.SessionDate.Format("20060102")
}

// ID is a stable string identity used for form values and cache keys.
func (k UnitKey) ID() string {
	return strings.Join([]string{
		fmt.Sprint(k.SubjectID),
		k.H2O,
		fmt.Sprint(k.Session),
		k.DateStamp(),
		fmt.Sprint(k.InsertionNumber),
		fmt.Sprint(k.Unit),
		k.AreaOfInterest,
	}, "|")
}

// Caption is the heading drawn above a unit's figures.
func (k UnitKey) Caption() string {
	return fmt.Sprintf("%s, Session %d, %s, unit %d (%s)", k.H2O, k.Session, k.DateStamp(), k.Unit, k.AreaOfInterest)
}

// UnitSummary counts units, animals and insertions in a unit table.
type UnitSummary struct {
	Units      int `json:"units"`
	Animals    int `json:"animals"`
	Insertions int `json:"insertions"`
}

// Summarize computes the unit summary. Animals are distinct subject ids and
// insertions are distinct (subject, session, insertion) triples.
func Summarize(t Table) UnitSummary {
	summary := UnitSummary{Units: t.Len()}
	animals := map[string]struct{}{}
	insertions := map[string]struct{}{}
	for row := 0; row < t.Len(); row++ {
		subject, _ := t.Value(ColumnSubjectID, row)
		session, _ := t.Value(ColumnSession, row)
		insertion, _ := t.Value(ColumnInsertionNumber, row)
		animals[FormatValue(subject)] = struct{}{}
		insertions[FormatValue(subject)+"|"+FormatValue(session)+"|"+FormatValue(insertion)] = struct{}{}
	}
	if t.HasColumn(ColumnSubjectID) {
		summary.Animals = len(animals)
	}
	if t.HasColumn(ColumnSubjectID) && t.HasColumn(ColumnSession) && t.HasColumn(ColumnInsertionNumber) {
		summary.Insertions = len(insertions)
	}
	return summary
}

// String renders the summary line shown above the unit table.
func (s UnitSummary) String() string {
	return fmt.Sprintf("%d units, %d mice, %d insertions", s.Units, s.Animals, s.Insertions)
}
