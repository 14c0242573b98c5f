package domain

import (
	"testing"
	"time"
)

func unitTable(t *testing.T) Table {
	t.Helper()
	table, err := NewTable(
		Column{Name: ColumnSubjectID, Type: FieldTypeInteger, Values: []any{int64(1), int64(1), int64(2)}},
		Column{Name: ColumnH2O, Type: FieldTypeString, Values: []any{"HH09", "HH09", "HH10"}},
		Column{Name: ColumnSession, Type: FieldTypeInteger, Values: []any{int64(3), int64(3), int64(1)}},
		Column{Name: ColumnSessionDate, Type: FieldTypeTimestamp, Values: []any{
			time.Date(2022, 3, 14, 0, 0, 0, 0, time.UTC),
			time.Date(2022, 3, 14, 0, 0, 0, 0, time.UTC),
			time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC),
		}},
		Column{Name: ColumnInsertionNumber, Type: FieldTypeInteger, Values: []any{int64(1), int64(2), int64(1)}},
		Column{Name: ColumnUnit, Type: FieldTypeInteger, Values: []any{int64(7), int64(12), int64(101)}},
		Column{Name: ColumnAreaOfInterest, Type: FieldTypeString, Values: []any{"ALM", "others", "NAc"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return table
}

func TestUnitKeyFromRow(t *testing.T) {
	key, err := UnitKeyFromRow(unitTable(t), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.SubjectID != 1 || key.H2O != "HH09" || key.Session != 3 || key.InsertionNumber != 1 || key.Unit != 7 || key.AreaOfInterest != "ALM" {
		t.Fatalf("unexpected key %+v", key)
	}
	if key.DateStamp() != "20220314" {
		t.Fatalf("unexpected date stamp %q", key.DateStamp())
	}
	if got := key.Caption(); got != "HH09, Session 3, 20220314, unit 7 (ALM)" {
		t.Fatalf("unexpected caption %q", got)
	}
}

func TestUnitKeyFromRowParsesStringDates(t *testing.T) {
	table, _ := NewTable(Column{Name: ColumnSessionDate, Type: FieldTypeString, Values: []any{"2022-03-14 00:00:00"}})
	key, err := UnitKeyFromRow(table, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.DateStamp() != "20220314" {
		t.Fatalf("unexpected date stamp %q", key.DateStamp())
	}
}

func TestUnitKeyFromRowRejectsFractionalUnits(t *testing.T) {
	table, _ := NewTable(Column{Name: ColumnUnit, Type: FieldTypeFloat, Values: []any{1.5}})
	if _, err := UnitKeyFromRow(table, 0); err == nil {
		t.Fatalf("expected error for a fractional unit number")
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(unitTable(t))
	if got := summary.String(); got != "3 units, 2 mice, 3 insertions" {
		t.Fatalf("unexpected summary %q", got)
	}
}
