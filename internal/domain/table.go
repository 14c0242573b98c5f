package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// FieldType represents the data type of a table column
type FieldType string

const (
	FieldTypeString      FieldType = "string"
	FieldTypeInteger     FieldType = "integer"
	FieldTypeFloat       FieldType = "float"
	FieldTypeBoolean     FieldType = "boolean"
	FieldTypeTimestamp   FieldType = "timestamp"
	FieldTypeCategorical FieldType = "categorical"
)

// NullLabel is the display form of a missing cell.
const NullLabel = "<null>"

// IsNumeric reports whether values of the type can be ordered as numbers.
func (t FieldType) IsNumeric() bool {
	return t == FieldTypeInteger || t == FieldTypeFloat
}

// Column is a named, typed slice of cells. A nil cell is a missing value.
// Non-nil cells hold string, int64, float64, bool or time.Time according to Type.
type Column struct {
	Name   string    `json:"name"`
	Type   FieldType `json:"type"`
	Values []any     `json:"values"`
}

// Table is a column-major record set. Every column has the same length.
type Table struct {
	Columns []Column `json:"columns"`
}

// NewTable builds a table and checks that all columns have the same length.
func NewTable(columns ...Column) (Table, error) {
	if len(columns) > 0 {
		n := len(columns[0].Values)
		for _, c := range columns[1:] {
			if len(c.Values) != n {
				return Table{}, fmt.Errorf("column %s has %d values, expected %d", c.Name, len(c.Values), n)
			}
		}
	}
	return Table{Columns: columns}, nil
}

// Len returns the number of rows.
func (t Table) Len() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

// ColumnNames returns the column names in order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table contains the named column.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// Value returns the cell at row for the named column.
func (t Table) Value(name string, row int) (any, bool) {
	c, ok := t.Column(name)
	if !ok || row < 0 || row >= len(c.Values) {
		return nil, false
	}
	return c.Values[row], true
}

// WithColumn returns a copy of the table with the named column replaced.
func (t Table) WithColumn(col Column) Table {
	columns := make([]Column, len(t.Columns))
	copy(columns, t.Columns)
	for i, c := range columns {
		if c.Name == col.Name {
			columns[i] = col
			return Table{Columns: columns}
		}
	}
	return Table{Columns: append(columns, col)}
}

// Take returns a new table holding the given rows in the given order.
func (t Table) Take(rows []int) Table {
	columns := make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		values := make([]any, len(rows))
		for j, row := range rows {
			values[j] = c.Values[row]
		}
		columns[i] = Column{Name: c.Name, Type: c.Type, Values: values}
	}
	return Table{Columns: columns}
}

// Where returns the rows for which keep returns true.
func (t Table) Where(keep func(row int) bool) Table {
	rows := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return t.Take(rows)
}

// Row returns the cells of one row keyed by column name.
func (t Table) Row(row int) map[string]any {
	record := make(map[string]any, len(t.Columns))
	for _, c := range t.Columns {
		record[c.Name] = c.Values[row]
	}
	return record
}

// Records returns every row keyed by column name.
func (t Table) Records() []map[string]any {
	records := make([]map[string]any, t.Len())
	for i := range records {
		records[i] = t.Row(i)
	}
	return records
}

// Unique returns the distinct non-nil cells in order of first appearance and
// whether the column holds any nil cell.
func (c Column) Unique() ([]any, bool) {
	seen := make(map[string]struct{}, len(c.Values))
	var (
		unique  []any
		hasNull bool
	)
	for _, v := range c.Values {
		if v == nil {
			hasNull = true
			continue
		}
		key := FormatValue(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, v)
	}
	return unique, hasNull
}

// NUnique counts distinct non-nil cells.
func (c Column) NUnique() int {
	unique, _ := c.Unique()
	return len(unique)
}

// Floats returns the numeric cells as float64 with a validity mask.
func (c Column) Floats() ([]float64, []bool) {
	values := make([]float64, len(c.Values))
	valid := make([]bool, len(c.Values))
	for i, v := range c.Values {
		if f, ok := ToFloat(v); ok {
			values[i] = f
			valid[i] = true
		}
	}
	return values, valid
}

// FormatValue renders a cell the way it is displayed and compared in filters.
func FormatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return NullLabel
	case string:
		return value
	case int64:
		return strconv.FormatInt(value, 10)
	case int:
		return strconv.Itoa(value)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(value)
	case time.Time:
		if value.Hour() == 0 && value.Minute() == 0 && value.Second() == 0 && value.Nanosecond() == 0 {
			return value.Format("2006-01-02")
		}
		return value.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", value)
	}
}

// ToFloat converts numeric cells to float64.
func ToFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case int64:
		return float64(value), true
	case int:
		return float64(value), true
	case int32:
		return float64(value), true
	case float64:
		if math.IsNaN(value) {
			return 0, false
		}
		return value, true
	case float32:
		return float64(value), true
	default:
		return 0, false
	}
}

// ToInt converts integral cells to int64.
func ToInt(v any) (int64, bool) {
	switch value := v.(type) {
	case int64:
		return value, true
	case int:
		return int64(value), true
	case int32:
		return int64(value), true
	case float64:
		if math.IsNaN(value) || math.Mod(value, 1) != 0 {
			return 0, false
		}
		return int64(value), true
	case string:
		i, err := strconv.ParseInt(value, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
