package filter

import (
	"strings"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
)

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// ParseTimestamp tries the known layouts in order.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// StripZone keeps the wall-clock reading and drops the location.
func StripZone(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// CoerceDatetimes converts string columns whose every non-empty cell parses as a
// timestamp. Columns that fail to parse keep their type. Every timestamp column,
// converted or not, loses its zone.
func CoerceDatetimes(t domain.Table) domain.Table {
	out := t
	for _, col := range t.Columns {
		switch col.Type {
		case domain.FieldTypeString:
			if converted, ok := coerceColumn(col); ok {
				out = out.WithColumn(converted)
			}
		case domain.FieldTypeTimestamp:
			out = out.WithColumn(stripColumnZone(col))
		}
	}
	return out
}

func coerceColumn(col domain.Column) (domain.Column, bool) {
	values := make([]any, len(col.Values))
	seen := false
	for i, v := range col.Values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return domain.Column{}, false
		}
		if strings.TrimSpace(s) == "" {
			continue
		}
		ts, ok := ParseTimestamp(s)
		if !ok {
			return domain.Column{}, false
		}
		values[i] = StripZone(ts)
		seen = true
	}
	if !seen {
		return domain.Column{}, false
	}
	return domain.Column{Name: col.Name, Type: domain.FieldTypeTimestamp, Values: values}, true
}

func stripColumnZone(col domain.Column) domain.Column {
	values := make([]any, len(col.Values))
	for i, v := range col.Values {
		if ts, ok := v.(time.Time); ok {
			values[i] = StripZone(ts)
			continue
		}
		values[i] = v
	}
	return domain.Column{Name: col.Name, Type: col.Type, Values: values}
}
