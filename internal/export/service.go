// Package export writes a table as a CSV or XLSX download.
package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/unitdash/internal/domain"
)

// Format is a download file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned for formats other than csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// DefaultSheet names the worksheet of XLSX exports.
const DefaultSheet = "units"

// ParseFormat maps a file extension to a Format.
func ParseFormat(ext string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(ext, "."))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%q: %w", ext, ErrUnsupportedFormat)
	}
}

// ContentType returns the MIME type of a format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Write encodes the table in the given format.
func Write(w io.Writer, format Format, table domain.Table) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, table)
	case FormatXLSX:
		return WriteXLSX(w, table)
	default:
		return fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
}

// WriteCSV writes a header row and one record per table row.
func WriteCSV(w io.Writer, table domain.Table) error {
	buffered := bufio.NewWriterSize(w, 64<<10)
	csvWriter := csv.NewWriter(buffered)

	if err := csvWriter.Write(table.ColumnNames()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(table.Columns))
	for row := 0; row < table.Len(); row++ {
		for i, col := range table.Columns {
			record[i] = formatValue(col.Values[row])
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return buffered.Flush()
}

// WriteXLSX writes the table to a single worksheet keeping numeric, boolean and
// time cells typed.
func WriteXLSX(w io.Writer, table domain.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", DefaultSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(DefaultSheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]interface{}, len(table.Columns))
	for i, name := range table.ColumnNames() {
		header[i] = name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for row := 0; row < table.Len(); row++ {
		cells := make([]interface{}, len(table.Columns))
		for i, col := range table.Columns {
			cells[i] = xlsxValue(col.Values[row])
		}
		cell, err := excelize.CoordinatesToCellName(1, row+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush xlsx: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// FileName builds a download name like "units-20240102-150405.csv".
func FileName(base string, format Format, now time.Time) string {
	base = sanitizeFileComponent(base)
	if base == "" {
		base = "export"
	}
	return fmt.Sprintf("%s-%s.%s", base, now.UTC().Format("20060102-150405"), format)
}

func xlsxValue(value any) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string, int64, float64, bool, time.Time:
		return v
	default:
		return formatValue(v)
	}
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}

// formatValue renders a cell for CSV. Missing cells are empty.
func formatValue(value any) string {
	if value == nil {
		return ""
	}
	if t, ok := value.(time.Time); ok {
		return t.Format("2006-01-02 15:04:05")
	}
	return domain.FormatValue(value)
}
