package export

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/unitdash/internal/domain"
)

func exportTable(t *testing.T) domain.Table {
	t.Helper()
	table, err := domain.NewTable(
		domain.Column{Name: "h2o", Type: domain.FieldTypeString, Values: []any{"SC011", "SC, 012"}},
		domain.Column{Name: "unit", Type: domain.FieldTypeInteger, Values: []any{int64(7), nil}},
		domain.Column{Name: "rate", Type: domain.FieldTypeFloat, Values: []any{2.5, 0.125}},
		domain.Column{Name: "session_date", Type: domain.FieldTypeTimestamp, Values: []any{
			time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), nil,
		}},
	)
	require.NoError(t, err)
	return table
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, exportTable(t)))

	want := "h2o,unit,rate,session_date\n" +
		"SC011,7,2.5,2021-03-04 00:00:00\n" +
		"\"SC, 012\",,0.125,\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, exportTable(t)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{DefaultSheet}, f.GetSheetList())
	rows, err := f.GetRows(DefaultSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"h2o", "unit", "rate", "session_date"}, rows[0])
	assert.Equal(t, []string{"SC011", "7", "2.5"}, rows[1][:3])
	assert.Equal(t, []string{"SC, 012", "", "0.125"}, rows[2][:3])
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat(".XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, format)

	_, err = ParseFormat("parquet")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestFileName(t *testing.T) {
	now := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "filtered-units-20240102-150405.csv", FileName("Filtered Units", FormatCSV, now))
	assert.Equal(t, "export-20240102-150405.xlsx", FileName("  ", FormatXLSX, now))
}

func TestHTTPHandler(t *testing.T) {
	var format string
	handler := NewHTTPHandler(
		func(*http.Request) (domain.Table, error) { return exportTable(t), nil },
		func(*http.Request) string { return format },
		"units", nil,
	)

	format = "csv"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/units/export.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), `attachment; filename="units-`))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "h2o,unit"))

	format = "json"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/units/export.json", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	format = "csv"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/units/export.csv", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTTPHandlerSourceError(t *testing.T) {
	handler := NewHTTPHandler(
		func(*http.Request) (domain.Table, error) { return domain.Table{}, errors.New("no session") },
		func(*http.Request) string { return "csv" },
		"units", nil,
	)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/units/export.csv", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
