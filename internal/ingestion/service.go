package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/filter"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Querier is the subset of a pgx pool the loader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Service loads unit tables from files and databases.
type Service struct {
	categorical map[string]struct{}
	sheet       string
	logger      *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCategoricalColumns marks columns that are always typed categorical.
func WithCategoricalColumns(names ...string) Option {
	return func(s *Service) {
		for _, name := range names {
			if name = strings.TrimSpace(name); name != "" {
				s.categorical[name] = struct{}{}
			}
		}
	}
}

// WithSheet selects the xlsx sheet to read instead of the first one.
func WithSheet(sheet string) Option {
	return func(s *Service) {
		s.sheet = strings.TrimSpace(sheet)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new ingestion service.
func NewService(opts ...Option) *Service {
	s := &Service{
		categorical: map[string]struct{}{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request describes a tabular upload.
type Request struct {
	FileName       string
	HeaderRowIndex *int
	Data           io.Reader
}

// Summary describes a loaded table.
type Summary struct {
	FileName string                      `json:"fileName"`
	Rows     int                         `json:"rows"`
	Columns  map[string]domain.FieldType `json:"columns"`
}

// Summarize describes a loaded table.
func Summarize(fileName string, table domain.Table) Summary {
	columns := make(map[string]domain.FieldType, len(table.Columns))
	for _, c := range table.Columns {
		columns[c.Name] = c.Type
	}
	return Summary{FileName: fileName, Rows: table.Len(), Columns: columns}
}

type tableData struct {
	headers        []string
	rows           [][]string
	headerRowIndex int
}

// LoadFile reads a csv or xlsx file from disk. A nil headerRowIndex detects the
// header row.
func (s *Service) LoadFile(ctx context.Context, path string, headerRowIndex *int) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return s.Load(ctx, Request{FileName: filepath.Base(path), HeaderRowIndex: headerRowIndex, Data: f})
}

// Load parses an uploaded csv or xlsx file into a typed table.
func (s *Service) Load(ctx context.Context, req Request) (domain.Table, error) {
	if req.Data == nil {
		return domain.Table{}, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return domain.Table{}, errors.New("file is empty")
	}

	parsed, err := s.parseTable(req.FileName, payload, req.HeaderRowIndex)
	if err != nil {
		return domain.Table{}, err
	}
	if len(parsed.headers) == 0 {
		return domain.Table{}, errors.New("no header row detected")
	}

	columns := make([]domain.Column, 0, len(parsed.headers))
	for idx, header := range parsed.headers {
		fieldType := profileColumn(idx, parsed.rows)
		values := make([]any, len(parsed.rows))
		for rowIdx, row := range parsed.rows {
			raw := strings.TrimSpace(row[idx])
			if raw == "" {
				continue
			}
			coerced, coerceErr := coerceValue(fieldType, raw)
			if coerceErr != nil {
				return domain.Table{}, fmt.Errorf("row %d field %s: %w", parsed.headerRowIndex+rowIdx+2, header, coerceErr)
			}
			values[rowIdx] = coerced
		}
		columns = append(columns, s.column(header, fieldType, values))
	}

	table, err := domain.NewTable(columns...)
	if err != nil {
		return domain.Table{}, err
	}
	s.logger.InfoContext(ctx, "dataset loaded", "file", req.FileName, "rows", table.Len(), "columns", len(columns))
	return table, nil
}

// LoadQuery runs a query and converts the result set into a typed table.
func (s *Service) LoadQuery(ctx context.Context, q Querier, query string, args ...any) (domain.Table, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return domain.Table{}, fmt.Errorf("failed to query dataset: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	names := make([]string, len(fields))
	for i, fd := range fields {
		names[i] = fd.Name
	}
	names = sanitizeHeaders(names)

	values := make([][]any, len(fields))
	for rows.Next() {
		raw, err := rows.Values()
		if err != nil {
			return domain.Table{}, fmt.Errorf("failed to read dataset row: %w", err)
		}
		for i := range fields {
			values[i] = append(values[i], normalizeDBValue(raw[i]))
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Table{}, fmt.Errorf("failed to iterate dataset rows: %w", err)
	}

	columns := make([]domain.Column, len(fields))
	for i, name := range names {
		columns[i] = s.column(name, inferDBType(values[i]), values[i])
	}
	table, err := domain.NewTable(columns...)
	if err != nil {
		return domain.Table{}, err
	}
	s.logger.InfoContext(ctx, "dataset loaded", "query", query, "rows", table.Len(), "columns", len(columns))
	return table, nil
}

func (s *Service) column(name string, fieldType domain.FieldType, values []any) domain.Column {
	if _, ok := s.categorical[name]; ok {
		fieldType = domain.FieldTypeCategorical
	}
	return domain.Column{Name: name, Type: fieldType, Values: values}
}

func (s *Service) parseTable(fileName string, payload []byte, headerRowIndex *int) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload, headerRowIndex)
	case ".xlsx":
		return parseExcel(payload, s.sheet, headerRowIndex)
	default:
		return tableData{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte, headerRowIndex *int) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records, headerRowIndex)
}

func parseExcel(payload []byte, sheet string, headerRowIndex *int) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return tableData{}, errors.New("excel file has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from sheet %s: %w", sheet, err)
	}
	return normalizeTable(rows, headerRowIndex)
}

func normalizeTable(records [][]string, headerRowIndex *int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	start := 0
	if headerRowIndex != nil {
		if *headerRowIndex < 0 || *headerRowIndex >= len(records) {
			return tableData{}, fmt.Errorf("header row index %d out of range", *headerRowIndex)
		}
		if isBlank(records[*headerRowIndex]) {
			return tableData{}, fmt.Errorf("selected header row %d is empty", *headerRowIndex+1)
		}
		start = *headerRowIndex
	}

	headerIndex := -1
	var dataRows [][]string
	for idx := start; idx < len(records); idx++ {
		if isBlank(records[idx]) {
			continue
		}
		if headerIndex < 0 {
			headerIndex = idx
			continue
		}
		dataRows = append(dataRows, records[idx])
	}
	if headerIndex < 0 {
		return tableData{}, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(records[headerIndex])
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}

	return tableData{
		headers:        headers,
		rows:           dataRows,
		headerRowIndex: headerIndex,
	}, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	replacer := strings.NewReplacer(" ", "_", ".", "_", "-", "_")
	for idx, value := range raw {
		name := replacer.Replace(strings.TrimSpace(value))
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// profileColumn picks the narrowest type every non-empty cell fits. Boolean is
// checked on words only so that 0/1 columns stay numeric.
func profileColumn(col int, rows [][]string) domain.FieldType {
	isBool, isInt, isFloat, isTimestamp := true, true, true, true
	hasValue := false

	for _, row := range rows {
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		hasValue = true

		if !looksLikeBool(value) {
			isBool = false
		}
		if !looksLikeInt(value) {
			isInt = false
		}
		if !looksLikeFloat(value) {
			isFloat = false
		}
		if _, ok := filter.ParseTimestamp(value); !ok {
			isTimestamp = false
		}
	}

	switch {
	case !hasValue:
		return domain.FieldTypeString
	case isBool:
		return domain.FieldTypeBoolean
	case isInt:
		return domain.FieldTypeInteger
	case isFloat:
		return domain.FieldTypeFloat
	case isTimestamp:
		return domain.FieldTypeTimestamp
	default:
		return domain.FieldTypeString
	}
}

func looksLikeBool(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "yes", "no":
		return true
	}
	return false
}

func looksLikeInt(value string) bool {
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	// Allow float representations that can be losslessly converted to int.
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return math.Mod(f, 1) == 0 && !math.IsInf(f, 0)
	}
	return false
}

func looksLikeFloat(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func coerceValue(fieldType domain.FieldType, raw string) (any, error) {
	switch fieldType {
	case domain.FieldTypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
			return int64(f), nil
		}
		return nil, fmt.Errorf("unable to coerce %q to integer", raw)
	case domain.FieldTypeFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("unable to coerce %q to float", raw)
		}
		if math.IsNaN(f) {
			return nil, nil
		}
		return f, nil
	case domain.FieldTypeBoolean:
		switch strings.ToLower(raw) {
		case "true", "yes":
			return true, nil
		case "false", "no":
			return false, nil
		}
		return nil, fmt.Errorf("unable to coerce %q to boolean", raw)
	case domain.FieldTypeTimestamp:
		ts, ok := filter.ParseTimestamp(raw)
		if !ok {
			return nil, fmt.Errorf("unable to coerce %q to timestamp", raw)
		}
		return ts, nil
	default:
		return raw, nil
	}
}

// normalizeDBValue maps pgx decoded values onto the cell types a Column holds.
func normalizeDBValue(v any) any {
	switch value := v.(type) {
	case nil:
		return nil
	case int16:
		return int64(value)
	case int32:
		return int64(value)
	case int64:
		return value
	case float32:
		return float64(value)
	case float64:
		if math.IsNaN(value) {
			return nil
		}
		return value
	case pgtype.Numeric:
		f, err := value.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case bool:
		return value
	case time.Time:
		return value
	case string:
		return value
	case []byte:
		return string(value)
	case fmt.Stringer:
		return value.String()
	default:
		return fmt.Sprintf("%v", value)
	}
}

func inferDBType(values []any) domain.FieldType {
	fieldType := domain.FieldType("")
	for _, v := range values {
		var t domain.FieldType
		switch v.(type) {
		case nil:
			continue
		case int64:
			t = domain.FieldTypeInteger
		case float64:
			t = domain.FieldTypeFloat
		case bool:
			t = domain.FieldTypeBoolean
		case time.Time:
			t = domain.FieldTypeTimestamp
		default:
			t = domain.FieldTypeString
		}
		switch {
		case fieldType == "":
			fieldType = t
		case fieldType == domain.FieldTypeInteger && t == domain.FieldTypeFloat:
			fieldType = domain.FieldTypeFloat
		case fieldType != t && !(fieldType == domain.FieldTypeFloat && t == domain.FieldTypeInteger):
			return domain.FieldTypeString
		}
	}
	if fieldType == "" {
		return domain.FieldTypeString
	}
	return fieldType
}
