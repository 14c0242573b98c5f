package validator

import (
	"fmt"
	"regexp"

	"github.com/rpattn/unitdash/internal/domain"
	"github.com/rpattn/unitdash/internal/filter"
)

// StateValidator checks filter state submitted through the API against a table
type StateValidator struct{}

// NewStateValidator creates a new state validator
func NewStateValidator() *StateValidator {
	return &StateValidator{}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid  bool              `json:"is_valid"`
	Errors   []ValidationError `json:"errors"`
	Warnings []ValidationError `json:"warnings"`
}

func (r *ValidationResult) fail(field, message string, value any) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Value: value})
}

func (r *ValidationResult) warn(field, message string, value any) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message, Value: value})
}

// ValidateFilterState validates a filter state against the columns of a table.
// Errors make the state unusable; warnings flag values that will be ignored.
func (sv *StateValidator) ValidateFilterState(table domain.Table, state domain.FilterState) ValidationResult {
	result := ValidationResult{
		IsValid:  true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	kinds := filter.Kinds(table)

	for _, name := range state.Columns {
		if _, ok := kinds[name]; !ok {
			result.fail(name, fmt.Sprintf("column '%s' is not defined in the dataset", name), nil)
		}
	}

	for name := range state.Selections {
		sv.expectKind(&result, kinds, name, filter.KindCategorical, "selection")
	}

	for name, r := range state.Ranges {
		sv.expectKind(&result, kinds, name, filter.KindNumeric, "range")
		if r.Low > r.High {
			result.fail(name, fmt.Sprintf("range low %v is greater than high %v", r.Low, r.High), r)
		}
	}

	for name := range state.Log {
		sv.expectKind(&result, kinds, name, filter.KindNumeric, "log toggle")
	}

	for name, d := range state.Dates {
		sv.expectKind(&result, kinds, name, filter.KindDatetime, "date range")
		if d.Complete() && d.Start.After(*d.End) {
			result.fail(name, "date range start is after end", d)
		}
	}

	for name, pattern := range state.Patterns {
		sv.expectKind(&result, kinds, name, filter.KindText, "pattern")
		if _, err := regexp.Compile(pattern); err != nil {
			result.fail(name, fmt.Sprintf("pattern does not compile: %v", err), pattern)
		}
	}

	return result
}

// expectKind warns when a value targets a column filtered by another control kind
func (sv *StateValidator) expectKind(result *ValidationResult, kinds map[string]filter.Kind, name string, want filter.Kind, what string) {
	kind, ok := kinds[name]
	if !ok {
		result.warn(name, fmt.Sprintf("%s for unknown column '%s' is ignored", what, name), nil)
		return
	}
	if kind != want {
		result.warn(name, fmt.Sprintf("%s ignored: column '%s' is filtered as %s", what, name, kind), nil)
	}
}
