// Package errors defines the error taxonomy shared by every layer of the
// reconciliation service.
//
// Errors carry a category (which maps to a process exit code), a specific
// code, an optional suggestion for the operator, and a context map with the
// identifiers needed to locate the offending record. Stage-level failures are
// always one of these; record-level problems (unsupported structures,
// ambiguous allocations) never become errors at all - they are recorded as
// exclusions by the engine.
package errors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Category groups errors by the subsystem that produced them.
type Category string

const (
	CategoryFile           Category = "file"
	CategoryParse          Category = "parse"
	CategoryValidation     Category = "validation"
	CategoryConfiguration  Category = "configuration"
	CategoryIdentity       Category = "identity"
	CategoryReconciliation Category = "reconciliation"
	CategoryStore          Category = "store"
	CategoryInternal       Category = "internal"
)

// Code identifies a specific failure within a category.
type Code string

const (
	// File errors
	CodeFileNotFound   Code = "file_not_found"
	CodeFilePermission Code = "file_permission"

	// Parse errors
	CodeInvalidFormat Code = "invalid_format"
	CodeMissingColumn Code = "missing_column"
	CodeInvalidData   Code = "invalid_data"

	// Validation errors
	CodeInvalidAmount Code = "invalid_amount"
	CodeInvalidDate   Code = "invalid_date"
	CodeMissingField  Code = "missing_field"
	CodeDuplicateKey  Code = "duplicate_key"
	CodeInvalidEnum   Code = "invalid_enum"

	// Configuration errors
	CodeInvalidSetting Code = "invalid_setting"
	CodeUnknownSetting Code = "unknown_setting"
	CodeMissingSetting Code = "missing_setting"

	// Identity errors
	CodeIdentityReviewRequired Code = "identity_review_required"
	CodeUnknownMatch           Code = "unknown_match"
	CodeInvalidDecision        Code = "invalid_decision"
	CodeEmptyDecisionLog       Code = "no_decisions"

	// Reconciliation errors
	CodeProcessingError Code = "processing_error"
	CodeStageCancelled  Code = "stage_cancelled"

	// Store errors
	CodeSessionNotFound Code = "session_not_found"
	CodeDataNotFound    Code = "data_not_found"
	CodeStoreFailure    Code = "store_failure"

	// Internal errors
	CodeUnexpectedError Code = "unexpected_error"
)

// Error is the concrete error type used across the service.
type Error struct {
	Category   Category `json:"category"`
	Code       Code     `json:"code"`
	Message    string   `json:"message"`
	Suggestion string   `json:"suggestion,omitempty"`
	Context    Context  `json:"context,omitempty"`
	Cause      error    `json:"-"`
}

// Context carries identifiers that locate the failure.
type Context map[string]interface{}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode maps the category to a process exit code for the CLI.
func (e *Error) ExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategoryParse, CategoryValidation:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryIdentity:
		return 5
	case CategoryReconciliation, CategoryInternal:
		return 6
	case CategoryStore:
		return 7
	default:
		return 1
	}
}

// WithContext attaches a key/value pair to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion attaches an operator-facing remediation hint.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error.
func New(category Category, code Code, message string) *Error {
	return &Error{Category: category, Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(category Category, code Code, format string, args ...interface{}) *Error {
	return New(category, code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error, preserving it as the cause.
func Wrap(err error, category Category, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    errors.WithStack(err),
	}
}

// Domain constructors.

// FileError reports a problem opening or reading an input file.
func FileError(code Code, path string, err error) *Error {
	e := Wrap(err, CategoryFile, code, fmt.Sprintf("file error: %s", path))
	if e == nil {
		e = New(CategoryFile, code, fmt.Sprintf("file error: %s", path))
	}
	return e.
		WithSuggestion("check that the file exists and is readable").
		WithContext("path", path)
}

// ParseError reports a malformed cell in one of the six input tables.
func ParseError(file string, row int, field, message string) *Error {
	return New(CategoryParse, CodeInvalidData, message).
		WithContext("file", file).
		WithContext("row", row).
		WithContext("field", field)
}

// ValidationError reports a record that failed upstream validation.
func ValidationError(code Code, field string, value interface{}) *Error {
	return Newf(CategoryValidation, code, "validation failed for field %q: %v", field, value).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError reports a bad session setting or CLI flag.
func ConfigurationError(code Code, setting string, value interface{}) *Error {
	return Newf(CategoryConfiguration, code, "invalid configuration %q: %v", setting, value).
		WithSuggestion("see the session settings documentation for accepted keys and values").
		WithContext("setting", setting).
		WithContext("value", value)
}

// IdentityReviewRequired is returned when analysis is requested while the
// review queue is non-empty and review was not explicitly bypassed.
func IdentityReviewRequired(pending int) *Error {
	return Newf(CategoryIdentity, CodeIdentityReviewRequired,
		"%d identity matches still need review", pending).
		WithSuggestion("resolve the pending matches or start the analysis with the review bypass").
		WithContext("pending", pending)
}

// StoreError reports a session store failure, with the session id in its
// context.
func StoreError(code Code, sessionID string, err error) *Error {
	e := Wrap(err, CategoryStore, code, fmt.Sprintf("session store failure for %s", sessionID))
	if e == nil {
		e = New(CategoryStore, code, fmt.Sprintf("session store failure for %s", sessionID))
	}
	return e.WithContext("session_id", sessionID)
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code Code) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

// As extracts an *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Summary aggregates a batch of errors, typically one validation run.
type Summary struct {
	Total      int              `json:"total"`
	ByCategory map[Category]int `json:"by_category"`
	ByCode     map[Code]int     `json:"by_code"`
	Errors     []*Error         `json:"errors"`
}

// NewSummary builds a Summary from a slice of errors.
func NewSummary(errs []*Error) *Summary {
	s := &Summary{
		Total:      len(errs),
		ByCategory: make(map[Category]int),
		ByCode:     make(map[Code]int),
		Errors:     errs,
	}
	for _, e := range errs {
		s.ByCategory[e.Category]++
		s.ByCode[e.Code]++
	}
	return s
}

// Error formats the summary as a single line.
func (s *Summary) Error() string {
	if s.Total == 0 {
		return "no errors"
	}
	if s.Total == 1 {
		return s.Errors[0].Error()
	}
	parts := make([]string, 0, len(s.ByCategory))
	for category, count := range s.ByCategory {
		parts = append(parts, fmt.Sprintf("%s: %d", category, count))
	}
	return fmt.Sprintf("%d errors occurred (%s)", s.Total, strings.Join(parts, ", "))
}

// ExitCode returns the highest-priority exit code in the summary.
func (s *Summary) ExitCode() int {
	if s.Total == 0 {
		return 0
	}
	max := 1
	for _, e := range s.Errors {
		if code := e.ExitCode(); code > max {
			max = code
		}
	}
	return max
}
