// Package raterr provides the typed error taxonomy of the rate engine.
// Failures cross the engine boundary as values; callers branch on Kind.
package raterr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindParse
	KindValidation
	KindConflict
	KindNotFound
	KindConcurrency
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindConcurrency:
		return "concurrency"
	default:
		return "unknown"
	}
}

// Error codes
const (
	CodeNoTabularLayout = "NO_TABULAR_LAYOUT"
	CodeEmptyWorkbook   = "EMPTY_WORKBOOK"
	CodeInvalidPrice    = "INVALID_PRICE"
	CodeMissingLabel    = "MISSING_LABEL"
	CodeDuplicateKey    = "DUPLICATE_KEY"
	CodeUnknownEntity   = "UNKNOWN_ENTITY"
	CodeStaleVersion    = "STALE_VERSION"
)

// Error is a structured engine error.
type Error struct {
	Kind    Kind   `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Code, e.Message)
}

// Parse reports a workbook with no recognizable state/city/amount layout.
func Parse(code, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation reports a rejected input value.
func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a create or rename colliding with an existing entity.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: CodeDuplicateKey, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an operation referencing a missing entity.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeUnknownEntity, Message: fmt.Sprintf(format, args...)}
}

// Concurrency reports a commit against a stale tree version. Retryable.
func Concurrency(format string, args ...any) *Error {
	return &Error{Kind: KindConcurrency, Code: CodeStaleVersion, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from an error chain, or KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}
