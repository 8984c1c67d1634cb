package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQueryCompile signals a criteria tree that could not be compiled.
	ErrQueryCompile = errors.New("query compile failed")
	// ErrFormat signals a value that cannot be read as the declared date type.
	ErrFormat = errors.New("value format error")
	// ErrSearchExecution signals a failed fetch, scroll continuation or hit decode.
	ErrSearchExecution = errors.New("search execution failed")
	// ErrInvalidRequest signals a malformed caller request.
	ErrInvalidRequest = errors.New("invalid request")
)

// QueryCompileError wraps a failure raised while compiling one criteria node.
type QueryCompileError struct {
	Field string
	Value any
	Err   error
}

func (e *QueryCompileError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", ErrQueryCompile.Error(), e.Err)
	}
	return fmt.Sprintf("%s: field %q: %v", ErrQueryCompile.Error(), e.Field, e.Err)
}

func (e *QueryCompileError) Unwrap() []error { return []error{ErrQueryCompile, e.Err} }

// NewQueryCompileError wraps err with the offending field and value.
// An error that already is a QueryCompileError is returned as is.
func NewQueryCompileError(field string, value any, err error) error {
	var qce *QueryCompileError
	if errors.As(err, &qce) {
		return err
	}
	return &QueryCompileError{Field: field, Value: value, Err: err}
}

// FormatError reports a value that the date codec could not interpret.
type FormatError struct {
	Pattern string
	Value   any
	Err     error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("%s: cannot format %v (%T) with pattern %q", ErrFormat.Error(), e.Value, e.Value, e.Pattern)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFormat}
	}
	return []error{ErrFormat, e.Err}
}

// SearchExecutionError wraps a failure raised while materializing results.
type SearchExecutionError struct {
	Op       string
	ScrollID string
	Err      error
}

func (e *SearchExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSearchExecution.Error(), e.Op, e.Err)
}

func (e *SearchExecutionError) Unwrap() []error { return []error{ErrSearchExecution, e.Err} }

// NewSearchExecutionError wraps err with the failed operation and cursor.
func NewSearchExecutionError(op, scrollID string, err error) error {
	return &SearchExecutionError{Op: op, ScrollID: scrollID, Err: err}
}
