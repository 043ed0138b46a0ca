// Package errors provides standardized error types and helpers for the intrinsics guide.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal indicates an internal system error
	ErrInternal = errors.New("internal error")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
	// ErrOpen indicates a data source could not be opened or read
	ErrOpen = errors.New("cannot open data source")
	// ErrFormat indicates a data source is not an intrinsics database
	ErrFormat = errors.New("not an intrinsics data file")
)

// OpenError is returned when an intrinsics data source cannot be opened,
// read, or turned into an XML document at all.
type OpenError struct {
	Path string // File path, empty for anonymous streams
	Err  error  // Underlying error
}

func (e *OpenError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("cannot open %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("cannot open data source: %v", e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Is reports ErrOpen so callers can branch without a type assertion.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// FormatError is returned when a document opens but is not an intrinsics
// database: its root lacks the attributes that identify the schema.
type FormatError struct {
	Path    string   // File path, empty for anonymous streams
	Missing []string // Required root attributes that were absent
	Message string   // Additional detail
	Err     error    // Underlying error, if any
}

func (e *FormatError) Error() string {
	var b strings.Builder
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(ErrFormat.Error())
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, " (missing root attribute %s)", strings.Join(e.Missing, ", "))
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is reports ErrFormat so callers can branch without a type assertion.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "intrinsic", "technology")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewOpen creates an OpenError
func NewOpen(path string, err error) *OpenError {
	return &OpenError{Path: path, Err: err}
}

// NewFormat creates a FormatError listing the missing root attributes
func NewFormat(path string, missing ...string) *FormatError {
	return &FormatError{Path: path, Missing: missing}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
