// Package errors provides custom error types for the propgate system.
// Every failure surfaced by a pipeline run is one of a small set of kinds so
// that callers can decide whether to skip an item or abort the run, and so that
// reports can count and itemize failures instead of swallowing them.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how the pipeline must react to it.
type Kind string

const (
	// KindMissingData marks insufficient samples or peers. Never fatal.
	KindMissingData Kind = "missing_data"

	// KindGateFailure marks a named precondition that failed for one item.
	KindGateFailure Kind = "validation_gate_failure"

	// KindIntegrity marks a post-deploy reload/parse/schema failure.
	KindIntegrity Kind = "integrity_failure"

	// KindConfiguration marks malformed or missing configuration.
	KindConfiguration Kind = "configuration_error"

	// KindStorage marks a backup/stage/apply I/O failure.
	KindStorage Kind = "storage_error"
)

// Common sentinel errors for the propgate system
var (
	// ErrMissingData indicates that there was not enough data to evaluate something
	ErrMissingData = errors.New("missing data")

	// ErrGateFailure indicates that a validation gate rejected a record
	ErrGateFailure = errors.New("validation gate failed")

	// ErrIntegrity indicates that deployed data failed verification
	ErrIntegrity = errors.New("integrity failure")

	// ErrConfiguration indicates that configuration is malformed or missing
	ErrConfiguration = errors.New("configuration error")

	// ErrStorage indicates a file system failure
	ErrStorage = errors.New("storage error")

	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrLocked indicates that another release holds the store lock
	ErrLocked = errors.New("release store locked")

	// ErrInvalidTransition indicates an illegal release state change
	ErrInvalidTransition = errors.New("invalid state transition")
)

var kindSentinels = map[Kind]error{
	KindMissingData:   ErrMissingData,
	KindGateFailure:   ErrGateFailure,
	KindIntegrity:     ErrIntegrity,
	KindConfiguration: ErrConfiguration,
	KindStorage:       ErrStorage,
}

// Error is the structured error record every pipeline stage reports.
type Error struct {
	Kind    Kind
	Scope   string // item id, file path or component name
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Scope != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Scope, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap implements errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *Error) Is(target error) bool {
	sentinel, ok := kindSentinels[e.Kind]
	return ok && target == sentinel
}

// Fatal reports whether the error must terminate the whole run.
func (e *Error) Fatal() bool {
	return e.Kind == KindIntegrity || e.Kind == KindConfiguration
}

// NewError creates a new structured Error.
func NewError(kind Kind, scope, message string, err error) *Error {
	return &Error{Kind: kind, Scope: scope, Message: message, Err: err}
}

// MissingData creates a missing_data error.
func MissingData(scope, message string) *Error {
	return NewError(KindMissingData, scope, message, nil)
}

// GateFailure creates a validation_gate_failure error for one gate.
func GateFailure(scope, gate, message string) *Error {
	return NewError(KindGateFailure, scope, fmt.Sprintf("gate %s: %s", gate, message), nil)
}

// Integrity creates an integrity_failure error.
func Integrity(scope, message string, err error) *Error {
	return NewError(KindIntegrity, scope, message, err)
}

// Configuration creates a configuration_error.
func Configuration(scope, message string, err error) *Error {
	return NewError(KindConfiguration, scope, message, err)
}

// Storage creates a storage_error.
func Storage(scope, message string, err error) *Error {
	return NewError(KindStorage, scope, message, err)
}

// KindOf returns the kind of the first structured error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	var ioe *IOError
	if errors.As(err, &ioe) {
		return KindStorage, true
	}
	// unusable or absent input records
	var pe *ParseError
	var ve *ValidationError
	var nf *NotFoundError
	if errors.As(err, &pe) || errors.As(err, &ve) || errors.As(err, &nf) {
		return KindMissingData, true
	}
	return "", false
}

// IsFatal reports whether err terminates a run (integrity or configuration).
func IsFatal(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindIntegrity || kind == KindConfiguration)
}

// Record is the serializable form of an error used in reports.
type Record struct {
	Kind    Kind   `json:"kind" yaml:"kind"`
	Scope   string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Message string `json:"message" yaml:"message"`
}

// ToRecord converts any error to a Record. Unclassified errors are reported
// as storage errors, the only kind that arises from untyped library failures.
func ToRecord(err error) Record {
	if err == nil {
		return Record{}
	}
	var e *Error
	if errors.As(err, &e) {
		msg := e.Message
		if e.Err != nil && msg != e.Err.Error() {
			if msg == "" {
				msg = e.Err.Error()
			} else {
				msg = msg + ": " + e.Err.Error()
			}
		}
		return Record{Kind: e.Kind, Scope: e.Scope, Message: msg}
	}
	kind, ok := KindOf(err)
	if !ok {
		kind = KindStorage
	}
	return Record{Kind: kind, Message: err.Error()}
}

// Records flattens errors.Join trees into records.
func Records(err error) []Record {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []Record
		for _, e := range joined.Unwrap() {
			out = append(out, Records(e)...)
		}
		return out
	}
	return []Record{ToRecord(err)}
}

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "yaml", "json"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "copy", "rename", "checksum"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *IOError) Is(target error) bool {
	return target == ErrStorage
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsMissingData checks if an error reports missing or unusable data
func IsMissingData(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindMissingData
}

// IsConfiguration checks if an error is a configuration error
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsIntegrity checks if an error is an integrity failure
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsStorage checks if an error is a storage failure
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsLocked checks if an error reports a held release lock
func IsLocked(err error) bool {
	return errors.Is(err, ErrLocked)
}

// Helper wrapping functions for common patterns

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}
