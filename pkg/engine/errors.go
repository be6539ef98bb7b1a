package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for reporting.
type ErrorClass string

const (
	// ErrorClassSyntax indicates malformed configuration text.
	// Parsing stops at the first syntax error.
	ErrorClassSyntax ErrorClass = "syntax"

	// ErrorClassLookup indicates a missing package, profile, extends target,
	// interface, or type link.
	ErrorClassLookup ErrorClass = "lookup"

	// ErrorClassPolicy indicates a forbidden configuration, such as overriding
	// a statically bound port or injecting an empty interface.
	ErrorClassPolicy ErrorClass = "policy"

	// ErrorClassIO indicates that an underlying file could not be read.
	ErrorClassIO ErrorClass = "io"

	// ErrorClassInvariant indicates a programming error by the caller.
	ErrorClassInvariant ErrorClass = "invariant"
)

// EngineError represents a classified error with source coordinates.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Source is the site that triggered the error.
	Source Position `json:"source,omitempty"`

	// Related is a conflicting or prior definition site, if any.
	Related Position `json:"related,omitempty"`

	// Operation is the pipeline stage that was running.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Source.IsValid() {
		msg = e.Source.String() + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

func newError(class ErrorClass, message string, err error) *EngineError {
	return &EngineError{
		Class:   class,
		Message: message,
		Err:     err,
	}
}

// NewSyntaxError creates a new syntax error.
func NewSyntaxError(message string, err error) *EngineError {
	return newError(ErrorClassSyntax, message, err)
}

// NewLookupError creates a new lookup error.
func NewLookupError(message string, err error) *EngineError {
	return newError(ErrorClassLookup, message, err)
}

// NewPolicyError creates a new policy violation error.
func NewPolicyError(message string, err error) *EngineError {
	return newError(ErrorClassPolicy, message, err)
}

// NewIOError creates a new I/O error.
func NewIOError(message string, err error) *EngineError {
	return newError(ErrorClassIO, message, err)
}

// NewInvariantError creates a new invariant violation error.
func NewInvariantError(message string, err error) *EngineError {
	return newError(ErrorClassInvariant, message, err)
}

// WithSource sets the triggering site.
func (e *EngineError) WithSource(pos Position) *EngineError {
	e.Source = pos
	return e
}

// WithRelated sets the conflicting site.
func (e *EngineError) WithRelated(pos Position) *EngineError {
	e.Related = pos
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ClassOf returns the class of err, or "" when err is not classified.
func ClassOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// CodeOf returns the code of err, or "" when err carries none.
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsSyntax returns true if the error is classified as a syntax error.
func IsSyntax(err error) bool {
	return ClassOf(err) == ErrorClassSyntax
}

// IsLookup returns true if the error is classified as a lookup error.
func IsLookup(err error) bool {
	return ClassOf(err) == ErrorClassLookup
}

// IsPolicy returns true if the error is classified as a policy violation.
func IsPolicy(err error) bool {
	return ClassOf(err) == ErrorClassPolicy
}

// IsIO returns true if the error is classified as an I/O error.
func IsIO(err error) bool {
	return ClassOf(err) == ErrorClassIO
}

// IsInvariant returns true if the error is classified as an invariant violation.
func IsInvariant(err error) bool {
	return ClassOf(err) == ErrorClassInvariant
}

// Common error codes.
const (
	ErrCodeUnexpectedToken   = "UNEXPECTED_TOKEN"
	ErrCodeNegativeIndex     = "NEGATIVE_INDEX"
	ErrCodeEmbedInputPort    = "EMBED_INPUT_PORT"
	ErrCodeDuplicateRegion   = "DUPLICATE_REGION"
	ErrCodeDuplicateKey      = "DUPLICATE_KEY"
	ErrCodeUnknownPackage    = "UNKNOWN_PACKAGE"
	ErrCodeUnknownProfile    = "UNKNOWN_PROFILE"
	ErrCodeUnknownParent     = "UNKNOWN_PARENT"
	ErrCodeInheritanceCycle  = "INHERITANCE_CYCLE"
	ErrCodeInvalidDefault    = "INVALID_DEFAULT_UNIT"
	ErrCodeStaticPort        = "STATIC_PORT"
	ErrCodeStaticInterface   = "STATIC_INTERFACE"
	ErrCodeUnknownInterface  = "UNKNOWN_INTERFACE"
	ErrCodeEmptyInterface    = "EMPTY_INTERFACE"
	ErrCodeUndefinedType     = "UNDEFINED_TYPE"
	ErrCodeUnknownEmbedding  = "UNKNOWN_EMBEDDING"
	ErrCodeInvalidLocation   = "INVALID_LOCATION"
	ErrCodePolicyDenied      = "POLICY_DENIED"
	ErrCodePackageMismatch   = "PACKAGE_MISMATCH"
	ErrCodeFileNotFound      = "FILE_NOT_FOUND"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeDependencyCycle   = "DEPENDENCY_CYCLE"
	ErrCodeUnknownDependency = "UNKNOWN_DEPENDENCY"
	ErrCodeDuplicateUnit     = "DUPLICATE_UNIT"
	ErrCodeCancelled         = "CANCELLED"
)
