// Package errors provides the structured error type shared by every quill
// component. Errors carry a category and a stable code so callers can test
// for a condition with errors.Is without matching on message text.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeProtocol   ErrorType = "protocol"
)

// Error codes.
const (
	ErrCodeInvalidPoolSize     = "ERR_INVALID_POOL_SIZE"
	ErrCodePoolClosed          = "ERR_POOL_CLOSED"
	ErrCodeQueueFull           = "ERR_QUEUE_FULL"
	ErrCodeNilJob              = "ERR_NIL_JOB"
	ErrCodeMalformedRequest    = "ERR_MALFORMED_REQUEST"
	ErrCodeUnsupportedMethod   = "ERR_UNSUPPORTED_METHOD"
	ErrCodePathTraversal       = "ERR_PATH_TRAVERSAL"
	ErrCodeInvalidPath         = "ERR_INVALID_PATH"
	ErrCodeBindFailed          = "ERR_BIND_FAILED"
	ErrCodeEventChannelClosed  = "ERR_EVENT_CHANNEL_CLOSED"
	ErrCodeBuildFailed         = "ERR_BUILD_FAILED"
	ErrCodeConfigInvalid       = "ERR_CONFIG_INVALID"
	ErrCodeServerAlreadyActive = "ERR_SERVER_ALREADY_STARTED"
)

// QuillError is a structured error type with context.
type QuillError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *QuillError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *QuillError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a QuillError of the same type and code.
func (e *QuillError) Is(target error) bool {
	var t *QuillError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *QuillError) WithContext(key string, value interface{}) *QuillError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// Wrap returns a copy of e with cause attached. Sentinels stay untouched so
// they can be wrapped from many goroutines.
func (e *QuillError) Wrap(cause error) *QuillError {
	cp := *e
	cp.Cause = cause
	cp.Context = nil

	return &cp
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *QuillError {
	return &QuillError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *QuillError {
	return &QuillError{
		Type:        ErrorTypeSecurity,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewProtocolError creates an error for a request that could not be understood.
func NewProtocolError(code, message string) *QuillError {
	return &QuillError{
		Type:        ErrorTypeProtocol,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *QuillError {
	return &QuillError{
		Type:    ErrorTypeNetwork,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *QuillError {
	return &QuillError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *QuillError {
	return &QuillError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *QuillError {
	return &QuillError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *QuillError {
	return &QuillError{
		Type:    ErrorTypeInternal,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var qe *QuillError
	if errors.As(err, &qe) {
		return qe.Recoverable
	}

	return false
}

// IsType reports whether err is a QuillError of the given type.
func IsType(err error, t ErrorType) bool {
	var qe *QuillError
	if errors.As(err, &qe) {
		return qe.Type == t
	}

	return false
}

// Is is errors.Is, re-exported so callers importing this package need not
// alias the standard library.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is errors.As, re-exported for the same reason as Is.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join is errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
