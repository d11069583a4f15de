package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Is and As re-export the stdlib helpers so callers don't need a second
// errors import alongside this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// ErrorCode represents a structured error code
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigParse   ErrorCode = "CONFIG_PARSE"
	ErrCodeConfigInvalid ErrorCode = "CONFIG_INVALID"

	// Predictor errors
	ErrCodeModelLoad    ErrorCode = "MODEL_LOAD"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// Generation errors
	ErrCodeGeneration        ErrorCode = "GENERATION"
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"

	// Patch errors
	ErrCodeFormatDefect  ErrorCode = "FORMAT_DEFECT"
	ErrCodeApplyConflict ErrorCode = "APPLY_CONFLICT"
	ErrCodePathEscape    ErrorCode = "PATH_ESCAPE"

	// Repository errors
	ErrCodeCheckout ErrorCode = "CHECKOUT"

	// Storage errors
	ErrCodeStorageRead  ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite ErrorCode = "STORAGE_WRITE"

	// Generic errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Error represents a structured miser error
type Error struct {
	Code       ErrorCode
	Message    string
	Underlying error
	Context    map[string]any
	Retryable  bool
}

// New creates a new structured error
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap wraps an existing error with miser error context
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:       code,
		Message:    message,
		Underlying: err,
		Context:    make(map[string]any),
	}
}

// WithContext adds context key-value pairs to the error
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRetryable marks the error as retryable
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		sb.WriteString(" {")
		first := true
		for k, v := range e.Context {
			if !first {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %v", k, v))
			first = false
		}
		sb.WriteString("}")
	}

	if e.Underlying != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Underlying))
	}

	return sb.String()
}

// Unwrap returns the underlying error for errors.Is/As
func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}

	var me *Error
	if !As(err, &me) {
		return false
	}

	return me.Code == code
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}

	var me *Error
	if !As(err, &me) {
		return ErrCodeInternal
	}

	return me.Code
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var me *Error
	if !As(err, &me) {
		return false
	}
	return me.Retryable
}
