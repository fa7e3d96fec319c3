package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	// ConfigError indicates configuration-related errors
	ConfigError ErrorType = "config"
	// CryptoError indicates encryption/decryption errors
	CryptoError ErrorType = "crypto"
	// ValidationError indicates input validation errors
	ValidationError ErrorType = "validation"
	// StoreError indicates secret store errors
	StoreError ErrorType = "store"
	// FileSystemError indicates file system errors
	FileSystemError ErrorType = "filesystem"
	// NetworkError indicates network-related errors
	NetworkError ErrorType = "network"
	// ParseError indicates malformed secret definitions
	ParseError ErrorType = "parse"
	// RuntimeError indicates failures of a child process
	RuntimeError ErrorType = "runtime"
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// WithError is a structured error type that provides context about what went wrong.
type WithError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]string
}

// Error implements the error interface. Context keys are rendered in sorted
// order so the message is stable.
func (e *WithError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, e.Context[k]))
		}
		msg += " (" + strings.Join(pairs, ", ") + ")"
	}

	return msg
}

// Unwrap returns the underlying cause for use with errors.Is/As.
func (e *WithError) Unwrap() error {
	return e.Cause
}

// Is returns true if the target error is of the same type.
func (e *WithError) Is(target error) bool {
	t, ok := target.(*WithError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewError creates a new WithError with the given type and message.
func NewError(errorType ErrorType, message string) *WithError {
	return &WithError{
		Type:    errorType,
		Message: message,
	}
}

// WrapError creates a new WithError that wraps an existing error.
func WrapError(errorType ErrorType, message string, cause error) *WithError {
	return &WithError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// WithContext adds context to an existing WithError.
func (e *WithError) WithContext(key, value string) *WithError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// FileError creates a formatted filesystem error with file path context.
func FileError(message, path string, cause error) *WithError {
	return WrapError(FileSystemError, message, cause).
		WithContext("path", path)
}

// ConfigFileError creates a formatted configuration file error with path and hints.
func ConfigFileError(message, configPath string, hint string, cause error) *WithError {
	err := WrapError(ConfigError, message, cause).
		WithContext("path", configPath)
	if hint != "" {
		err = err.WithContext("hint", hint)
	}
	return err
}

// CryptoErrorWithHint creates a formatted crypto error with operation hints.
func CryptoErrorWithHint(message, hint string, cause error) *WithError {
	return WrapError(CryptoError, message, cause).
		WithContext("hint", hint)
}

// StoreErr creates a store error carrying the profile it happened in.
func StoreErr(message, profile string, cause error) *WithError {
	return WrapError(StoreError, message, cause).
		WithContext("profile", profile)
}

// RuntimeErr creates a runtime error for a child process that could not be started.
func RuntimeErr(message string, cause error) *WithError {
	return WrapError(RuntimeError, message, cause)
}

// IsType reports whether err (or anything it wraps) is a WithError of the given type.
func IsType(err error, errorType ErrorType) bool {
	return errors.Is(err, &WithError{Type: errorType})
}
