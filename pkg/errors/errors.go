package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Standard error types that can be used throughout the application
var (
	// Standard error sentinel values
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInternalError = errors.New("internal error")

	// Domain-specific error sentinel values
	ErrMissingBaseline  = errors.New("baseline profile not set")
	ErrEmptyCalibration = errors.New("calibration input is empty")
	ErrUnsupportedAudio = errors.New("unsupported audio format")
	ErrAlignmentFailed  = errors.New("alignment failed")
)

// Error represents a structured error with source location and additional context
type Error struct {
	// original is the underlying error
	original error

	// message is the error message
	message string

	// fields contains contextual information
	fields map[string]interface{}

	// file and line record where the error was created
	file string
	line int

	// Code is an optional error code for categorization
	Code string
}

// New creates a new structured error with the given message
func New(message string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: errors.New(message),
		message:  message,
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, message string, fields ...map[string]interface{}) *Error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: err,
		message:  message,
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
	}
}

// WithField adds a single field to the error context
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}

	// Create a copy to avoid modifying the original
	result := &Error{
		original: e.original,
		message:  e.message,
		fields:   make(map[string]interface{}, len(e.fields)+1),
		file:     e.file,
		line:     e.line,
		Code:     e.Code,
	}

	for k, v := range e.fields {
		result.fields[k] = v
	}
	result.fields[key] = value

	return result
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil || e.original == nil {
		return ""
	}

	if e.message == "" {
		return e.original.Error()
	}

	return fmt.Sprintf("%s: %v", e.message, e.original)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.original
}

// Location returns the file:line where the error was created
func (e *Error) Location() string {
	if e == nil {
		return ""
	}

	parts := strings.Split(e.file, "/")
	filename := parts[len(parts)-1]

	return fmt.Sprintf("%s:%d", filename, e.line)
}

// GetFields returns the error's context fields
func (e *Error) GetFields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// Is reports whether any error in err's tree matches target.
// Implements the errors.Is interface.
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}

	if errors.Is(e.original, target) {
		return true
	}

	return e == target
}

// NewMissingBaseline creates a new ErrMissingBaseline for a detector that was
// invoked before calibration. This is a configuration error: detectors never
// substitute hardcoded thresholds for a missing baseline.
func NewMissingBaseline(detector string) *Error {
	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrMissingBaseline,
		message:  fmt.Sprintf("%s requires a calibrated baseline before detect", detector),
		fields:   map[string]interface{}{"detector": detector},
		file:     file,
		line:     line,
		Code:     "MISSING_BASELINE",
	}
}

// NewEmptyCalibration creates a new ErrEmptyCalibration error
func NewEmptyCalibration() *Error {
	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrEmptyCalibration,
		message:  "cannot calibrate from zero frames",
		fields:   map[string]interface{}{},
		file:     file,
		line:     line,
		Code:     "EMPTY_CALIBRATION",
	}
}

// NewInvalidConfig creates a new ErrInvalidConfig error with additional context
func NewInvalidConfig(details string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrInvalidConfig,
		message:  fmt.Sprintf("invalid configuration: %s", details),
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
		Code:     "INVALID_CONFIG",
	}
}

// NewUnsupportedAudio creates a new ErrUnsupportedAudio error with additional context
func NewUnsupportedAudio(details string, fields ...map[string]interface{}) *Error {
	_, file, line, _ := runtime.Caller(1)

	return &Error{
		original: ErrUnsupportedAudio,
		message:  fmt.Sprintf("unsupported audio: %s", details),
		fields:   firstFieldMap(fields),
		file:     file,
		line:     line,
		Code:     "UNSUPPORTED_AUDIO",
	}
}

// IsErrorType checks if an error is of a specific error type
func IsErrorType(err, target error) bool {
	return errors.Is(err, target)
}

// GetErrorCode extracts the error code from an error if it's a structured error
func GetErrorCode(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ""
}

func firstFieldMap(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 && fields[0] != nil {
		return fields[0]
	}
	return make(map[string]interface{})
}
