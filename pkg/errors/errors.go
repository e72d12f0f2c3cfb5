// Package errors defines the application's error taxonomy.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown          = "UNKNOWN_ERROR"
	CodeInputError       = "INPUT_ERROR"
	CodeConfigError      = "CONFIG_ERROR"
	CodeDataError        = "DATA_ERROR"
	CodeOutputError      = "OUTPUT_ERROR"
	CodeSuppressionError = "SUPPRESSION_ERROR"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common error instances, one per error code.
var (
	ErrInputError       = New(CodeInputError, "input error")
	ErrConfigError      = New(CodeConfigError, "configuration error")
	ErrDataError        = New(CodeDataError, "data integrity error")
	ErrOutputError      = New(CodeOutputError, "output error")
	ErrSuppressionError = New(CodeSuppressionError, "suppression file error")
)

// IsInputError checks if the error is an input error: the data file
// could not be opened or its framing is broken.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInputError)
}

// IsConfigError checks if the error is a configuration error: a
// required option is missing, or an enum value is invalid.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfigError)
}

// IsDataError checks if the error is a data-integrity error, such as an
// internal invariant violated while applying suppressions.
func IsDataError(err error) bool {
	return errors.Is(err, ErrDataError)
}

// IsOutputError checks if the error is an output-file error: one report
// failed to write but its siblings still ran.
func IsOutputError(err error) bool {
	return errors.Is(err, ErrOutputError)
}

// IsSuppressionError checks if the error is a suppression-file error.
func IsSuppressionError(err error) bool {
	return errors.Is(err, ErrSuppressionError)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
