// Package errors provides the standardized error type the core signals through, one
// constructor per error kind the command facade and core operations can raise.
package errors

import "fmt"

// Code is a machine-readable error kind. Callers switch on Code rather than matching
// message text.
type Code string

const (
	InvalidArguments     Code = "InvalidArguments"
	UnknownCommand       Code = "UnknownCommand"
	UnknownSchedule      Code = "UnknownSchedule"
	JobNotFound          Code = "JobNotFound"
	JobNotRunning        Code = "JobNotRunning"
	WorkerMismatch       Code = "WorkerMismatch"
	QueueMismatch        Code = "QueueMismatch"
	InvalidTransition    Code = "InvalidTransition"
	RecurInvalidInterval Code = "RecurInvalidInterval"
	Conflict             Code = "Conflict"
	InvalidNow           Code = "InvalidNow"
)

// AppError represents a standardized core error: a machine-readable Code, a
// human-readable message naming the offending argument, and an optional wrapped
// internal error.
type AppError struct {
	Code        Code                   `json:"code"`
	Message     string                 `json:"message"`
	InternalErr error                  `json:"-"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.InternalErr != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.InternalErr)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the internal error for error wrapping.
func (e *AppError) Unwrap() error {
	return e.InternalErr
}

// WithDetails adds additional details to the error.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithInternal sets the internal error.
func (e *AppError) WithInternal(err error) *AppError {
	e.InternalErr = err
	return e
}

// New creates an AppError with the given code and message.
func New(code Code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates an AppError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an internal error under the given code and message.
func Wrap(code Code, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, InternalErr: err}
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// Is reports whether err is an *AppError with the given code.
func Is(err error, code Code) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// GetAppError extracts AppError from err, or wraps it as an InvalidArguments error.
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return &AppError{Code: InvalidArguments, Message: "unexpected error", InternalErr: err}
}
