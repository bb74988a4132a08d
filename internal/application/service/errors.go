package service

import (
	"errors"
	"fmt"
)

// Code classifies a failed decision. Codes are comparable with errors.Is.
type Code string

const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeAlreadyProcessed Code = "ALREADY_PROCESSED"
	CodePersistence      Code = "PERSISTENCE_ERROR"
	CodeTimeout          Code = "TIMEOUT"
	CodeCancelled        Code = "CANCELLED"
	CodeInvalidInput     Code = "INVALID_INPUT"
)

// Error implements error so codes can be used as sentinels
func (c Code) Error() string {
	return string(c)
}

var (
	ErrNotFound         error = CodeNotFound
	ErrUnauthorized     error = CodeUnauthorized
	ErrAlreadyProcessed error = CodeAlreadyProcessed
	ErrPersistence      error = CodePersistence
	ErrTimeout          error = CodeTimeout
	ErrCancelled        error = CodeCancelled
	ErrInvalidInput     error = CodeInvalidInput
)

// DecisionError is the typed failure returned by the approval services
type DecisionError struct {
	Code    Code
	Message string
	Err     error
}

// newError builds a DecisionError. A DecisionError cause is replaced by its own
// cause so that a chain carries exactly one code.
func newError(code Code, err error, format string, args ...interface{}) *DecisionError {
	var inner *DecisionError
	if errors.As(err, &inner) {
		err = inner.Err
	}
	return &DecisionError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *DecisionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *DecisionError) Unwrap() error {
	return e.Err
}

// Is matches the error against its code. errors.Is keeps unwrapping after a
// miss, so Err must never be another DecisionError (see newError).
func (e *DecisionError) Is(target error) bool {
	code, ok := target.(Code)
	return ok && code == e.Code
}

// CodeOf extracts the code of err, or "" for errors not produced by this package
func CodeOf(err error) Code {
	var de *DecisionError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
