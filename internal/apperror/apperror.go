package apperror

import (
	"errors"
	"fmt"
)

// Code classifies an error so transports can render a precise response.
type Code string

const (
	NotFound            Code = "NOT_FOUND"
	InvalidInput        Code = "INVALID_INPUT"
	OutsideWorkingHours Code = "OUTSIDE_HOURS"
	ExceptionBlocked    Code = "EXCEPTION_BLOCKED"
	SlotAlreadyBooked   Code = "ALREADY_BOOKED"
	LockContention      Code = "LOCK_CONTENTION"
	InvalidTransition   Code = "INVALID_TRANSITION"
	Forbidden           Code = "FORBIDDEN"
	Internal            Code = "INTERNAL"
)

// Error is an application error carrying a Code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Invalid builds an InvalidInput error from a format string.
func Invalid(format string, args ...any) *Error {
	return &Error{Code: InvalidInput, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the same sentinel, or an *Error with the same
// code and no message of its own.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e == t {
		return true
	}
	return t.Message == "" && t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or Internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return Internal
}

// IsRetryable reports whether the caller may retry the same request.
// Only lock contention is transient.
func IsRetryable(err error) bool {
	return CodeOf(err) == LockContention
}
