// Package errors holds the error type shared by the task accounting packages.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes. Callers branch on these rather than on messages.
const (
	EInternal  = "internal error"
	EInvalid   = "invalid"   // validation failed
	EMalformed = "malformed" // data could not be decoded
	ENotFound  = "not found"
	EConflict  = "conflict"
)

// Error is the error struct of the task accounting packages.
//
// The Code targets automated handlers so that recovery can occur.
// Msg is used by the operator to help diagnose the problem.
// Op and Err chain errors together in a logical stack trace.
//
// To create a simple error,
//
//	&Error{
//	    Code: EInvalid,
//	    Msg:  "task cannot be cancelled",
//	}
//
// To show where the error happens, add Op.
//
//	&Error{
//	    Code: EMalformed,
//	    Op:   "taskstats.ReadSnapshot",
//	    Err:  err,
//	}
type Error struct {
	Code string
	Msg  string
	Op   string
	Err  error
}

// Error implements the error interface by writing out the recursive messages.
func (e *Error) Error() string {
	if e.Msg != "" && e.Err != nil {
		var b strings.Builder
		b.WriteString(e.Msg)
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
		return b.String()
	} else if e.Msg != "" {
		return e.Msg
	} else if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("<%s>", e.Code)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Invalidf returns an EInvalid error with a formatted message.
func Invalidf(op, format string, args ...interface{}) *Error {
	return &Error{
		Code: EInvalid,
		Op:   op,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, if available; otherwise returns EInternal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) || e == nil {
		return EInternal
	}

	if e.Code != "" {
		return e.Code
	}

	if e.Err != nil {
		return ErrorCode(e.Err)
	}

	return EInternal
}

// ErrorOp returns the op of the error, if available; otherwise return empty string.
func ErrorOp(err error) string {
	var e *Error
	if !errors.As(err, &e) || e == nil {
		return ""
	}

	if e.Op != "" {
		return e.Op
	}

	if e.Err != nil {
		return ErrorOp(e.Err)
	}

	return ""
}

// ErrorMessage returns the human-readable message of the error, if available.
// Otherwise returns a generic error message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if !errors.As(err, &e) || e == nil {
		return "An internal error has occurred."
	}

	if e.Msg != "" {
		return e.Msg
	}

	if e.Err != nil {
		return ErrorMessage(e.Err)
	}

	return "An internal error has occurred."
}
