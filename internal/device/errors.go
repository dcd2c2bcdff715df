package device

import (
	"errors"
	"fmt"
)

// Code is the fixed acquisition failure taxonomy surfaced to callers.
type Code string

const (
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeDeviceNotFound         Code = "DEVICE_NOT_FOUND"
	CodeDeviceInUse            Code = "DEVICE_IN_USE"
	CodeConstraintNotSatisfied Code = "CONSTRAINT_NOT_SATISFIED"
	CodeFailedToStart          Code = "FAILED_TO_START"
)

// Error wraps a platform error with its taxonomy code.
type Error struct {
	Code  Code
	cause error
}

// NewError builds a taxonomy error around a driver-level cause.
func NewError(code Code, cause error) *Error {
	return &Error{Code: code, cause: cause}
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf maps any error onto the taxonomy. Unclassified errors are reported
// as FAILED_TO_START.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeFailedToStart
}
