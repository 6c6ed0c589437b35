// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error types and status mapping for hioload-bus.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	ErrTableFull           = errors.New("handle table is full")
	ErrInvalidHandle       = errors.New("handle out of range")
	ErrSlotEmpty           = errors.New("handle refers to an empty slot")
	ErrPayloadTooLarge     = fmt.Errorf("payload exceeds %d bytes", MaxPayload)
	ErrAlreadyPolling      = errors.New("subscription is already being polled")
	ErrNotPolling          = errors.New("subscription is not being polled")
	ErrNotConnected        = errors.New("not connected to media driver")
	ErrRegistrationTimeout = errors.New("registration timed out")
	ErrNoDriver            = errors.New("no media driver running for directory")
	ErrInvalidChannel      = errors.New("invalid channel uri")
	ErrClosed              = errors.New("resource is closed")
)

// Status values returned across the host boundary.
const (
	StatusOK      = 0
	StatusFailure = -1
)

// StatusOf maps an error to the host status convention.
func StatusOf(err error) int {
	if err != nil {
		return StatusFailure
	}
	return StatusOK
}

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeInvalidArgument
	ErrCodeResourceExhausted
	ErrCodeTimeout
	ErrCodeNotConnected
	ErrCodeDriver
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeInvalidArgument:
		return "invalid_argument"
	case ErrCodeResourceExhausted:
		return "resource_exhausted"
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeNotConnected:
		return "not_connected"
	case ErrCodeDriver:
		return "driver"
	default:
		return "internal"
	}
}

// Error represents a structured error with code and context.
type Error struct {
	Code    ErrorCode
	Message string
	Context map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the wrapped sentinel to errors.Is.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a new structured error.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
		Err:     cause,
	}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// CodeOf extracts the ErrorCode from err, or ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrTableFull):
		return ErrCodeResourceExhausted
	case errors.Is(err, ErrInvalidHandle), errors.Is(err, ErrSlotEmpty),
		errors.Is(err, ErrPayloadTooLarge), errors.Is(err, ErrInvalidChannel):
		return ErrCodeInvalidArgument
	case errors.Is(err, ErrRegistrationTimeout):
		return ErrCodeTimeout
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrNoDriver):
		return ErrCodeNotConnected
	}
	return ErrCodeInternal
}
