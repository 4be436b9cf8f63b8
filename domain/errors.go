package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a semantic classification shared across the client layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeAccessDenied ErrorCode = "ACCESS_DENIED"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeHTTP         ErrorCode = "HTTP"
	ErrCodeBusy         ErrorCode = "BUSY"
)

// Error represents a classified failure. For HTTP failures Status holds the
// response code and Message the response status text.
type Error struct {
	Code    ErrorCode
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewHTTPError classifies a non-success response by its status code.
func NewHTTPError(status int, statusText string) *Error {
	code := ErrCodeHTTP
	switch status {
	case http.StatusUnauthorized:
		code = ErrCodeUnauthorized
	case http.StatusForbidden:
		code = ErrCodeAccessDenied
	case http.StatusNotFound:
		code = ErrCodeNotFound
	}
	return &Error{Code: code, Status: status, Message: statusText}
}

// Common domain errors.
var (
	ErrSessionNotFound  = NewError(ErrCodeNotFound, "session not found")
	ErrInvalidPayload   = NewError(ErrCodeInvalid, "invalid payload")
	ErrEmptyEmail       = NewError(ErrCodeInvalid, "email is required")
	ErrSubmitInProgress = NewError(ErrCodeBusy, "submit already in progress")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// IsNotFound reports whether err is a not-found failure.
func IsNotFound(err error) bool {
	return IsDomainError(err, ErrCodeNotFound)
}

// IsUnauthorized reports whether err is an unauthorized failure.
func IsUnauthorized(err error) bool {
	return IsDomainError(err, ErrCodeUnauthorized)
}

// IsAccessDenied reports whether err is an access-denied failure.
func IsAccessDenied(err error) bool {
	return IsDomainError(err, ErrCodeAccessDenied)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Status
	}
	return 0
}
