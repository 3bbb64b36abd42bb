package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")

	// Enrollment and grading domain errors.
	ErrNoActiveTerm        = New("NO_ACTIVE_TERM", http.StatusPreconditionFailed, "no active academic term")
	ErrDuplicateEnrollment = New("DUPLICATE_ENROLLMENT", http.StatusConflict, "student already enrolled for this term")
	ErrUnitCapExceeded     = New("UNIT_CAP_EXCEEDED", http.StatusBadRequest, "total units exceed the per-term cap")
	ErrSectionsUnavailable = New("SECTIONS_UNAVAILABLE", http.StatusConflict, "one or more sections are closed or full")
	ErrNotCancellable      = New("NOT_CANCELLABLE", http.StatusPreconditionFailed, "enrollment cannot be cancelled")
	ErrInvalidGrade        = New("INVALID_GRADE", http.StatusBadRequest, "invalid grade value")
	ErrNoIncOnRecord       = New("NO_INC_ON_RECORD", http.StatusPreconditionFailed, "student has no INC grade for this subject")
	ErrDuplicateResolution = New("DUPLICATE_RESOLUTION", http.StatusConflict, "an unresolved resolution already exists")
	ErrAlreadyApproved     = New("ALREADY_APPROVED", http.StatusConflict, "resolution already approved")
	ErrNotAFailure         = New("NOT_A_FAILURE", http.StatusBadRequest, "grade is not a failing grade")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
