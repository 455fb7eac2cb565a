// Package errdefs defines the tagged error taxonomy shared by the sync
// engine. Callers discriminate outcomes with the Is* predicates instead
// of matching on message text.
package errdefs

import (
	"errors"
	"fmt"
)

// Code categorizes an error for retry and propagation decisions.
type Code string

const (
	// CodeValidation marks a malformed request; in batches the item is
	// rejected and the batch continues.
	CodeValidation Code = "VALIDATION"

	// CodeAuthorization marks an ownership or credential failure. The
	// operation is dropped, never retried.
	CodeAuthorization Code = "AUTHORIZATION"

	// CodeNotFound marks a missing record. Deletes and duplicate flags
	// treat it as already satisfied.
	CodeNotFound Code = "NOT_FOUND"

	// CodeConflict marks a duplicate fingerprint or an already-applied
	// mutation. Surfaced immediately, never queued.
	CodeConflict Code = "CONFLICT"

	// CodeTransient marks an unreachable peer or timeout. The operation
	// is retained and retried on the next trigger.
	CodeTransient Code = "TRANSIENT"

	// CodeQuotaExceeded marks a full-but-recoverable storage substrate.
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"
)

// Error is a categorized engine error. ResourceID optionally names the
// record the error is about; a conflict on a duplicate alert carries
// the surviving alert's id here.
type Error struct {
	Code       Code
	Message    string
	ResourceID string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a categorized error.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a category to an underlying error.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation creates a VALIDATION error.
func Validation(format string, args ...interface{}) *Error {
	return New(CodeValidation, format, args...)
}

// Authorization creates an AUTHORIZATION error.
func Authorization(format string, args ...interface{}) *Error {
	return New(CodeAuthorization, format, args...)
}

// NotFound creates a NOT_FOUND error.
func NotFound(format string, args ...interface{}) *Error {
	return New(CodeNotFound, format, args...)
}

// Conflict creates a CONFLICT error.
func Conflict(format string, args ...interface{}) *Error {
	return New(CodeConflict, format, args...)
}

// ConflictResource creates a CONFLICT error naming the record the
// request collided with.
func ConflictResource(resourceID, format string, args ...interface{}) *Error {
	e := New(CodeConflict, format, args...)
	e.ResourceID = resourceID
	return e
}

// Transient creates a TRANSIENT error.
func Transient(format string, args ...interface{}) *Error {
	return New(CodeTransient, format, args...)
}

// QuotaExceeded creates a QUOTA_EXCEEDED error.
func QuotaExceeded(format string, args ...interface{}) *Error {
	return New(CodeQuotaExceeded, format, args...)
}

func is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return is(err, CodeValidation) }

// IsAuthorization reports whether err is an authorization error.
func IsAuthorization(err error) bool { return is(err, CodeAuthorization) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return is(err, CodeNotFound) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return is(err, CodeConflict) }

// IsTransient reports whether err should be retried later.
func IsTransient(err error) bool { return is(err, CodeTransient) }

// IsQuotaExceeded reports whether err is a storage capacity error.
func IsQuotaExceeded(err error) bool { return is(err, CodeQuotaExceeded) }

// CodeOf extracts the category of err, or "" for uncategorized errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// ResourceIDOf extracts the record id an error names, or "".
func ResourceIDOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.ResourceID
	}
	return ""
}
