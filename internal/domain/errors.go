package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected operation so the gateway can report it
// back to the requesting session without closing the connection.
type ErrorKind string

const (
	KindAuthenticationRequired ErrorKind = "AUTHENTICATION_REQUIRED"
	KindAccessDenied           ErrorKind = "ACCESS_DENIED"
	KindValidationFailed       ErrorKind = "VALIDATION_FAILED"
	KindRateLimited            ErrorKind = "RATE_LIMITED"
	KindConflict               ErrorKind = "CONFLICT"
	KindNotFound               ErrorKind = "NOT_FOUND"
	KindInternal               ErrorKind = "INTERNAL"
)

// Error is a typed rejection delivered only to the originating session.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewAccessDeniedError rejects a room or action permission failure.
func NewAccessDeniedError(msg string) *Error {
	return &Error{Kind: KindAccessDenied, Message: msg}
}

// NewValidationError rejects a malformed payload.
func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidationFailed, Message: msg}
}

// NewRateLimitedError rejects a write that exceeded the sliding window.
// Clients special-case this by the "too fast" substring.
func NewRateLimitedError(action string) *Error {
	return &Error{Kind: KindRateLimited, Message: fmt.Sprintf("You are sending too fast, slow down (%s)", action)}
}

// NewConflictError rejects an operation racing a conflicting one.
func NewConflictError(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// NewNotFoundError rejects a reference to an unknown entity.
func NewNotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// NewInternalError hides persistence-layer detail behind a generic message.
func NewInternalError() *Error {
	return &Error{Kind: KindInternal, Message: "Something went wrong, please try again"}
}

// KindOf extracts the classification from an error chain, defaulting to
// Internal for unclassified failures.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
