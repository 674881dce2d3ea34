package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a service failure for the HTTP boundary. The original
// taxonomy was an inheritance chain of error classes; here it is a single
// tagged error type.
type ErrorKind string

const (
	ErrValidation     ErrorKind = "VALIDATION_ERROR"
	ErrNotFound       ErrorKind = "NOT_FOUND_ERROR"
	ErrAuthorization  ErrorKind = "AUTHORIZATION_ERROR"
	ErrAuthentication ErrorKind = "AUTHENTICATION_ERROR"
	ErrConflict       ErrorKind = "CONFLICT_ERROR"
	ErrInternal       ErrorKind = "INTERNAL_ERROR"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func NewValidationError(message string) *Error {
	return &Error{Kind: ErrValidation, Message: message}
}

func NewNotFoundError(message string) *Error {
	return &Error{Kind: ErrNotFound, Message: message}
}

func NewAuthorizationError(message string) *Error {
	return &Error{Kind: ErrAuthorization, Message: message}
}

func NewAuthenticationError(message string) *Error {
	return &Error{Kind: ErrAuthentication, Message: message}
}

func NewConflictError(message string) *Error {
	return &Error{Kind: ErrConflict, Message: message}
}

func NewInternalError(message string, cause error) *Error {
	return &Error{Kind: ErrInternal, Message: message, Cause: cause}
}

// KindOf returns the kind of a service error, or ErrInternal for anything
// that did not come out of this package.
func KindOf(err error) ErrorKind {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	return ErrInternal
}
