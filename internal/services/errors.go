package services

import (
	"errors"
	"net/http"
)

// Kind classifies a failed auth or profile operation.
type Kind int

const (
	KindValidationFailed Kind = iota + 1
	KindDuplicateEmail
	KindNotRegistered
	KindCredentialMismatch
	KindMissingToken
	KindNotFound
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidationFailed:
		return "validation_failed"
	case KindDuplicateEmail:
		return "duplicate_email"
	case KindNotRegistered:
		return "not_registered"
	case KindCredentialMismatch:
		return "credential_mismatch"
	case KindMissingToken:
		return "missing_token"
	case KindNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// Status maps the kind to the HTTP status written by the boundary.
func (k Kind) Status() int {
	switch k {
	case KindValidationFailed, KindDuplicateEmail, KindNotRegistered:
		return http.StatusBadRequest
	case KindCredentialMismatch:
		return http.StatusUnauthorized
	case KindMissingToken:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// User-visible failure messages.
const (
	MsgEmailRegistered    = "Email already registered"
	MsgEmailNotRegistered = "Email not registered"
	MsgPasswordNotMatch   = "Password not match"
	MsgTokenNotFound      = "Token is expired or not found"
	MsgInternal           = "Internal server error"
	MsgUserNotFound       = "User not found"
	MsgPasswordMismatch   = "New password and confirm password do not match"
	MsgOldPassword        = "Old password is incorrect"
)

// AuthError is the failed outcome of a service call. Message is safe to show
// to the caller; Err keeps the underlying cause for logs and errors.Is.
type AuthError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Status is shorthand for e.Kind.Status().
func (e *AuthError) Status() int {
	return e.Kind.Status()
}

func fail(kind Kind, message string) *AuthError {
	return &AuthError{Kind: kind, Message: message}
}

func internal(message string, err error) *AuthError {
	return &AuthError{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the Kind carried by err, KindInternal for foreign errors and 0 for nil.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindInternal
}
