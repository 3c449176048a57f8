// Package apperr defines the error taxonomy shared by services and
// handlers. Every business failure carries a Kind so the HTTP boundary can
// map it to a status code without inspecting messages, and infrastructure
// failures are wrapped so their cause stays in logs but never in responses.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by who caused it and whether retrying helps.
type Kind int

const (
	// KindInfrastructure is the zero value so unknown errors are treated as internal.
	KindInfrastructure Kind = iota
	KindValidation
	KindAuthentication
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "infrastructure"
	}
}

// Error is a classified failure with a client-safe message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

// New creates a classified sentinel.
func New(kind Kind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// Sentinels returned by the service layer.
var (
	ErrIdentifierMalformed = New(KindValidation, "identifier must be an email address or an E.164 phone number")
	ErrPasswordInvalid     = New(KindValidation, "password must be between 1 and 72 bytes")
	ErrEmptyPayload        = New(KindValidation, "file payload is empty")
	ErrPayloadTooLarge     = New(KindValidation, "file payload is too large")

	ErrInvalidCredentials           = New(KindAuthentication, "invalid credentials")
	ErrInvalidToken                 = New(KindAuthentication, "invalid token")
	ErrTokenExpired                 = New(KindAuthentication, "token expired")
	ErrTokenRevoked                 = New(KindAuthentication, "token revoked")
	ErrExpiredOrInvalidRefreshToken = New(KindAuthentication, "refresh token is invalid or expired")

	ErrIdentifierTaken = New(KindConflict, "identifier already registered")

	ErrNotFound = New(KindNotFound, "file not found")
)

// infraError wraps a store or disk failure.
type infraError struct {
	op  string
	err error
}

func (e *infraError) Error() string { return fmt.Sprintf("%s: %v", e.op, e.err) }
func (e *infraError) Unwrap() error { return e.err }

// Infra marks err as an infrastructure failure that happened during op.
// A nil err yields nil so call sites can wrap unconditionally.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	return &infraError{op: op, err: err}
}

// KindOf reports the Kind of err. Errors that carry no classification are
// infrastructure failures.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInfrastructure
}

// Message returns the client-safe message for err. Infrastructure failures
// never expose their cause.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Msg
	}
	return "internal error"
}
