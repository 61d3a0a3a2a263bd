package auth

import (
	"errors"
	"net/http"
)

// Kind classifies an auth failure so the transport can pick a status code
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindUnauthenticated
	KindMalformed
	KindExpired
	KindRevoked
	KindNotFound
	KindUnauthorized
	KindDelivery
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindRevoked:
		return "revoked"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindDelivery:
		return "delivery"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindMalformed:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthenticated, KindExpired, KindNotFound, KindUnauthorized:
		return http.StatusUnauthorized
	case KindRevoked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure with a message that is safe to show a client.
// Err optionally carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and message, so wrapped
// copies of a sentinel still compare equal with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// Status returns the HTTP status code for the error
func (e *Error) Status() int { return e.Kind.Status() }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// withCause returns a copy of the sentinel carrying err as its cause
func withCause(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: err}
}

var (
	ErrEmailRequired = newError(KindValidation, "Please enter an email address.")
	ErrEmailInvalid  = newError(KindValidation, "Please enter a valid email address.")

	ErrLoginPending       = newError(KindConflict, "A login token has already been requested. Check your email.")
	ErrAddressUnavailable = newError(KindConflict, "This email address is temporarly unavailable. Try again later.")
	ErrEmailChangePending = newError(KindConflict, "You have recently requested an email change. Check your inbox.")
	ErrAddressTaken       = newError(KindConflict, "This email address is taken. Try another one.")

	ErrUnauthenticated = newError(KindUnauthenticated, "You are not logged in.")
	ErrTokenExpired    = newError(KindExpired, "Your login has expired. Please log in again.")
	ErrTokenMalformed  = newError(KindMalformed, "Your login token is malformed. Please log in.")
	ErrTokenRevoked    = newError(KindRevoked, "Your login has been invalidated. Please log in again.")

	ErrCodesRequired      = newError(KindValidation, "A login verify code and nonce are required.")
	ErrInvalidCredentials = newError(KindUnauthorized, "Your login credentials are invalid.")

	ErrChangeCodesRequired = newError(KindUnauthorized, "A pass code and nonce code are required.")
	ErrChangeNotRequested  = newError(KindNotFound, "An email change token was not requested.")
	ErrChangeCodesInvalid  = newError(KindUnauthorized, "The verification codes submitted are incorrect.")

	ErrTokenNotFound = newError(KindNotFound, "No verification token was found.")

	ErrDeliveryFailed = newError(KindDelivery, "We could not send the email. Try again later.")
)

// StatusOf returns the HTTP status for err: the classified status of an
// *Error in its chain, otherwise 500.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status()
	}
	return http.StatusInternalServerError
}

// KindOf returns the kind of the *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
