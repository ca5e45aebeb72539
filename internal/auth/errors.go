// AngelaMos | 2026
// errors.go

package auth

import (
	"errors"
	"fmt"

	"github.com/carterperez-dev/templates/ordering-auth/internal/core"
)

// ErrorKind classifies flow failures. The HTTP boundary maps each kind to a
// status code; nothing else inspects it.
type ErrorKind string

const (
	KindBadRequest            ErrorKind = "BAD_REQUEST"
	KindInvalidCredentials    ErrorKind = "INVALID_CREDENTIALS"
	KindDuplicateAccount      ErrorKind = "DUPLICATE_ACCOUNT"
	KindInvalidToken          ErrorKind = "INVALID_TOKEN"
	KindInvalidOrExpiredToken ErrorKind = "INVALID_OR_EXPIRED_TOKEN"
	KindDataIntegrity         ErrorKind = "DATA_INTEGRITY"
	KindInternal              ErrorKind = "INTERNAL"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailExists        = errors.New("email already exists")
)

type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind carried by err, or KindInternal when err was not
// produced by this package.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func badRequest(message string) *Error {
	return newError(KindBadRequest, message, nil)
}

func invalidCredentials() *Error {
	return newError(
		KindInvalidCredentials,
		"invalid email or password",
		ErrInvalidCredentials,
	)
}

func internal(op string, err error) *Error {
	return newError(KindInternal, op, err)
}

func passwordTooLong() *Error {
	return newError(
		KindBadRequest,
		"password must be at most 72 bytes",
		core.ErrPasswordTooLong,
	)
}
