package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the client-facing boundary.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindAuth             Kind = "auth"
	KindForbidden        Kind = "forbidden"
	KindConflict         Kind = "conflict"
	KindRateLimited      Kind = "rate_limited"
	KindStoreUnavailable Kind = "store_unavailable"
	KindNotConfigured    Kind = "not_configured"
	KindInternal         Kind = "internal"
)

var (
	// ErrNotConfigured marks a missing piece of server-side configuration.
	ErrNotConfigured = errors.New("battery_log: not configured")

	// ErrStoreUnavailable marks a backing store that could not be reached or answered badly.
	ErrStoreUnavailable = errors.New("battery_log: store unavailable")
)

// Error carries a Kind, a client-safe message and the underlying cause.
type Error struct {
	Kind       Kind
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is lets errors.Is match the package sentinels by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotConfigured:
		return e.Kind == KindNotConfigured
	case ErrStoreUnavailable:
		return e.Kind == KindStoreUnavailable
	}
	return false
}

// E builds an *Error.
func E(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Underlying: err}
}

func Validation(message string) *Error {
	return E(KindValidation, message, nil)
}

func Auth(message string) *Error {
	return E(KindAuth, message, nil)
}

func Forbidden(message string) *Error {
	return E(KindForbidden, message, nil)
}

func StoreUnavailable(message string, err error) *Error {
	return E(KindStoreUnavailable, message, err)
}

func NotConfigured(message string) *Error {
	return E(KindNotConfigured, message, nil)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message for err, falling back to fallback
// for errors that carry no classification.
func MessageOf(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return fallback
}

// HTTPStatus maps a Kind onto a response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
