package model

import (
	"errors"
	"fmt"
	"time"

	goerrors "github.com/go-errors/errors"
)

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies pipeline failures.
type ErrorKind string

const (
	KindTransientNetwork        ErrorKind = "TRANSIENT_NETWORK"
	KindSiteAuth                ErrorKind = "SITE_AUTH"
	KindQuotaExceeded           ErrorKind = "QUOTA_EXCEEDED"
	KindProviderUnavailable     ErrorKind = "PROVIDER_UNAVAILABLE"
	KindProviderResponseInvalid ErrorKind = "PROVIDER_RESPONSE_INVALID"
	KindIllegalTransition       ErrorKind = "ILLEGAL_TRANSITION"
	KindCacheCorruption         ErrorKind = "CACHE_CORRUPTION"
	KindNotFound                ErrorKind = "NOT_FOUND"
	KindInvalidInput            ErrorKind = "INVALID_INPUT"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrTransientNetwork        = &Error{Kind: KindTransientNetwork}
	ErrSiteAuth                = &Error{Kind: KindSiteAuth}
	ErrQuotaExceeded           = &Error{Kind: KindQuotaExceeded}
	ErrProviderUnavailable     = &Error{Kind: KindProviderUnavailable}
	ErrProviderResponseInvalid = &Error{Kind: KindProviderResponseInvalid}
	ErrIllegalTransition       = &Error{Kind: KindIllegalTransition}
	ErrCacheCorruption         = &Error{Kind: KindCacheCorruption}
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrInvalidInput            = &Error{Kind: KindInvalidInput}
)

// Error is the typed pipeline error. Stack is captured at construction.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
	Stack   []byte

	// Ceiling names the quota that denied a reservation (QuotaExceeded only).
	Ceiling string
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a typed error, keeping an existing go-errors stack when err carries one.
func NewError(kind ErrorKind, message string, err error) *Error {
	var stack []byte
	if err != nil {
		var stackErr *goerrors.Error
		if errors.As(err, &stackErr) {
			stack = stackErr.Stack()
		} else {
			stack = goerrors.Wrap(err, 2).Stack()
		}
	} else {
		stack = goerrors.New(message).Stack()
	}
	return &Error{Kind: kind, Message: message, Err: err, Stack: stack}
}

func TransientNetwork(message string, err error) *Error {
	return NewError(KindTransientNetwork, message, err)
}

func SiteAuth(message string, err error) *Error {
	return NewError(KindSiteAuth, message, err)
}

// QuotaExceeded reports a denied reservation; ceiling is one of the budget ceiling names.
func QuotaExceeded(ceiling string, message string) *Error {
	e := NewError(KindQuotaExceeded, message, nil)
	e.Ceiling = ceiling
	return e
}

func ProviderUnavailable(message string, err error) *Error {
	return NewError(KindProviderUnavailable, message, err)
}

func ProviderResponseInvalid(message string, err error) *Error {
	return NewError(KindProviderResponseInvalid, message, err)
}

func IllegalTransition(from, to Status, reason string) *Error {
	return NewError(KindIllegalTransition, fmt.Sprintf("%s -> %s: %s", from, to, reason), nil)
}

func CacheCorruption(message string) *Error {
	return NewError(KindCacheCorruption, message, nil)
}

func NotFound(message string) *Error {
	return NewError(KindNotFound, message, nil)
}

func InvalidInput(message string) *Error {
	return NewError(KindInvalidInput, message, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
