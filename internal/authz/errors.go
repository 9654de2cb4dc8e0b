package authz

import "errors"

// Kind classifies why an operation was refused.
type Kind string

const (
	KindUnauthenticated  Kind = "unauthenticated"
	KindForbidden        Kind = "forbidden"
	KindNotOwner         Kind = "not_owner"
	KindNotFound         Kind = "not_found"
	KindInvalidState     Kind = "invalid_state"
	KindChannelLocked    Kind = "channel_locked"
	KindSuspended        Kind = "suspended"
	KindWindowExpired    Kind = "window_expired"
	KindInvalidCode      Kind = "invalid_code"
	KindAlreadyUsed      Kind = "already_used"
	KindExpired          Kind = "expired"
	KindIdentityMismatch Kind = "identity_mismatch"
	KindValidation       Kind = "validation_error"
	KindRateLimited      Kind = "rate_limited"
)

// Concealed reports whether errors of this kind must be collapsed into a
// single generic message before reaching the caller, so that redemption
// failures cannot be told apart.
func (k Kind) Concealed() bool {
	switch k {
	case KindInvalidCode, KindAlreadyUsed, KindExpired, KindIdentityMismatch:
		return true
	}
	return false
}

// Error is a refusal with a kind from the closed taxonomy and an optional
// human-readable detail.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

// Is matches another *Error of the same kind. A target without a message
// matches any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

var (
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrNotOwner         = &Error{Kind: KindNotOwner}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrChannelLocked    = &Error{Kind: KindChannelLocked}
	ErrSuspended        = &Error{Kind: KindSuspended}
	ErrWindowExpired    = &Error{Kind: KindWindowExpired}
	ErrInvalidCode      = &Error{Kind: KindInvalidCode}
	ErrAlreadyUsed      = &Error{Kind: KindAlreadyUsed}
	ErrExpired          = &Error{Kind: KindExpired}
	ErrIdentityMismatch = &Error{Kind: KindIdentityMismatch}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
)

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Forbidden(message string) *Error    { return newError(KindForbidden, message) }
func NotFound(message string) *Error     { return newError(KindNotFound, message) }
func InvalidState(message string) *Error { return newError(KindInvalidState, message) }
func Validation(message string) *Error   { return newError(KindValidation, message) }

// KindOf returns the kind of the first *Error in err's chain, or "" when
// err is nil or not a refusal (for example a store failure).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
