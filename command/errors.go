package command

import (
	"errors"
	"fmt"
)

// Kind classifies a handler failure so the router can render it without string matching.
type Kind string

const (
	KindPermissionDenied Kind = "permission_denied"
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindStoreFailure     Kind = "store_failure"
)

// Fixed replies.
const (
	ReplyNotPermitted = "Operation not permitted."
	ReplyGeneric      = "Something went wrong, please try again later."
)

// Error is the typed result of a failed handler.
type Error struct {
	Kind    Kind
	Message string // user-facing reply
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// Reply is the text shown in chat for this error. Store failures never expose their cause.
func (e *Error) Reply() string {
	switch e.Kind {
	case KindPermissionDenied:
		return ReplyNotPermitted
	case KindStoreFailure:
		return ReplyGeneric
	}
	if e.Message == "" {
		return ReplyGeneric
	}
	return e.Message
}

// Sentinels for errors.Is checks.
var (
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrStoreFailure     = &Error{Kind: KindStoreFailure}
)

func denied() *Error { return &Error{Kind: KindPermissionDenied, Message: ReplyNotPermitted} }

func invalid(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func notFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func conflict(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func storeFailure(op string, cause error) *Error {
	return &Error{Kind: KindStoreFailure, Message: op, Cause: cause}
}

// asError converts any handler error into an *Error. Untyped errors are treated as store
// failures so their text never reaches chat.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return storeFailure("unclassified", err)
}
