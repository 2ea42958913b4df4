// Package apperr defines the typed failures shared by the server and the client library.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a failure class. Its string form is the wire code.
type Kind string

const (
	KindUnauthorized         Kind = "unauthorized"
	KindNotConnected         Kind = "not_connected"
	KindInvalidState         Kind = "invalid_state"
	KindInvalidTransition    Kind = "invalid_transition"
	KindAlreadyConnected     Kind = "already_connected"
	KindAlreadyPending       Kind = "already_pending"
	KindBlocked              Kind = "blocked"
	KindNotAMember           Kind = "not_a_member"
	KindEmptyContent         Kind = "empty_content"
	KindTransportUnavailable Kind = "transport_unavailable"
	KindNotFound             Kind = "not_found"
	KindInvalidArgument      Kind = "invalid_argument"
	KindInternal             Kind = "internal"
)

// Error is a typed failure. Two errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	return e.Msg
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Msg: "unauthorized"}
	ErrNotConnected         = &Error{Kind: KindNotConnected, Msg: "users are not connected"}
	ErrInvalidState         = &Error{Kind: KindInvalidState, Msg: "invalid state"}
	ErrInvalidTransition    = &Error{Kind: KindInvalidTransition, Msg: "invalid transition"}
	ErrAlreadyConnected     = &Error{Kind: KindAlreadyConnected, Msg: "already connected"}
	ErrAlreadyPending       = &Error{Kind: KindAlreadyPending, Msg: "request already pending"}
	ErrBlocked              = &Error{Kind: KindBlocked, Msg: "connection is blocked"}
	ErrNotAMember           = &Error{Kind: KindNotAMember, Msg: "not a room member"}
	ErrEmptyContent         = &Error{Kind: KindEmptyContent, Msg: "message content is empty"}
	ErrTransportUnavailable = &Error{Kind: KindTransportUnavailable, Msg: "realtime transport unavailable"}
	ErrNotFound             = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument, Msg: "invalid argument"}
)

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the client-safe message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

// HTTPStatus maps err to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindEmptyContent, KindInvalidArgument:
		return http.StatusBadRequest
	case KindUnauthorized, KindNotConnected, KindNotAMember, KindBlocked:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindInvalidTransition, KindAlreadyConnected, KindAlreadyPending:
		return http.StatusConflict
	case KindTransportUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// FromCode rebuilds a typed error from a wire code and message.
func FromCode(code, msg string) error {
	kind := Kind(code)
	switch kind {
	case KindUnauthorized, KindNotConnected, KindInvalidState, KindInvalidTransition,
		KindAlreadyConnected, KindAlreadyPending, KindBlocked, KindNotAMember,
		KindEmptyContent, KindTransportUnavailable, KindNotFound, KindInvalidArgument:
		return &Error{Kind: kind, Msg: msg}
	}
	return fmt.Errorf("server error: %s", msg)
}
