// Package bridgeerrors defines the closed set of error kinds surfaced at the
// coordinator boundary (spec §7). Errors crossing an RPC never carry
// source-language stack encoding; they carry a Kind plus an optional
// human-readable message and cause.
package bridgeerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a coordinator failure into a small, stable set of
// categories clients can branch on.
type Kind string

const (
	// KindSessionNotFound indicates the caller referenced a non-existent session.
	KindSessionNotFound Kind = "session_not_found"
	// KindDuplicateSession indicates CreateSession collided with an existing id.
	KindDuplicateSession Kind = "duplicate_session"
	// KindDuplicateTurn indicates SubmitRequest reused a turn_id within a session.
	KindDuplicateTurn Kind = "duplicate_turn"
	// KindUnknownTurn indicates SubmitResponse referenced a turn with no request.
	KindUnknownTurn Kind = "unknown_turn"
	// KindDuplicateResponse indicates a second SubmitResponse for an answered turn.
	KindDuplicateResponse Kind = "duplicate_response"
	// KindSubscriberTooSlow indicates a subscription was terminated for buffer overflow.
	KindSubscriberTooSlow Kind = "subscriber_too_slow"
	// KindConnectionLost indicates a plugin waiter failed after reconnection exhaustion.
	KindConnectionLost Kind = "connection_lost"
	// KindCancelled indicates the caller cancelled the operation.
	KindCancelled Kind = "cancelled"
	// KindStorage indicates an underlying persistence failure.
	KindStorage Kind = "storage"
	// KindInternal indicates an unclassified failure; treat as a bug report.
	KindInternal Kind = "internal"
)

// Error is the structured failure type returned at the coordinator boundary.
// It preserves a classification (Kind), a human-readable message, and an
// optional cause for error chains via errors.Is/As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind wrapping cause. If message is
// empty, cause's message is reused.
func Wrap(kind Kind, cause error, message string) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause so errors.Is/As traverse the chain.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target has the same Kind, so callers can write
// errors.Is(err, bridgeerrors.New(bridgeerrors.KindSessionNotFound, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// As extracts the first *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, otherwise
// KindInternal.
func KindOf(err error) Kind {
	if be, ok := As(err); ok {
		return be.Kind
	}
	return KindInternal
}

var (
	// ErrSessionNotFound is a sentinel usable with errors.Is for the common case.
	ErrSessionNotFound   = &Error{Kind: KindSessionNotFound, Message: "session not found"}
	ErrDuplicateSession  = &Error{Kind: KindDuplicateSession, Message: "session already exists"}
	ErrDuplicateTurn     = &Error{Kind: KindDuplicateTurn, Message: "turn id already used for a request"}
	ErrUnknownTurn       = &Error{Kind: KindUnknownTurn, Message: "no request found for turn"}
	ErrDuplicateResponse = &Error{Kind: KindDuplicateResponse, Message: "turn already answered"}
	ErrSubscriberTooSlow = &Error{Kind: KindSubscriberTooSlow, Message: "subscriber buffer overflow"}
	ErrConnectionLost    = &Error{Kind: KindConnectionLost, Message: "reconnection attempts exhausted"}
	ErrCancelled         = &Error{Kind: KindCancelled, Message: "operation cancelled"}
)
