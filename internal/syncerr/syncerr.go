// Package syncerr defines the error taxonomy shared by the remote store
// adapter and the sync engine. Every failure crossing a package boundary
// is classified into a Kind so callers can decide between retrying,
// re-authenticating, and giving up.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind classifies a sync failure.
type Kind string

const (
	// KindAuthFailed means the credential is invalid or expired.
	// Non-retryable; the caller must re-authenticate.
	KindAuthFailed Kind = "AUTH_FAILED"

	// KindNetwork is a transient transport failure. Retryable.
	KindNetwork Kind = "NETWORK_ERROR"

	// KindInvalidData means a remote payload failed to parse.
	// Non-retryable; the round fails and remote state is left untouched.
	KindInvalidData Kind = "INVALID_DATA"

	// KindStorageFull means the remote quota is exceeded. Non-retryable.
	KindStorageFull Kind = "STORAGE_FULL"

	// KindConflictUnresolved means an ask-strategy round ended without
	// resolutions for every conflict. Non-retryable.
	KindConflictUnresolved Kind = "CONFLICT_UNRESOLVED"

	// KindRateLimited means the remote asked us to slow down.
	// Retryable with backoff.
	KindRateLimited Kind = "RATE_LIMITED"

	// KindUnknown is the catch-all. Retryable by default.
	KindUnknown Kind = "UNKNOWN"
)

// Retryable reports whether an operation failing with this kind may be
// retried with backoff.
func (k Kind) Retryable() bool {
	switch k {
	case KindAuthFailed, KindInvalidData, KindStorageFull, KindConflictUnresolved:
		return false
	default:
		return true
	}
}

// Error is a classified sync failure.
type Error struct {
	// Kind classifies the failure.
	Kind Kind

	// Op names the operation that failed (e.g. "fetch manifest").
	Op string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error without an underlying cause.
func New(kind Kind, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Wrap classifies an existing error. Wrapping nil returns nil. An error
// that is already classified keeps its original kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		kind = se.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a classified error, or KindUnknown for
// anything else (including nil).
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// Retryable reports whether the error's kind permits a retry.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}
