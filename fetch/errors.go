package fetch

import (
	"errors"
	"fmt"
)

// Kind is a stable category for why a fetch produced no payload.
//
// Callers should branch on Kind rather than matching error strings.
type Kind string

const (
	// KindNack: the network answered with a negative acknowledgement. Retryable.
	KindNack Kind = "Nack"
	// KindTimeout: no answer within the per-attempt timeout. Retryable.
	KindTimeout Kind = "Timeout"
	// KindCanceled: the attempt was canceled. Retryable unless the caller's
	// context is done.
	KindCanceled Kind = "Canceled"
	// KindUnclassified: any other attempt failure, including undecodable
	// answers and answers for a different name. Retryable.
	KindUnclassified Kind = "Unclassified"
	// KindValidation: the answer failed signature or trust checks. Terminal.
	KindValidation Kind = "Validation"
	// KindEmpty: the answer validated but carried no content. Terminal.
	KindEmpty Kind = "Empty"
	// KindNoAttempt: the retry budget allowed no attempt at all.
	KindNoAttempt Kind = "NoAttempt"
)

// Retryable reports whether another attempt may change the result.
func (k Kind) Retryable() bool {
	switch k {
	case KindNack, KindTimeout, KindCanceled, KindUnclassified:
		return true
	default:
		return false
	}
}

// Error describes a fetch that ended without a payload.
//
// Attempts is the number of requests issued. Cause, when set, is the last
// underlying failure (a transport error or a *security.Error).
type Error struct {
	Kind     Kind
	Attempts int
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("fetch: %s after %d attempt(s): %v", e.Message, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("fetch: %s after %d attempt(s)", e.Message, e.Attempts)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the Kind of a fetch error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
