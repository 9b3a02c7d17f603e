package security

import "errors"

// ErrRejected is matched by every validation failure (errors.Is).
var ErrRejected = errors.New("security: validation failed")

// Error is a structured validation failure.
//
// RuleID is a stable identifier (e.g. SVS-SEC-401) naming the failed check.
// Message is intended for humans; do not match on it.
type Error struct {
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *Error) Is(target error) bool {
	return target == ErrRejected
}

func newError(ruleID, msg string) error {
	return &Error{RuleID: ruleID, Message: msg}
}

func wrapError(ruleID, msg string, cause error) error {
	return &Error{RuleID: ruleID, Message: msg, Cause: cause}
}

// RuleID returns the stable RuleID for a validation error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
