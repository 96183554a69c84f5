package errors

import stderrors "errors"

// Kind classifies a failure so callers can react to the family of an error
// without matching every module sentinel.
type Kind uint8

const (
	KindAuthorization Kind = iota + 1
	KindState
	KindValue
	KindConcurrency
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindValue:
		return "value"
	case KindConcurrency:
		return "concurrency"
	case KindExternal:
		return "external"
	default:
		return "unknown"
	}
}

// Kind sentinels. errors.Is(err, ErrState) reports whether err belongs to the
// state family.
var (
	ErrAuthorization = &Error{kind: KindAuthorization, msg: "authorization error"}
	ErrState         = &Error{kind: KindState, msg: "state error"}
	ErrValue         = &Error{kind: KindValue, msg: "value error"}
	ErrConcurrency   = &Error{kind: KindConcurrency, msg: "concurrency error"}
	ErrExternal      = &Error{kind: KindExternal, msg: "external failure"}
)

// Error is a classified sentinel. Module sentinels are created with New and
// compared by identity; they also match the sentinel of their kind.
type Error struct {
	kind Kind
	msg  string
}

// New declares a module sentinel of the supplied kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the error family.
func (e *Error) Kind() Kind { return e.kind }

// Is matches the kind sentinel for the error's family.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return isKindSentinel(t) && t.kind == e.kind
}

func isKindSentinel(e *Error) bool {
	switch e {
	case ErrAuthorization, ErrState, ErrValue, ErrConcurrency, ErrExternal:
		return true
	default:
		return false
	}
}

type externalError struct {
	cause error
}

func (e *externalError) Error() string { return "external failure: " + e.cause.Error() }

func (e *externalError) Unwrap() error { return e.cause }

func (e *externalError) Is(target error) bool { return target == ErrExternal }

// External marks a collaborator failure as KindExternal while preserving the
// original cause for errors.Is/As. Errors that are already classified are
// returned unchanged.
func External(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != 0 {
		return err
	}
	return &externalError{cause: err}
}

// KindOf returns the family of err or zero when err is unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var ext *externalError
	if stderrors.As(err, &ext) {
		return KindExternal
	}
	var classified *Error
	if stderrors.As(err, &classified) {
		return classified.kind
	}
	return 0
}
