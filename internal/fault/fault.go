package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure. Every kind is recoverable: callers get
// the error back and decide whether to retry, refresh, or surface it.
type Kind int

const (
	// Validation covers bad input: illegal names, limits exceeded,
	// duplicates, self-referential actions. No state was mutated.
	Validation Kind = iota + 1
	// Permission covers capability failures: role cannot invite, caller is
	// not the invite target, caller is not the owner. No state was mutated.
	Permission
	// Missing covers resources that no longer exist (world, invite, backup).
	// Callers should refresh their view.
	Missing
	// IO covers disk copy/delete/create failures. The operation is reported,
	// not retried automatically: partial disk state must stay inspectable.
	IO
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Permission:
		return "permission"
	case Missing:
		return "missing"
	case IO:
		return "io"
	}
	return "unknown"
}

// Error carries a kind plus a caller-facing message. Wrapped causes are
// preserved for errors.Is/As.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match any fault of the same kind via the kind sentinels
// below, e.g. errors.Is(err, fault.ErrValidation).
func (e *Error) Is(target error) bool {
	s, ok := target.(kindSentinel)
	return ok && Kind(s) == e.Kind
}

type kindSentinel Kind

func (s kindSentinel) Error() string { return "fault: " + Kind(s).String() }

var (
	ErrValidation = kindSentinel(Validation)
	ErrPermission = kindSentinel(Permission)
	ErrMissing    = kindSentinel(Missing)
	ErrIO         = kindSentinel(IO)
)

func Validationf(format string, args ...any) error {
	return &Error{Kind: Validation, Msg: fmt.Sprintf(format, args...)}
}

func Permissionf(format string, args ...any) error {
	return &Error{Kind: Permission, Msg: fmt.Sprintf(format, args...)}
}

func Missingf(format string, args ...any) error {
	return &Error{Kind: Missing, Msg: fmt.Sprintf(format, args...)}
}

// IOWrap attaches the IO kind to an underlying filesystem/database error.
func IOWrap(err error, format string, args ...any) error {
	return &Error{Kind: IO, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the fault kind of err, or 0 if err carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
