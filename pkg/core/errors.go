package core

import (
	"errors"
	"fmt"
)

// Invocation failure kinds. Every failure surfaced by the bridge wraps exactly
// one of these so callers can classify it with errors.Is.
var (
	ErrConfiguration          = errors.New("confinity: bad process arguments")
	ErrDecode                 = errors.New("confinity: payload decode failed")
	ErrEncode                 = errors.New("confinity: result encode failed")
	ErrTypeNotFound           = errors.New("confinity: target type not found")
	ErrDispatchMethodNotFound = errors.New("confinity: dispatch method not found")
	ErrNotConstructible       = errors.New("confinity: target type not constructible")
	ErrConstruction           = errors.New("confinity: target construction failed")
	ErrInvocationType         = errors.New("confinity: payload incompatible with dispatch parameter")
	ErrTargetInvocation       = errors.New("confinity: target invocation failed")
)

// Registration and parent-side errors
var (
	ErrInvalidTargetName  = errors.New("confinity: invalid target name (must be alphanumeric, start with letter)")
	ErrTargetNameTooLong  = errors.New("confinity: target name too long")
	ErrDuplicateTarget    = errors.New("confinity: target already registered")
	ErrPayloadTooLarge    = errors.New("confinity: encoded payload exceeds size limit")
	ErrBoundaryNotFound   = errors.New("confinity: no boundary envelope in child output")
	ErrInvocationNotFound = errors.New("confinity: invocation not found")
)

// Error is a classified invocation failure. Kind is one of the sentinels above;
// Err is the underlying cause. errors.Is matches both.
type Error struct {
	Kind   error
	Target string
	Err    error

	// Stack holds the goroutine stack when the failure was a recovered panic.
	Stack []byte
}

func (e *Error) Error() string {
	switch {
	case e.Target != "" && e.Err != nil:
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Target, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.Target != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Target)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap classifies err under kind. A nil err still produces an error.
func Wrap(kind error, target string, err error) error {
	return &Error{Kind: kind, Target: target, Err: err}
}

// WithTarget fills in the target name of a classified error that was
// produced before the target was known.
func WithTarget(err error, target string) error {
	var cerr *Error
	if errors.As(err, &cerr) && cerr.Target == "" {
		cerr.Target = target
	}
	return err
}

// PanicError is the cause recorded when a target panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RemoteError is returned by the parent client when a child process ended
// without emitting a boundary envelope.
type RemoteError struct {
	Target   string
	ExitCode int
	Stderr   string
	Kind     error
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("confinity: child for %s exited with code %d", e.Target, e.ExitCode)
	if e.Kind != nil {
		msg += fmt.Sprintf(" (%v)", e.Kind)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *RemoteError) Unwrap() []error {
	if e.Kind == nil {
		return []error{ErrBoundaryNotFound}
	}
	return []error{ErrBoundaryNotFound, e.Kind}
}

// Process exit codes. Zero is success; every failure kind gets its own code.
const (
	ExitOK                     = 0
	ExitUnknown                = 1
	ExitConfiguration          = 2
	ExitDecode                 = 3
	ExitTypeNotFound           = 4
	ExitDispatchMethodNotFound = 5
	ExitNotConstructible       = 6
	ExitConstruction           = 7
	ExitInvocationType         = 8
	ExitTargetInvocation       = 9
	ExitEncode                 = 10
)

var exitCodes = []struct {
	kind error
	code int
}{
	{ErrConfiguration, ExitConfiguration},
	{ErrDecode, ExitDecode},
	{ErrTypeNotFound, ExitTypeNotFound},
	{ErrDispatchMethodNotFound, ExitDispatchMethodNotFound},
	{ErrNotConstructible, ExitNotConstructible},
	{ErrConstruction, ExitConstruction},
	{ErrInvocationType, ExitInvocationType},
	{ErrTargetInvocation, ExitTargetInvocation},
	{ErrEncode, ExitEncode},
}

// ExitCode maps an error to the process exit status the bridge reports.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	// The outermost classification wins: a target that fails because of a
	// nested decode error is still a target invocation failure.
	var cerr *Error
	if errors.As(err, &cerr) {
		for _, ec := range exitCodes {
			if cerr.Kind == ec.kind {
				return ec.code
			}
		}
	}
	for _, ec := range exitCodes {
		if errors.Is(err, ec.kind) {
			return ec.code
		}
	}
	return ExitUnknown
}

// KindForExitCode is the inverse of ExitCode. It returns nil for success and
// for codes the bridge never produces.
func KindForExitCode(code int) error {
	for _, ec := range exitCodes {
		if ec.code == code {
			return ec.kind
		}
	}
	return nil
}
