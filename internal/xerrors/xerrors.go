// Package xerrors provides error wrapping with program-counter capture so the
// logging layer can render stack traces without errors carrying formatted text.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// stackError carries a callers snapshot alongside the original error.
type stackError struct {
	err error
	pcs []uintptr
}

func (e *stackError) Error() string       { return e.err.Error() }
func (e *stackError) Unwrap() error       { return e.err }
func (e *stackError) StackPCs() []uintptr { return e.pcs }
func (e *stackError) IsXerrorsWrapper()   {}

// wrapError annotates an error with a message and the PC of the wrap site.
type wrapError struct {
	err error
	msg string
	pc  uintptr
}

func (e *wrapError) Error() string     { return e.msg + ": " + e.err.Error() }
func (e *wrapError) Unwrap() error     { return e.err }
func (e *wrapError) PC() uintptr       { return e.pc }
func (e *wrapError) IsXerrorsWrapper() {}

const maxStackDepth = 64

func callers(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	// 2 skips runtime.Callers and callers itself
	n := runtime.Callers(2+skip, pcs)
	return pcs[:n]
}

func callerPC(skip int) uintptr {
	var pc [1]uintptr
	// 2 skips runtime.Callers and callerPC itself
	if runtime.Callers(2+skip, pc[:]) == 0 {
		return 0
	}
	return pc[0]
}

func stacked(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stackError{err: err, pcs: callers(skip)}
}

// New returns an error with a stack captured at the call site.
func New(msg string) error { return stacked(errors.New(msg), 2) }

// Newf is New with fmt.Errorf semantics, %w included.
func Newf(format string, args ...any) error { return stacked(fmt.Errorf(format, args...), 2) }

// Wrap annotates err with msg and records the wrap site. Returns nil for nil err.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &wrapError{err: err, msg: msg, pc: callerPC(1)}
}

// Wrapf is Wrap with fmt.Sprintf semantics.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &wrapError{err: err, msg: fmt.Sprintf(format, args...), pc: callerPC(1)}
}

// WithStack attaches a call-site stack without changing the message.
func WithStack(err error) error { return stacked(err, 2) }

// EnsureTrace attaches a stack unless some error in the chain already carries one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return stacked(err, 2)
}
