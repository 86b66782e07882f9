package interp

import (
	"fmt"

	"github.com/indielab/kaish/core/lang"
)

// ErrorKind classifies runtime evaluation failures.
type ErrorKind int

const (
	NameError ErrorKind = iota // undefined variable or tool
	TypeError                  // value tag mismatch in a typed position
	ArgumentError              // missing, extra or invalid arguments
	ToolError                  // builtin or remote tool failure
	IOError                    // VFS, subprocess or channel failure
	CancelledError
	InternalError
)

func (k ErrorKind) String() string {
	switch k {
	case NameError:
		return "NameError"
	case TypeError:
		return "TypeError"
	case ArgumentError:
		return "ArgumentError"
	case ToolError:
		return "ToolError"
	case IOError:
		return "IOError"
	case CancelledError:
		return "CancelledError"
	case InternalError:
		return "InternalError"
	}
	return "Error"
}

// ExitCode maps an error kind to the exit code its failing command reports.
func (k ErrorKind) ExitCode() int {
	switch k {
	case CancelledError:
		return 130
	case InternalError:
		return 255
	}
	return 1
}

// EvalError is a runtime evaluation failure with an optional source span.
type EvalError struct {
	Kind ErrorKind
	Msg  string
	Span lang.Span
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Errf builds an EvalError.
func Errf(kind ErrorKind, span lang.Span, format string, args ...interface{}) *EvalError {
	return &EvalError{Kind: kind, Msg: fmt.Sprintf(format, args...), Span: span}
}
