package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// AnnotatedError includes more context than a plain error that is useful for troubleshooting.
type AnnotatedError struct {
	// msg is the error message.
	msg string
	// pc is the program counter for the location of the error provided by runtime.Callers.
	pc uintptr
	// attrs are slog attributes that are added to the log event to provide more context for the error.
	attrs []slog.Attr
	// wrapped is the underlying error, if any.
	wrapped error
}

// callerPC returns the program counter of the caller skip frames above callerPC itself.
func callerPC(skip int) uintptr {
	var pcs [1]uintptr
	runtime.Callers(skip+2, pcs[:]) //nolint:mnd // skip runtime.Callers and callerPC
	return pcs[0]
}

// New creates a new error with the given message and attributes. The call site is recorded as the error source.
func New(msg string, attrs ...slog.Attr) error {
	return &AnnotatedError{
		msg:   msg,
		pc:    callerPC(1),
		attrs: attrs,
	}
}

// NewSentinel creates a plain error without other context that can be used as sentinel error that can be
// detected with errors.Is.
func NewSentinel(msg string) error {
	return errors.New(msg)
}

// Wrap annotates err with msg and attrs. The result matches err with Is and As. Wrapping a nil error returns nil.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}
	return &AnnotatedError{
		msg:     msg,
		pc:      callerPC(1),
		attrs:   attrs,
		wrapped: err,
	}
}

// Error implements error interface.
func (err *AnnotatedError) Error() string {
	if err.wrapped == nil {
		return err.msg
	}
	return fmt.Sprintf("%s: %s", err.msg, err.wrapped.Error())
}

// Unwrap returns the wrapped error.
func (err *AnnotatedError) Unwrap() error {
	return err.wrapped
}

// Source returns the file:line where the error was created.
func (err *AnnotatedError) Source() string {
	frames := runtime.CallersFrames([]uintptr{err.pc})
	source, _ := frames.Next()
	return fmt.Sprintf("%s:%d", source.File, source.Line)
}

// LogValue formats the error for useful logging.
//
// Attributes from the whole chain of annotated errors are collected so that context added deep in the call stack
// is not lost. The source points to the innermost annotated error.
func (err *AnnotatedError) LogValue() slog.Value {
	var (
		attrs     []slog.Attr
		innermost = err
		current   error = err
	)
	for current != nil {
		var annotated *AnnotatedError
		if !errors.As(current, &annotated) {
			break
		}
		attrs = append(attrs, annotated.attrs...)
		innermost = annotated
		current = annotated.wrapped
	}

	return slog.GroupValue(append(
		[]slog.Attr{
			slog.String("msg", err.Error()),
			slog.String("source", innermost.Source()),
		},
		attrs...,
	)...)
}

// SlogError returns the error as a slog attribute keyed "error".
func SlogError(err error) slog.Attr {
	var annotated *AnnotatedError
	if errors.As(err, &annotated) {
		return slog.Any("error", annotated)
	}
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}

// As exposes stdlib errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is exposes stdlib errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap exposes stdlib errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join exposes stdlib errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
