// Package errors wraps errors with the function and line that returned them.
// The wrapped cause stays reachable through Is and As, so callers can still
// match sentinels and platform codes such as syscall.ECONNREFUSED.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// New returns a plain error with no location. Use it for sentinels.
func New(message string) error {
	return errors.New(message)
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Located is an error annotated with where it was wrapped.
type Located struct {
	// At is "pkg.Func#line" of the wrapping call.
	At  string
	msg string
	err error
}

func (e *Located) Error() string {
	var b strings.Builder
	b.WriteString(e.At)
	b.WriteString(": ")
	if e.msg != "" {
		b.WriteString(e.msg)
		if e.err != nil {
			b.WriteString(": ")
		}
	}
	if e.err != nil {
		b.WriteString(e.err.Error())
	}
	return b.String()
}

func (e *Located) Unwrap() error { return e.err }

// location names the function two frames above it.
func location() string {
	var pcs [1]uintptr
	if runtime.Callers(3, pcs[:]) == 0 {
		return "unknown"
	}
	frame, _ := runtime.CallersFrames(pcs[:]).Next()
	name := frame.Function
	if name == "" {
		name = "unknown"
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name + "#" + strconv.Itoa(frame.Line)
}

// TraceNew returns a new located error.
func TraceNew(message string) error {
	return &Located{At: location(), err: errors.New(message)}
}

// Tracef formats a located error. A %w verb keeps its operand matchable.
func Tracef(format string, args ...interface{}) error {
	return &Located{At: location(), err: fmt.Errorf(format, args...)}
}

// Trace locates err. A nil err stays nil.
func Trace(err error) error {
	if err == nil {
		return nil
	}
	return &Located{At: location(), err: err}
}

// TraceMsg locates err and prefixes message. A nil err stays nil.
func TraceMsg(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Located{At: location(), msg: message, err: err}
}
