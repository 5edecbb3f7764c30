package apperrors

import (
	"errors"
	"strings"
)

// appError is the concrete Error. The base chain links an error to the
// template it was derived from; wrappedErrors hold causes attached later.
type appError struct {
	msg           string
	base          error
	wrappedErrors []error
	statuscode    int
	code          int
}

func (e *appError) Error() string {
	return e.msg
}

// ErrorAll returns the message followed by the messages of every attached
// cause that is not part of the template chain. It is meant for logs, not for
// clients.
func (e *appError) ErrorAll() string {
	var b strings.Builder
	b.WriteString(e.msg)
	for _, err := range e.wrappedErrors {
		if err == nil || e.derivesFrom(err) {
			continue
		}
		b.WriteString("; ")
		if ae, ok := err.(*appError); ok {
			b.WriteString(ae.ErrorAll())
		} else {
			b.WriteString(err.Error())
		}
	}
	return b.String()
}

func (e *appError) derivesFrom(target error) bool {
	for b := e.base; b != nil; {
		if b == target {
			return true
		}
		ae, ok := b.(*appError)
		if !ok {
			return false
		}
		b = ae.base
	}
	return false
}

// Unwrap returns the base error for compatibility with errors.Is / errors.As.
func (e *appError) Unwrap() error {
	return e.base
}

// UnwrapAll returns all wrapped errors in the order they were added.
func (e *appError) UnwrapAll() []error {
	return e.wrappedErrors
}

// Msg creates a new error with a new message and wraps the original error.
func (e *appError) Msg(msg string) Error {
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: append([]error{e}, e.wrappedErrors...),
		statuscode:    e.statuscode,
		code:          e.code,
	}
}

// New creates a fresh error using the current error as a template. Status and
// code are inherited, wrapped causes are not.
func (e *appError) New(msg string) Error {
	return &appError{
		msg:        msg,
		base:       e,
		statuscode: e.statuscode,
		code:       e.code,
	}
}

// MsgErr creates a new error with a message and wraps additional errors.
func (e *appError) MsgErr(msg string, errs ...error) Error {
	all := append([]error{e}, errs...)
	return &appError{
		msg:           msg,
		base:          e,
		wrappedErrors: all,
		statuscode:    e.statuscode,
		code:          e.code,
	}
}

// Err attaches additional errors while keeping the current message.
func (e *appError) Err(errs ...error) Error {
	all := append([]error{e}, errs...)
	return &appError{
		msg:           e.msg,
		base:          e,
		wrappedErrors: all,
		statuscode:    e.statuscode,
		code:          e.code,
	}
}

func (e *appError) SetStatusCode(code int) Error {
	cp := *e
	cp.statuscode = code
	return &cp
}

func (e *appError) StatusCode() int {
	return e.statuscode
}

func (e *appError) SetCode(code int) Error {
	cp := *e
	cp.code = code
	return &cp
}

func (e *appError) Code() int {
	return e.code
}

// New creates a root-level error with the given message.
func New(msg string) Error {
	return &appError{
		msg: msg,
	}
}

// Is reports a match against the base chain or any attached cause. Two errors
// derived from the same template with the same message also match.
func (e *appError) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*appError); ok && t.base != nil && t.base == e.base && t.msg == e.msg {
		return true
	}
	if errors.Is(e.base, target) {
		return true
	}
	for _, err := range e.wrappedErrors {
		if err == e {
			continue
		}
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// As is a convenience for callers holding a plain error.
func As(err error) (Error, bool) {
	var ae Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
