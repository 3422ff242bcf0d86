// Package apierror defines the normative client-facing error messages and
// a typed Code so the dispatcher never string-matches its way to a wire
// message, following the shape of the teacher's registry/api/errcode package.
package apierror

import "fmt"

// Code identifies one of the normative failure kinds a handler can report.
type Code int

const (
	// CodeUnknown is the zero value; callers should never surface it as-is.
	CodeUnknown Code = iota
	CodeLockFail
	CodeNoSuchRepo
	CodeAuthFail
	CodeNeedResolveConflicts
	CodeNeedUpdate
	CodeNoActiveCommit
	CodeTraversal // empty msg, by design
)

// messages holds the exact normative strings from the error handling design;
// they are part of the wire contract and must not be reworded.
var messages = map[Code]string{
	CodeLockFail:             "Could not acquire exclusive lock",
	CodeNoSuchRepo:           "The requested repository does not exist",
	CodeAuthFail:             "Could not authenticate user",
	CodeNeedResolveConflicts: "Please resolve conflicts",
	CodeNeedUpdate:           "Please update to latest revision",
	CodeNoActiveCommit:       "A commit must be started before attempting this operation.",
	CodeTraversal:            "",
}

// Error is an error carrying a Code alongside the wrapped cause, if any.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if msg := messages[e.Code]; msg != "" {
		return msg
	}
	return "request failed"
}

func (e *Error) Unwrap() error { return e.Err }

// Msg returns the normative wire message for e's code, which may be empty.
func (e *Error) Msg() string { return messages[e.Code] }

// New builds an *Error for code, optionally wrapping cause.
func New(code Code, cause error) *Error {
	return &Error{Code: code, Err: cause}
}

// Newf is a convenience for wrapping a formatted cause.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Errorf(format, args...))
}
