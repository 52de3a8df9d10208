package deskctl

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Code is the machine readable kind of an Error.
type Code string

const (
	CodeNotAuthorized     Code = "not_authorized"
	CodeValidation        Code = "validation_error"
	CodeInvalidPort       Code = "invalid_port"
	CodeInvalidTransition Code = "invalid_transition"
	CodeNotFound          Code = "not_found"
)

var (
	ErrNotAuthorized     = &Error{Code: CodeNotAuthorized, Message: "not authorized"}
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation error"}
	ErrInvalidPort       = &Error{Code: CodeInvalidPort, Message: "port must be between 1 and 65535"}
	ErrInvalidTransition = &Error{Code: CodeInvalidTransition, Message: "invalid status transition"}
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
)

// Error is a domain error. Two Errors match with errors.Is when their codes
// are equal, so callers compare against the Err* values above.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func (e *Error) ErrorCode() string {
	return string(e.Code)
}

func (e *Error) HttpStatus() int {
	switch e.Code {
	case CodeNotAuthorized:
		return http.StatusForbidden
	case CodeValidation, CodeInvalidPort:
		return http.StatusBadRequest
	case CodeInvalidTransition:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// notFound maps sql.ErrNoRows to a NotFound error naming what was missing and
// passes every other error through.
func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...), Cause: err}
	}
	return err
}

// HasCode reports whether err or anything it wraps is an Error with code.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// Truncate cuts s to at most max bytes without splitting a character.
// Invalid UTF-8 in s is replaced first.
func Truncate(s string, max int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= max {
		return s
	}

	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
