package errdef

import (
	"errors"
	"fmt"
	"strings"
)

type Code string

const (
	CodeUnknown    Code = "unknown"
	CodeCookie     Code = "cookie"
	CodeHeader     Code = "header"
	CodePayload    Code = "payload"
	CodeHAR        Code = "har"
	CodeHTTP       Code = "http"
	CodeParse      Code = "parse"
	CodeConfig     Code = "config"
	CodeFilesystem Code = "filesystem"
	CodeHistory    Code = "history"
)

// Error carries a classification code next to the message and the optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Code)
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: sprintf(format, args...)}
}

// Wrap returns nil when err is nil so callers can wrap unconditionally.
func Wrap(code Code, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: sprintf(format, args...), Err: err}
}

// CodeOf reports the outermost code in the chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return CodeUnknown
}

func Message(err error) string {
	if err == nil {
		return ""
	}
	return strings.TrimSpace(err.Error())
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
