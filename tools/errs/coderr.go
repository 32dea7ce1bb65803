package errs

import (
	"errors"
	"fmt"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// Wire codes carried by the exception event.
const (
	CodeAuthentication      = "AUTHENTICATION_FAILED"
	CodeValidation          = "VALIDATION_FAILED"
	CodeUpstreamTimeout     = "UPSTREAM_TIMEOUT"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeBadReply            = "BAD_REPLY"
	CodeUnknownEvent        = "UNKNOWN_EVENT"
	CodeInternal            = "INTERNAL_ERROR"
)

var (
	ErrAuthentication  = NewCodeError(CodeAuthentication, "authentication failed")
	ErrUpstreamTimeout = NewCodeError(CodeUpstreamTimeout, "upstream did not reply in time")
	ErrUnknownEvent    = NewCodeError(CodeUnknownEvent, "unknown event")
	ErrInternal        = NewCodeError(CodeInternal, "internal error")
)

func NewCodeError(code, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

// CodeError is a classified failure. Two CodeErrors match under errors.Is
// when their codes are equal, so details can be attached freely.
type CodeError struct {
	Code   string `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func (e *CodeError) clone() *CodeError {
	return &CodeError{Code: e.Code, Msg: e.Msg, Detail: e.Detail}
}

// WithDetail returns a copy carrying an extra detail segment.
func (e *CodeError) WithDetail(detail string) *CodeError {
	c := e.clone()
	if c.Detail == "" {
		c.Detail = detail
	} else if detail != "" {
		c.Detail += ", " + detail
	}
	return c
}

// WrapMsg returns a stack-annotated copy with msg and key/value pairs
// appended to the detail.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	return pkgerrors.WithStack(e.WithDetail(toString(msg, kv)))
}

func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	if e == nil || t == nil {
		return e == t
	}
	return e.Code == t.Code
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, e.Code, e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// UpstreamError is a failure reported by, or while reaching, a backend
// service. Code is whatever the callee put in its reply, or one of the
// UPSTREAM_* / BAD_REPLY codes for transport problems.
type UpstreamError struct {
	Method  string `json:"method,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *UpstreamError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("upstream %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upstream %s %s: %s", e.Method, e.Code, e.Message)
}

// Code maps any error to its wire code. Unclassified errors are INTERNAL_ERROR.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return CodeValidation
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		if ue.Code == "" {
			return CodeUpstreamUnavailable
		}
		return ue.Code
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternal
}

// Message returns the client-safe text for err. Internal errors never leak
// their cause.
func Message(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Msg
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return ErrInternal.Msg
}

func Wrap(err error, msg string) error {
	return pkgerrors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...any) error {
	return pkgerrors.Wrapf(err, format, args...)
}

func toString(msg string, kv []any) string {
	if len(kv) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprint(kv[i]))
		b.WriteString("=")
		if i+1 < len(kv) {
			b.WriteString(fmt.Sprint(kv[i+1]))
		} else {
			b.WriteString("MISSING")
		}
	}
	return b.String()
}
