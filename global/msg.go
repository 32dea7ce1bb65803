package global

import (
	"net/http"

	"PPGateway/tools/errs"
)

// Msg is the envelope of every plain HTTP JSON answer.
type Msg struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Err  string `json:"err,omitempty"` // wire error code
	Data any    `json:"data,omitempty"`
}

func Success(data any) *Msg {
	return &Msg{Code: http.StatusOK, Data: data}
}

// Fail maps err to an HTTP status and a client-safe message.
func Fail(err error) (int, *Msg) {
	code := http.StatusInternalServerError
	switch errs.Code(err) {
	case errs.CodeAuthentication:
		code = http.StatusUnauthorized
	case errs.CodeValidation:
		code = http.StatusBadRequest
	case errs.CodeUpstreamTimeout, errs.CodeUpstreamUnavailable:
		code = http.StatusServiceUnavailable
	}
	return code, &Msg{Code: code, Msg: errs.Message(err), Err: errs.Code(err)}
}
