package chat

import (
	"errors"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"go.uber.org/zap"
)

type ValidationErrorPayload struct {
	Errors       []errs.FieldError `json:"errors"`
	OriginalData any               `json:"originalData"`
}

type ExceptionPayload struct {
	Event   string `json:"event"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorFrame turns a handler error into the event reported to the caller.
// Validation failures become validation_error; anything else becomes
// exception with a wire code. Neither is ever broadcast.
func errorFrame(event string, err error) (string, any) {
	var ve *errs.ValidationError
	if errors.As(err, &ve) {
		fields := ve.Fields
		if fields == nil {
			fields = []errs.FieldError{}
		}
		return EventValidationError, ValidationErrorPayload{Errors: fields, OriginalData: ve.Original}
	}
	return EventException, ExceptionPayload{
		Event:   event,
		Code:    errs.Code(err),
		Message: errs.Message(err),
	}
}

// reportError delivers err to c alone. Internal errors are logged with
// their cause since the client only sees a generic message.
func (s *Server) reportError(c *Client, event string, err error) {
	name, payload := errorFrame(event, err)
	fields := []zap.Field{zap.String("event", event), zap.String("socket", c.ID), zap.String("user", c.UserID), zap.Error(err)}
	switch code := errs.Code(err); code {
	case errs.CodeInternal:
		logger.Error("[chat] handler failed", fields...)
	case errs.CodeValidation:
		logger.Debug("[chat] invalid payload", fields...)
	default:
		logger.Warn("[chat] handler failed", append(fields, zap.String("code", code))...)
	}
	frame, ferr := EncodeFrame(name, payload)
	if ferr != nil {
		logger.Error("[chat] encode error frame", zap.Error(ferr))
		return
	}
	c.Send(frame)
}
