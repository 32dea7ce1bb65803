package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"PPGateway/tools/decode"
	"PPGateway/tools/errs"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Bind decodes an inbound payload into T and validates its `validate`
// tags. Every failure is an *errs.ValidationError carrying the payload as
// received.
func Bind[T any](data json.RawMessage) (*T, error) {
	out, _, err := decode.DecodeJSON[T](data)
	if err != nil {
		var de *decode.Error
		if errors.As(err, &de) {
			fields := make([]errs.FieldError, 0, len(de.Problems))
			for _, p := range de.Problems {
				fields = append(fields, errs.FieldError{Field: p.Field, Message: p.Message})
			}
			return nil, errs.NewValidationError(original(data), fields...)
		}
		return nil, errs.NewValidationError(original(data), errs.FieldError{Field: "data", Message: err.Error()})
	}
	if err := validate.Struct(out); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return nil, errs.NewValidationError(original(data), errs.FieldError{Field: "data", Message: err.Error()})
		}
		fields := make([]errs.FieldError, 0, len(ves))
		for _, fe := range ves {
			fields = append(fields, errs.FieldError{Field: fieldPath(fe), Message: fieldMessage(fe)})
		}
		return nil, errs.NewValidationError(original(data), fields...)
	}
	return out, nil
}

// original echoes the payload back untouched when it is JSON.
func original(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	if json.Valid(data) {
		return data
	}
	return string(data)
}

// "SendMessage.file.data" -> "file.data"
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s item(s) or character(s)", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at most %s item(s) or character(s)", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "base64":
		return "must be base64 encoded"
	case "notblank":
		return "must not be blank"
	default:
		return "failed " + fe.Tag() + " validation"
	}
}
