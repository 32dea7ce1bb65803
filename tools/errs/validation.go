package errs

import (
	"strings"
)

// FieldError names one offending field of an inbound payload.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is a malformed inbound payload. It keeps the payload as
// received so the client can correlate the failure.
type ValidationError struct {
	Fields   []FieldError `json:"errors"`
	Original any          `json:"originalData"`
}

func NewValidationError(original any, fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields, Original: original}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
