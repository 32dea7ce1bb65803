package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// FieldProblem is one field that could not be decoded.
type FieldProblem struct {
	Field   string
	Message string
}

// Error lists every field mapstructure rejected.
type Error struct {
	Problems []FieldProblem
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Field+": "+p.Message)
	}
	return "decode: " + strings.Join(parts, "; ")
}

// DecodeMap decodes a generic JSON object into T using `json` tags. Inbound
// client payloads decode strictly: no "123" -> int style conversions.
func DecodeMap[T any](m map[string]any) (*T, error) {
	if m == nil {
		m = map[string]any{}
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
			sliceAnyToSliceStringHook(),
			jsonRawStringToMapHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, toError(err)
	}
	return &out, nil
}

// DecodeJSON unmarshals raw into a generic object and then decodes it into T.
// The generic object is returned as well so callers can echo it back.
func DecodeJSON[T any](raw []byte) (*T, map[string]any, error) {
	m := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, nil, &Error{Problems: []FieldProblem{{Field: "data", Message: "must be a JSON object"}}}
		}
	}
	out, err := DecodeMap[T](m)
	return out, m, err
}

func toError(err error) error {
	var me *mapstructure.Error
	if !errors.As(err, &me) {
		return &Error{Problems: []FieldProblem{{Field: "data", Message: err.Error()}}}
	}
	out := &Error{Problems: make([]FieldProblem, 0, len(me.Errors))}
	for _, s := range me.Errors {
		out.Problems = append(out.Problems, parseProblem(s))
	}
	return out
}

// mapstructure reports "'name' expected type ..." for type mismatches and
// "error decoding 'name': ..." for hook failures.
func parseProblem(s string) FieldProblem {
	s = strings.TrimPrefix(s, "error decoding ")
	if strings.HasPrefix(s, "'") {
		if end := strings.Index(s[1:], "'"); end >= 0 {
			name := s[1 : end+1]
			msg := strings.TrimSpace(strings.TrimPrefix(s[end+2:], ":"))
			if name == "" {
				name = "data"
			}
			return FieldProblem{Field: name, Message: msg}
		}
	}
	return FieldProblem{Field: "data", Message: s}
}

// -----------------------------
// Decode Hooks
// -----------------------------

// floatToIntHook accepts JSON numbers for integer fields only when they
// carry no fraction.
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int, reflect.Int32, reflect.Int64:
		default:
			return data, nil
		}
		f := data.(float64)
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, errors.New("must be an integer")
		}
		switch to {
		case reflect.Int32:
			if f < math.MinInt32 || f > math.MaxInt32 {
				return nil, errors.New("is out of range")
			}
			return int32(f), nil
		case reflect.Int64:
			return int64(f), nil
		}
		return int(f), nil
	}
}

// sliceAnyToSliceStringHook turns []any into []string when the target is a
// string slice. Integral numeric ids are kept as their JSON text; anything
// else is rejected.
func sliceAnyToSliceStringHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.Slice || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.String {
			return data, nil
		}
		src, ok := data.([]any)
		if !ok {
			return data, nil
		}
		out := make([]string, 0, len(src))
		for i, it := range src {
			switch v := it.(type) {
			case string:
				out = append(out, v)
			case json.Number:
				out = append(out, v.String())
			case float64:
				if v != math.Trunc(v) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("element %d must be a string", i)
				}
				out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
			default:
				return nil, fmt.Errorf("element %d must be a string", i)
			}
		}
		return out, nil
	}
}

// jsonRawStringToMapHook decodes a string holding a JSON object into a map
// field. Other strings fall through to the usual type mismatch.
func jsonRawStringToMapHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || to != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
