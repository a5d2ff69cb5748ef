package rpc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DecodeError reports a value that does not have the expected shape.
type DecodeError struct {
	Path  []string
	Want  string
	Value any
}

func (e *DecodeError) Error() string {
	loc := "value"
	if len(e.Path) > 0 {
		loc = strings.Join(e.Path, ".")
	}
	return fmt.Sprintf("%s: expected %s, got %T", loc, e.Want, e.Value)
}

func mismatch(want string, v any) error {
	return &DecodeError{Want: want, Value: v}
}

// FieldError prefixes the location of a decoding error with field.
func FieldError(field string, err error) error {
	if de, ok := err.(*DecodeError); ok {
		return &DecodeError{Path: append([]string{field}, de.Path...), Want: de.Want, Value: de.Value}
	}
	return fmt.Errorf("%s: %w", field, err)
}

func ParseString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	}
	return "", mismatch("string", raw)
}

func ParseInteger(raw any) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, mismatch("integer", raw)
		}
		if i, ok := floatToInt(f); ok {
			return i, nil
		}
	case float64:
		if i, ok := floatToInt(v); ok {
			return i, nil
		}
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), nil
		}
	}
	return 0, mismatch("integer", raw)
}

// floatToInt converts integral values inside the int64 range.
func floatToInt(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= -math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func ParseNumber(raw any) (float64, error) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, mismatch("number", raw)
		}
		return f, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return 0, mismatch("number", raw)
}

func ParseBoolean(raw any) (bool, error) {
	if v, ok := raw.(bool); ok {
		return v, nil
	}
	return false, mismatch("boolean", raw)
}

// ParseDate accepts a calendar date or a full timestamp.
func ParseDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		if t, err := time.Parse(time.DateOnly, v); err == nil {
			return t, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, mismatch("date", raw)
}

// ParseDateTime accepts RFC 3339 timestamps, with or without zone.
func ParseDateTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateTime} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, mismatch("datetime", raw)
}

// Time is a wall clock time without a date.
type Time struct {
	Hour, Minute, Second, Nanosecond int
}

func (t Time) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if t.Nanosecond > 0 {
		s += strings.TrimRight(fmt.Sprintf(".%09d", t.Nanosecond), "0")
	}
	return s
}

func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.String())), nil
}

func (t *Time) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return mismatch("time", string(data))
	}
	v, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTime accepts "15:04", "15:04:05" and fractional seconds.
func ParseTime(raw any) (Time, error) {
	switch v := raw.(type) {
	case Time:
		return v, nil
	case string:
		for _, layout := range []string{"15:04:05.999999999", "15:04"} {
			if t, err := time.Parse(layout, v); err == nil {
				return Time{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}, nil
			}
		}
	}
	return Time{}, mismatch("time", raw)
}

func ParseAny(raw any) (any, error) { return raw, nil }

func ParseNull(raw any) (any, error) { return raw, nil }

func ParseAnyMapping(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	}
	return nil, mismatch("object", raw)
}

// NewList decodes every item of an array.
func NewList[T any](raw any, item func(any) (T, error)) ([]T, error) {
	if raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, mismatch("array", raw)
	}
	out := make([]T, len(arr))
	for i, v := range arr {
		x, err := item(v)
		if err != nil {
			return nil, FieldError(strconv.Itoa(i), err)
		}
		out[i] = x
	}
	return out, nil
}

// NewMapping decodes every value of an object.
func NewMapping[T any](raw any, item func(any) (T, error)) (map[string]T, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, mismatch("object", raw)
	}
	out := make(map[string]T, len(obj))
	for k, v := range obj {
		x, err := item(v)
		if err != nil {
			return nil, FieldError(k, err)
		}
		out[k] = x
	}
	return out, nil
}

// NewTuple decodes an array position by position. Missing trailing items
// are decoded from nil.
func NewTuple(raw any, items ...func(any) (any, error)) ([]any, error) {
	if raw == nil {
		return nil, nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, mismatch("array", raw)
	}
	out := make([]any, len(items))
	for i, item := range items {
		var v any
		if i < len(arr) {
			v = arr[i]
		}
		x, err := item(v)
		if err != nil {
			return nil, FieldError(strconv.Itoa(i), err)
		}
		out[i] = x
	}
	return out, nil
}

// NewOptional decodes a nullable value into a pointer.
func NewOptional[T any](raw any, item func(any) (T, error)) (*T, error) {
	if raw == nil {
		return nil, nil
	}
	v, err := item(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// NewNullable decodes a nullable value whose Go type already has nil.
func NewNullable[T any](raw any, item func(any) (T, error)) (T, error) {
	if raw == nil {
		var zero T
		return zero, nil
	}
	return item(raw)
}

// Decodable is implemented by generated entities.
type Decodable[T any] interface {
	*T
	FromRaw(raw map[string]any) error
}

// NewEntity builds an entity from an object. An already built entity is
// returned as is.
func NewEntity[T any, PT Decodable[T]](raw any) (PT, error) {
	var zero PT
	switch v := raw.(type) {
	case nil:
		return zero, nil
	case PT:
		return v, nil
	case map[string]any:
		e := PT(new(T))
		if err := e.FromRaw(v); err != nil {
			return zero, err
		}
		return e, nil
	}
	return zero, mismatch("object", raw)
}

// Dispatch picks the arm of a union by the value of its discriminator
// field. The discriminator may be wrapped as {"value": ...}.
func Dispatch(raw any, field string, arms map[string]func(any) (any, error)) (any, error) {
	if raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, mismatch("object", raw)
	}
	id := obj[field]
	if wrapped, ok := id.(map[string]any); ok {
		if v, ok := wrapped["value"]; ok {
			id = v
		}
	}
	key, err := ParseString(id)
	if err != nil {
		if b, ok := id.(bool); ok {
			key, err = strconv.FormatBool(b), nil
		}
		if err != nil {
			return nil, FieldError(field, err)
		}
	}
	arm, ok := arms[key]
	if !ok {
		return nil, FieldError(field, &DecodeError{Want: "known variant", Value: key})
	}
	return arm(raw)
}

// Erase hides the result type of a decoder.
func Erase[T any](f func(any) (T, error)) func(any) (any, error) {
	return func(raw any) (any, error) {
		return f(raw)
	}
}
