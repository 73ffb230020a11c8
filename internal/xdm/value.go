package xdm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
)

// Decode parses a JSON object into a map. Numbers are kept as json.Number so
// they round-trip through MarshalCanonical without passing through float64.
func Decode(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode xdm: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("decode xdm: not an object")
	}
	return m, nil
}

// String returns m[key] when it is a string.
// A missing key, a nil map, or a value of another type reports ok=false.
func String(m map[string]any, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	s, ok := m[key].(string)
	return s, ok
}

// Bool returns m[key] when it is a bool.
func Bool(m map[string]any, key string) (bool, bool) {
	if m == nil {
		return false, false
	}
	b, ok := m[key].(bool)
	return b, ok
}

// Object returns m[key] when it is a JSON object.
func Object(m map[string]any, key string) (map[string]any, bool) {
	if m == nil {
		return nil, false
	}
	o, ok := m[key].(map[string]any)
	return o, ok
}

// List returns m[key] when it is a JSON array.
func List(m map[string]any, key string) ([]any, bool) {
	if m == nil {
		return nil, false
	}
	l, ok := m[key].([]any)
	return l, ok
}

// Path walks nested objects and returns the value at the end of keys.
func Path(m map[string]any, keys ...string) (any, bool) {
	var cur any = m
	for _, k := range keys {
		obj, ok := cur.(map[string]any)
		if !ok || obj == nil {
			return nil, false
		}
		cur, ok = obj[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Clone returns a deep copy of m. Host maps are cloned on every boundary
// crossing so no caller can mutate another's view.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return Clone(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case map[string]string:
		return maps.Clone(val)
	default:
		return val
	}
}

// Equal reports whether a and b have the same canonical encoding.
func Equal(a, b map[string]any) bool {
	ab, errA := MarshalCanonical(a)
	bb, errB := MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
