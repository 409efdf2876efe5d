package server

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Params are the parameters of one adapter request. Values come either from a
// decoded JSON body (numbers are float64) or from a query string (everything is
// a string), so the accessors accept both forms.
type Params map[string]any

// Has reports whether key is present with a non-empty value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return s != ""
	}
	return true
}

// String returns the value of key rendered as a string.
func (p Params) String(key string) string {
	return cellString(p[key])
}

// Int returns the integer value of key, or def when the key is absent.
func (p Params) Int(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	var f float64
	switch v := p[key].(type) {
	case float64:
		f = v
	case int:
		return v, nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number, got %q", key, v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%s must be a number, got %T", key, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%s must be an integer, got %v", key, f)
	}
	return int(f), nil
}

// Bool reports whether key holds a truthy flag: true, "true", "1" or a
// non-zero number.
func (p Params) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		return s == "true" || s == "1" || s == "yes"
	}
	return false
}

// Object returns key as a JSON object. Query strings may carry it JSON-encoded.
func (p Params) Object(key string) (map[string]any, bool) {
	switch v := p[key].(type) {
	case map[string]any:
		return v, true
	case string:
		var obj map[string]any
		if err := json.Unmarshal([]byte(v), &obj); err == nil && obj != nil {
			return obj, true
		}
	}
	return nil, false
}

// Array returns key as a JSON array. Query strings may carry it JSON-encoded.
func (p Params) Array(key string) ([]any, bool) {
	switch v := p[key].(type) {
	case []any:
		return v, true
	case string:
		var arr []any
		if err := json.Unmarshal([]byte(v), &arr); err == nil && arr != nil {
			return arr, true
		}
	}
	return nil, false
}

// Method is the upper-cased request method, GET when absent.
func (p Params) Method() string {
	m := strings.ToUpper(strings.TrimSpace(p.String("method")))
	if m == "" {
		return "GET"
	}
	return m
}
