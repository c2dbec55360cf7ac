package workflow

import (
	"encoding/json"
	"math"
	"strconv"
)

// Context is the caller-owned data of one workflow instance. It is passed by
// reference through every guard, condition and hook of a call, so mutations
// made by one hook are visible to the hooks that run after it.
//
// The engine never locks a Context. Callers driving the same instance from
// several goroutines must serialize access themselves.
type Context map[string]any

// Has reports whether key is present
func (c Context) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Set stores value under key
func (c Context) Set(key string, value any) {
	c[key] = value
}

// Bool retrieves a bool value, false when absent or of another type
func (c Context) Bool(key string) bool {
	if val, ok := c[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}

// String retrieves a string value, empty when absent or of another type
func (c Context) String(key string) string {
	if val, ok := c[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// Float retrieves a numeric value as float64
func (c Context) Float(key string) float64 {
	f, _ := c.number(key)
	return f
}

// Int retrieves a numeric value as int64. Fractions are truncated, values
// outside the int64 range saturate and NaN reads as 0.
func (c Context) Int(key string) int64 {
	switch v := c[key].(type) {
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
	}

	f, ok := c.number(key)
	switch {
	case !ok || math.IsNaN(f):
		return 0
	case f >= math.MaxInt64:
		return math.MaxInt64
	case f <= math.MinInt64:
		return math.MinInt64
	}
	return int64(f)
}

// number converts the numeric shapes produced by Go literals and by
// encoding/json decoding into a float64.
func (c Context) number(key string) (float64, bool) {
	val, ok := c[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Clone returns a shallow copy of the context
func (c Context) Clone() Context {
	out := make(Context, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
