// Package params holds the value-level helpers every other querysync package
// builds on: number normalization, deep copies, deep structural equality,
// deep merging, and sanitizing parameter maps against a route's allowed
// parameters.
//
// All helpers treat parameter values as JSON-like trees. Numbers of any Go
// kind are normalized to float64 so that a value decoded from a URL, a value
// read back from the persisted cache and a value built in Go code compare
// equal when they represent the same number.
package params

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"strconv"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/arthur-debert/querysync/types"
)

var equalOpts = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmpopts.EquateNaNs(),
}

// Equal reports whether a and b are deeply, structurally equal after
// normalization. Nil and empty containers of the same kind are equal.
func Equal(a, b any) bool {
	return cmp.Equal(Normalize(a), Normalize(b), equalOpts...)
}

// Diff returns a human readable diff between a and b, empty when Equal.
func Diff(a, b any) string {
	return cmp.Diff(Normalize(a), Normalize(b), equalOpts...)
}

// Clone returns a deep, normalized copy of p. A nil map clones to an empty one.
func Clone(p types.Params) types.Params {
	out := make(types.Params, len(p))
	for k, v := range p {
		out[k] = Normalize(v)
	}
	return out
}

// Normalize returns a deep copy of v where every map is a map[string]any,
// every slice is a []any and every number is a float64.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return val
	case bool:
		return val
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case types.SortOrder:
		return string(val)
	case map[string]any:
		return normalizeMap(val)
	case types.Params:
		return normalizeMap(val)
	case types.Filter:
		return normalizeMap(val)
	case types.Record:
		return normalizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case types.Pagination:
		return map[string]any{
			"page":     float64(val.Page),
			"pageSize": float64(val.PageSize),
		}
	case types.Sort:
		return map[string]any{
			"key":   val.Key,
			"order": string(val.Order),
		}
	case []types.Sort:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = Normalize(s)
		}
		return out
	}
	return normalizeReflect(reflect.ValueOf(v))
}

func normalizeMap[M ~map[string]any](m M) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

// normalizeReflect handles the remaining kinds: typed string-keyed maps,
// typed slices and named scalar types.
func normalizeReflect(rv reflect.Value) any {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Normalize(rv.Elem().Interface())
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return rv.Interface()
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = Normalize(iter.Value().Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return rv.Interface()
}

// Truthy mirrors the loose truthiness used when validating reserved values:
// nil, false, zero, NaN and the empty string are falsy, everything else is truthy.
func Truthy(v any) bool {
	switch val := Normalize(v).(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0 && !math.IsNaN(val)
	case string:
		return val != ""
	}
	return true
}

// Int converts a normalized number or numeric string to an int.
func Int(v any) (int, bool) {
	switch val := Normalize(v).(type) {
	case float64:
		if math.IsNaN(val) || val >= float64(math.MaxInt) || val < float64(math.MinInt) {
			return 0, false
		}
		return int(val), true
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// SortedKeys returns the keys of m in lexical order
func SortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RemoveDefaults returns the entries of m whose value differs from the value
// for the same key in defaults. It keeps URL and persisted representations
// minimal.
func RemoveDefaults(m, defaults types.Params) types.Params {
	out := make(types.Params, len(m))
	for k, v := range m {
		if Equal(v, defaults[k]) {
			continue
		}
		out[k] = Normalize(v)
	}
	return out
}
