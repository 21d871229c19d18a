package params

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"

	"github.com/arthur-debert/querysync/types"
)

// Global defaults for the reserved API keys
const (
	DefaultPage     = 1
	DefaultPageSize = 20
)

// DefaultFilter returns a fresh empty filter
func DefaultFilter() map[string]any {
	return map[string]any{}
}

// DefaultPagination returns a fresh {page:1, pageSize:20}
func DefaultPagination() map[string]any {
	return map[string]any{
		"page":     float64(DefaultPage),
		"pageSize": float64(DefaultPageSize),
	}
}

// DefaultSorts returns a fresh empty sort list
func DefaultSorts() []any {
	return []any{}
}

// DefaultAPIParams returns the global defaults for all reserved keys
func DefaultAPIParams() types.Params {
	return types.Params{
		types.KeyFilter:     DefaultFilter(),
		types.KeyPagination: DefaultPagination(),
		types.KeySorts:      DefaultSorts(),
	}
}

// GlobalDefault returns a fresh copy of the global default for a reserved key,
// or nil for any other key.
func GlobalDefault(key string) any {
	switch key {
	case types.KeyFilter:
		return DefaultFilter()
	case types.KeyPagination:
		return DefaultPagination()
	case types.KeySorts:
		return DefaultSorts()
	}
	return nil
}

// CheckAPIParam reports whether value is structurally valid for the reserved
// key. Keys that are not reserved are never valid.
//
//   - pagination: a map with truthy page and pageSize
//   - sorts: a list whose every entry has a non-empty string key and an
//     order of "asc" or "desc"
//   - filter: any map, including an empty one
func CheckAPIParam(key string, value any) bool {
	v := Normalize(value)
	switch key {
	case types.KeyPagination:
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		return Truthy(m["page"]) && Truthy(m["pageSize"])
	case types.KeySorts:
		list, ok := v.([]any)
		if !ok {
			return false
		}
		for _, entry := range list {
			m, ok := entry.(map[string]any)
			if !ok {
				return false
			}
			sortKey, _ := m["key"].(string)
			order, _ := m["order"].(string)
			if sortKey == "" || !types.SortOrder(order).Valid() {
				return false
			}
		}
		return true
	case types.KeyFilter:
		_, ok := v.(map[string]any)
		return ok
	}
	return false
}

// Repair returns value unchanged when it is valid for key, or the global
// default when key is reserved and value is malformed.
func Repair(key string, value any) any {
	if types.IsAPIKey(key) && !CheckAPIParam(key, value) {
		return GlobalDefault(key)
	}
	return Normalize(value)
}

// Sanitize drops every key not in allowed and replaces malformed reserved
// values with their global defaults. It never fails; malformed input heals.
func Sanitize(m types.Params, allowed []string) types.Params {
	out := make(types.Params, len(m))
	for k, v := range m {
		if !slices.Contains(allowed, k) {
			continue
		}
		out[k] = Repair(k, v)
	}
	return out
}

// Validate is the strict counterpart of Sanitize: instead of healing it
// reports every disallowed key and every malformed reserved value.
func Validate(m types.Params, allowed []string) error {
	var err error
	for _, k := range SortedKeys(m) {
		if !slices.Contains(allowed, k) {
			err = multierr.Append(err, fmt.Errorf("parameter %q is not allowed", k))
			continue
		}
		if types.IsAPIKey(k) && !CheckAPIParam(k, m[k]) {
			err = multierr.Append(err, fmt.Errorf("parameter %q has a malformed value", k))
		}
	}
	return err
}
