package view

import (
	"slices"

	"github.com/arthur-debert/querysync/types"
)

// SortOption is a sortable field and its current direction, empty when the
// field is not sorted
type SortOption struct {
	Key   string          `json:"key"`
	Order types.SortOrder `json:"order,omitempty"`
}

// SortOptions lists keys with the order each has in sorts
func SortOptions(keys []string, sorts []types.Sort) []SortOption {
	out := make([]SortOption, len(keys))
	for i, k := range keys {
		order, _ := OrderOf(sorts, k)
		out[i] = SortOption{Key: k, Order: order}
	}
	return out
}

// OrderOf returns the order of key in sorts
func OrderOf(sorts []types.Sort, key string) (types.SortOrder, bool) {
	i := slices.IndexFunc(sorts, func(s types.Sort) bool { return s.Key == key })
	if i < 0 {
		return "", false
	}
	return sorts[i].Order, true
}

// SetSort sets the order of key in place, or appends it as the last
// directive. The input is not modified.
func SetSort(sorts []types.Sort, key string, order types.SortOrder) []types.Sort {
	out := slices.Clone(sorts)
	if i := slices.IndexFunc(out, func(s types.Sort) bool { return s.Key == key }); i >= 0 {
		out[i].Order = order
		return out
	}
	return append(out, types.Sort{Key: key, Order: order})
}

// RemoveSort drops key from sorts
func RemoveSort(sorts []types.Sort, key string) []types.Sort {
	out := make([]types.Sort, 0, len(sorts))
	for _, s := range sorts {
		if s.Key != key {
			out = append(out, s)
		}
	}
	return out
}

// ToggleSort cycles key through asc, desc and unsorted
func ToggleSort(sorts []types.Sort, key string) []types.Sort {
	order, _ := OrderOf(sorts, key)
	switch order {
	case types.Asc:
		return SetSort(sorts, key, types.Desc)
	case types.Desc:
		return RemoveSort(sorts, key)
	default:
		return SetSort(sorts, key, types.Asc)
	}
}
