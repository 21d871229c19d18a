// Package types defines the value types shared by the querysync packages.
// It exists so that the codec, store, query and server packages can agree on
// the shape of parameter maps and list responses without importing each
// other.
package types

import "math"

// Params is a parameter map: parameter name to structured value.
// Values are strings, float64 numbers, bools, nested map[string]any and []any.
type Params map[string]any

// Reserved API keys. These are the only parameters with structural
// validation rules and the only ones forwarded to list endpoints.
const (
	KeyFilter     = "filter"
	KeyPagination = "pagination"
	KeySorts      = "sorts"
)

// APIKeys lists the reserved API keys in their canonical order.
var APIKeys = []string{KeyFilter, KeyPagination, KeySorts}

// IsAPIKey reports whether key is one of the reserved API keys.
func IsAPIKey(key string) bool {
	switch key {
	case KeyFilter, KeyPagination, KeySorts:
		return true
	}
	return false
}

// SortOrder is the direction of a sort directive
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// Valid reports whether the order is asc or desc
func (o SortOrder) Valid() bool {
	return o == Asc || o == Desc
}

// Sort is a single sort directive. Directives are applied in slice order.
type Sort struct {
	Key   string    `json:"key" yaml:"key"`
	Order SortOrder `json:"order" yaml:"order"`
}

// Pagination selects a 1-based page of pageSize records
type Pagination struct {
	Page     int `json:"page" yaml:"page"`
	PageSize int `json:"pageSize" yaml:"pageSize"`
}

// Offset returns the zero-based index of the first record on the page. It
// saturates at math.MaxInt instead of overflowing; a non-positive page or
// page size starts at 0.
func (p Pagination) Offset() int {
	if p.Page < 1 || p.PageSize < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Filter holds collaborator-defined filter values keyed by filter name
type Filter map[string]any

// APIParams is the typed view of the reserved keys handed to list endpoints
type APIParams struct {
	Filter     Filter     `json:"filter" yaml:"filter"`
	Pagination Pagination `json:"pagination" yaml:"pagination"`
	Sorts      []Sort     `json:"sorts" yaml:"sorts"`
}

// Record is a single row of a dataset
type Record map[string]any

// PaginatedData is the response shape of a list endpoint
type PaginatedData[T any] struct {
	Data       []T        `json:"data" yaml:"data"`
	Pagination Pagination `json:"pagination" yaml:"pagination"`
	Total      int        `json:"total" yaml:"total"`
}
