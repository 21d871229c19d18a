// Package view holds the list-view helpers that turn query state into
// controls and control actions back into parameter values.
package view

import (
	"encoding/json"
	"strconv"

	"github.com/arthur-debert/querysync/types"
)

// MaxVisiblePages is the width of the page-number window
const MaxVisiblePages = 5

// Ellipsis marks a gap in the page-number window
const Ellipsis = "..."

// PageSizeOptions are the page sizes offered by list views
var PageSizeOptions = []int{10, 20, 25, 50, 100}

// PageItem is one entry of a page-number window: a page or a gap
type PageItem struct {
	Page int
	Gap  bool
}

// String renders the page number or the ellipsis
func (p PageItem) String() string {
	if p.Gap {
		return Ellipsis
	}
	return strconv.Itoa(p.Page)
}

// MarshalJSON encodes a page as a number and a gap as "..."
func (p PageItem) MarshalJSON() ([]byte, error) {
	if p.Gap {
		return json.Marshal(Ellipsis)
	}
	return json.Marshal(p.Page)
}

// TotalPages returns how many pages of pageSize hold total records
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total-1)/pageSize + 1
}

// PageNumbers returns the window of pages around current. With more than
// MaxVisiblePages pages the first and last page are always shown and gaps
// become ellipses.
func PageNumbers(current, totalPages int) []PageItem {
	var items []PageItem
	if totalPages <= MaxVisiblePages {
		for i := 1; i <= totalPages; i++ {
			items = append(items, PageItem{Page: i})
		}
		return items
	}

	current = min(max(current, 1), totalPages)
	start := max(1, current-2)
	end := min(totalPages, start+MaxVisiblePages-1)

	if start > 1 {
		items = append(items, PageItem{Page: 1})
		if start > 2 {
			items = append(items, PageItem{Gap: true})
		}
	}
	for i := start; i <= end; i++ {
		items = append(items, PageItem{Page: i})
	}
	if end < totalPages {
		if end < totalPages-1 {
			items = append(items, PageItem{Gap: true})
		}
		items = append(items, PageItem{Page: totalPages})
	}
	return items
}

// ChangePage moves to page, keeping the page size. Pages outside
// 1..totalPages are refused.
func ChangePage(p types.Pagination, page, totalPages int) (types.Pagination, bool) {
	if page < 1 || page > totalPages {
		return p, false
	}
	return types.Pagination{Page: page, PageSize: p.PageSize}, true
}

// ChangePageSize switches to pageSize and goes back to the first page
func ChangePageSize(pageSize int) types.Pagination {
	return types.Pagination{Page: 1, PageSize: pageSize}
}

// Showing returns the 1-based range of records on the page, as displayed
// under a list. Both are zero for an empty list or a page past the end. A
// non-positive page size shows everything.
func Showing(p types.Pagination, total int) (from, to int) {
	offset := p.Offset()
	if total <= 0 || offset >= total {
		return 0, 0
	}
	to = total
	if p.PageSize > 0 && p.PageSize < total-offset {
		to = offset + p.PageSize
	}
	return offset + 1, to
}
