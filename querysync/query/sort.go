package query

import (
	"sort"

	"golang.org/x/text/collate"

	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/types"
)

// sortRecords orders records by the sort directives in turn. The sort is
// stable, so records equal under every directive keep their input order.
func (p *Processor) sortRecords(records []types.Record, sorts []types.Sort) {
	// a Collator is not safe for concurrent use
	coll := collate.New(p.lang)
	sort.SliceStable(records, func(i, j int) bool {
		for _, s := range sorts {
			c := compareValues(coll, records[i][s.Key], records[j][s.Key])
			if c == 0 {
				continue
			}
			if s.Order == types.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// compareValues returns -1, 0 or 1. Strings compare by collation, numbers
// numerically and booleans with false before true. A missing value ties with
// anything so that the next directive decides.
func compareValues(coll *collate.Collator, a, b any) int {
	a, b = params.Normalize(a), params.Normalize(b)
	if a == nil || b == nil {
		return 0
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return coll.CompareString(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			}
			return 1
		}
	}
	return coll.CompareString(valueToString(a), valueToString(b))
}
