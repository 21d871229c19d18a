package query

import (
	"fmt"
	"sort"
	"strconv"
)

// valueToString renders mixed-type values so they can still be ordered
func valueToString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return fmt.Sprintf("%v", value)
}

func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}
