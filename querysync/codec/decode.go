package codec

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/arthur-debert/querysync/types"
)

const (
	// maxDepth bounds key nesting; deeper segments collapse into one literal key
	maxDepth = 5
	// arrayLimit is the highest index that still turns an object into a list
	arrayLimit = 20
)

var numberPattern = regexp.MustCompile(`^-?(0|[1-9][0-9]{0,14})(\.[0-9]+)?$`)

// Decode parses the query portion of a URL, path or bare query string into a
// parameter map. It never fails: malformed pairs are kept as literal strings
// or skipped when their key is empty.
func Decode(raw string) types.Params {
	root := map[string]any{}
	for _, part := range strings.Split(QueryOf(raw), "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		segments := splitKey(rawKey)
		if len(segments) == 0 || segments[0] == "" {
			continue
		}
		insert(root, segments, unescape(rawValue))
	}

	out := make(types.Params, len(root))
	for k, v := range root {
		out[k] = finish(v)
	}
	return out
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return strings.ReplaceAll(s, "+", " ")
	}
	return decoded
}

// splitKey turns "a[b][0]" or "a.b" into its segments. Segments are split on
// the raw key and unescaped individually, so encoded brackets and dots inside
// a segment stay literal. A key with no literal separators but encoded
// brackets is unescaped first, which accepts clients that encode brackets.
func splitKey(rawKey string) []string {
	if !strings.ContainsAny(rawKey, "[.") && strings.Contains(strings.ToUpper(rawKey), "%5B") {
		rawKey = unescape(rawKey)
		return splitSegments(rawKey, func(s string) string { return s })
	}
	return splitSegments(rawKey, unescape)
}

func splitSegments(key string, decode func(string) string) []string {
	end := strings.IndexAny(key, "[.")
	if end < 0 {
		return []string{decode(key)}
	}
	if end == 0 {
		// qs treats a key that starts with a separator as literal
		return []string{decode(key)}
	}
	segments := []string{decode(key[:end])}
	rest := key[end:]
	for rest != "" {
		if len(segments) > maxDepth {
			segments = append(segments, decode(rest))
			break
		}
		switch rest[0] {
		case '[':
			closing := strings.IndexByte(rest, ']')
			if closing < 0 {
				// unbalanced bracket: the remainder belongs to the last segment
				segments[len(segments)-1] += decode(rest)
				rest = ""
				continue
			}
			segments = append(segments, decode(rest[1:closing]))
			rest = rest[closing+1:]
		case '.':
			next := strings.IndexAny(rest[1:], "[.")
			if next < 0 {
				segments = append(segments, decode(rest[1:]))
				rest = ""
				continue
			}
			segments = append(segments, decode(rest[1:next+1]))
			rest = rest[next+1:]
		default:
			// trailing text after "]" that is not a separator
			segments[len(segments)-1] += decode(rest)
			rest = ""
		}
	}
	return segments
}

// insert places value at the path described by segments. Repeated leaves
// become lists; an empty segment appends to its parent.
func insert(node map[string]any, segments []string, value string) {
	head := segments[0]
	if head == "" {
		head = strconv.Itoa(nextIndex(node))
	}

	if len(segments) == 1 {
		switch existing := node[head].(type) {
		case nil:
			node[head] = value
		case string:
			node[head] = []any{existing, value}
		case []any:
			node[head] = append(existing, value)
		case map[string]any:
			existing[strconv.Itoa(nextIndex(existing))] = value
		}
		return
	}

	child, ok := node[head].(map[string]any)
	if !ok {
		child = map[string]any{}
		switch existing := node[head].(type) {
		case string:
			child["0"] = existing
		case []any:
			for i, item := range existing {
				child[strconv.Itoa(i)] = item
			}
		}
		node[head] = child
	}
	insert(child, segments[1:], value)
}

func nextIndex(node map[string]any) int {
	n := 0
	for k := range node {
		if i, ok := arrayIndex(k); ok && i >= n {
			n = i + 1
		}
	}
	return n
}

// arrayIndex reports whether k is a canonical list index within the limit
func arrayIndex(k string) (int, bool) {
	if k == "" || (len(k) > 1 && k[0] == '0') {
		return 0, false
	}
	i, err := strconv.Atoi(k)
	if err != nil || i < 0 || i > arrayLimit {
		return 0, false
	}
	return i, true
}

// finish converts index-keyed objects into lists and infers leaf types
func finish(v any) any {
	switch val := v.(type) {
	case string:
		return inferValue(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = finish(item)
		}
		return out
	case map[string]any:
		if list, ok := asList(val); ok {
			return list
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = finish(item)
		}
		return out
	}
	return v
}

func asList(m map[string]any) ([]any, bool) {
	if len(m) == 0 {
		return nil, false
	}
	indices := make([]int, 0, len(m))
	for k := range m {
		i, ok := arrayIndex(k)
		if !ok {
			return nil, false
		}
		indices = append(indices, i)
	}
	sort.Ints(indices)
	out := make([]any, len(indices))
	for pos, i := range indices {
		out[pos] = finish(m[strconv.Itoa(i)])
	}
	return out, true
}

// inferValue restores booleans and numbers from their string form. Only
// canonical decimals are numbers, so "007" or "1e3" stay strings and
// integers longer than 15 digits keep their exact text.
func inferValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if numberPattern.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}
