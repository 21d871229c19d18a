package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/types"
)

// Encode serializes p into a query string without a leading "?".
// Nil values and empty maps or lists produce no pairs.
func Encode(p types.Params) string {
	var pairs []string
	for _, key := range params.SortedKeys(p) {
		pairs = appendPairs(pairs, escapeKey(key), params.Normalize(p[key]))
	}
	return strings.Join(pairs, "&")
}

func appendPairs(pairs []string, prefix string, v any) []string {
	switch val := v.(type) {
	case nil:
		return pairs
	case map[string]any:
		for _, k := range params.SortedKeys(val) {
			pairs = appendPairs(pairs, prefix+"["+escapeKey(k)+"]", val[k])
		}
		return pairs
	case []any:
		for i, item := range val {
			pairs = appendPairs(pairs, prefix+"["+strconv.Itoa(i)+"]", item)
		}
		return pairs
	case string:
		return append(pairs, prefix+"="+escapeValue(val))
	case bool:
		return append(pairs, prefix+"="+strconv.FormatBool(val))
	case float64:
		return append(pairs, prefix+"="+strconv.FormatFloat(val, 'f', -1, 64))
	}
	return append(pairs, prefix+"="+escapeValue(fmt.Sprint(v)))
}

const upperhex = "0123456789ABCDEF"

func unreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}

func escape(s string, keep func(byte) bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if keep(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

// escapeValue percent-encodes everything outside the RFC 3986 unreserved set
func escapeValue(s string) string {
	return escape(s, unreserved)
}

// escapeKey additionally encodes "." so that key segments never split on
// decode.
func escapeKey(s string) string {
	return escape(s, func(c byte) bool { return c != '.' && unreserved(c) })
}
