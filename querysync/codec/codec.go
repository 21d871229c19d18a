// Package codec converts between parameter maps and URL query strings.
//
// Nested values use bracket notation:
//
//	filter[category]=electronics&pagination[page]=2&sorts[0][key]=name&sorts[0][order]=asc
//
// Encode sorts keys at every level so structurally equal maps always produce
// byte-identical strings; encoded strings double as cache and dedup keys.
// Decode accepts bracket and dot notation, repeated keys and "key[]" appends,
// and infers booleans and numbers from their string form, so that
// Decode(Encode(m)) reproduces m.
package codec

import (
	"regexp"
	"strings"

	"github.com/arthur-debert/querysync/types"
)

var originPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*://[^/?#]*`)

// stripOrigin removes a leading scheme and host, if any
func stripOrigin(url string) string {
	return originPattern.ReplaceAllString(url, "")
}

func stripFragment(url string) string {
	if i := strings.IndexByte(url, '#'); i >= 0 {
		return url[:i]
	}
	return url
}

// QueryOf returns the raw query portion of a URL, path or bare query string.
// A string without "?" that starts with "/" is a bare path and has no query.
func QueryOf(raw string) string {
	s := stripOrigin(stripFragment(raw))
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[i+1:]
	}
	if strings.HasPrefix(s, "/") {
		return ""
	}
	return s
}

// PathnameOf returns the path of a full URL, path or path with query.
// The result always starts with "/".
func PathnameOf(url string) string {
	s := stripOrigin(stripFragment(url))
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '/'); i > 0 {
		s = s[i:]
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return s
}

// BuildURL joins a path and the encoding of p. Empty state yields the bare
// path. Trailing slashes are trimmed from every path except the root.
func BuildURL(path string, p types.Params) string {
	if path != "/" {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	query := Encode(p)
	if query == "" {
		return path
	}
	return path + "?" + query
}
