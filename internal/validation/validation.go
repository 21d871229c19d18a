package validation

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/types"
)

// Route is the raw shape of a route definition as read from a routes file,
// before it is merged with the route it extends.
type Route struct {
	Path          string
	Dataset       string
	Extends       string
	AllowedParams []string
	Defaults      map[string]any
}

// Routes checks a batch of route definitions. known reports whether a path
// is already registered; definitions may also extend earlier entries of the
// same batch. Every problem is reported, combined with multierr.
func Routes(routes []Route, known func(string) bool) error {
	var errs error
	seen := make(map[string]bool)
	for i, r := range routes {
		if err := validateRoute(i, r); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if seen[r.Path] {
			errs = multierr.Append(errs, fmt.Errorf("duplicate route path: %s", r.Path))
			continue
		}
		if r.Extends != "" && !seen[r.Extends] && (known == nil || !known(r.Extends)) {
			errs = multierr.Append(errs, fmt.Errorf("route %s: extends unknown route %s", r.Path, r.Extends))
		}
		seen[r.Path] = true
	}
	return errs
}

func validateRoute(i int, r Route) error {
	if r.Path == "" {
		return fmt.Errorf("route %d: path cannot be empty", i)
	}
	if !IsValidPath(r.Path) {
		return fmt.Errorf("route %d: path '%s' must start with '/' and contain no query or fragment", i, r.Path)
	}

	var errs error
	allowed := make(map[string]bool, len(r.AllowedParams))
	for _, name := range r.AllowedParams {
		if !IsValidParamName(name) {
			errs = multierr.Append(errs, fmt.Errorf("route %s: invalid parameter name '%s'", r.Path, name))
			continue
		}
		if allowed[name] {
			errs = multierr.Append(errs, fmt.Errorf("route %s: duplicate parameter '%s'", r.Path, name))
		}
		allowed[name] = true
	}

	// A route that extends another inherits its allowed set and merges its
	// defaults over the parent's, so it is checked after merging.
	if r.Extends != "" {
		return errs
	}
	for _, key := range params.SortedKeys(r.Defaults) {
		if !allowed[key] {
			errs = multierr.Append(errs, fmt.Errorf("route %s: default for '%s' which is not an allowed parameter", r.Path, key))
			continue
		}
		if types.IsAPIKey(key) && !params.CheckAPIParam(key, r.Defaults[key]) {
			errs = multierr.Append(errs, fmt.Errorf("route %s: default for '%s' is malformed", r.Path, key))
		}
	}
	return errs
}

// IsValidPath checks that a route path is an absolute path without query or
// fragment
func IsValidPath(path string) bool {
	return strings.HasPrefix(path, "/") && !strings.ContainsAny(path, "?#")
}

// IsValidParamName checks that a parameter name can round trip through the
// URL codec as a single top-level key
func IsValidParamName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, "[].&=?# ")
}
