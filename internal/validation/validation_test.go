package validation_test

import (
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/arthur-debert/querysync/internal/validation"
)

func TestRoutes(t *testing.T) {
	known := func(path string) bool { return path == "/products" }

	tests := []struct {
		name     string
		routes   []validation.Route
		wantErrs int
		contains string
	}{
		{
			name: "valid standalone route",
			routes: []validation.Route{{
				Path:          "/orders",
				Dataset:       "orders",
				AllowedParams: []string{"filter", "pagination", "sorts", "layout"},
				Defaults: map[string]any{
					"layout":     "table",
					"pagination": map[string]any{"page": 1, "pageSize": 50},
				},
			}},
		},
		{
			name: "extends a known route",
			routes: []validation.Route{{
				Path:     "/featured",
				Extends:  "/products",
				Defaults: map[string]any{"layout": "list"},
			}},
		},
		{
			name: "extends an earlier route in the same batch",
			routes: []validation.Route{
				{Path: "/a", AllowedParams: []string{"tab"}},
				{Path: "/b", Extends: "/a"},
			},
		},
		{
			name:     "empty path",
			routes:   []validation.Route{{Path: ""}},
			wantErrs: 1,
			contains: "cannot be empty",
		},
		{
			name:     "relative path",
			routes:   []validation.Route{{Path: "orders"}},
			wantErrs: 1,
			contains: "must start with '/'",
		},
		{
			name: "duplicate paths",
			routes: []validation.Route{
				{Path: "/a"},
				{Path: "/a"},
			},
			wantErrs: 1,
			contains: "duplicate route path",
		},
		{
			name:     "unknown parent",
			routes:   []validation.Route{{Path: "/x", Extends: "/missing"}},
			wantErrs: 1,
			contains: "extends unknown route",
		},
		{
			name: "every problem is reported",
			routes: []validation.Route{{
				Path:          "/orders",
				AllowedParams: []string{"pagination", "bad name"},
				Defaults: map[string]any{
					"pagination": map[string]any{"page": 0},
					"layout":     "grid",
				},
			}},
			wantErrs: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.Routes(tt.routes, known)
			errs := multierr.Errors(err)
			if len(errs) != tt.wantErrs {
				t.Fatalf("expected %d errors, got %d: %v", tt.wantErrs, len(errs), err)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("expected error containing %q, got %v", tt.contains, err)
			}
		})
	}
}

func TestIsValidParamName(t *testing.T) {
	for _, name := range []string{"filter", "layout", "page-size", "tab_2"} {
		if !validation.IsValidParamName(name) {
			t.Errorf("expected %q to be valid", name)
		}
	}
	for _, name := range []string{"", "a.b", "a[0]", "a b", "x=y"} {
		if validation.IsValidParamName(name) {
			t.Errorf("expected %q to be invalid", name)
		}
	}
}
