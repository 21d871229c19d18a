// Package registry holds the route table: for every known route path, the
// ordered set of parameters the route accepts, a default value for each of
// them, and the dataset the route lists.
//
// A Registry is immutable once built. Readers always receive deep copies, so
// callers may modify what they get back without affecting other readers.
package registry

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/querysync/internal/validation"
	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/types"
)

// Built-in route paths
const (
	PathRoot     = "/"
	PathProducts = "/products"
	PathUsers    = "/users"
)

// PathConfig is the configuration of a single route
type PathConfig struct {
	AllowedParams []string     `json:"allowedParams" yaml:"allowedParams"`
	Defaults      types.Params `json:"defaults" yaml:"defaults"`
	Dataset       string       `json:"dataset,omitempty" yaml:"dataset,omitempty"`
}

// Allows reports whether key is an allowed parameter of the route
func (c PathConfig) Allows(key string) bool {
	return slices.Contains(c.AllowedParams, key)
}

func (c PathConfig) clone() PathConfig {
	return PathConfig{
		AllowedParams: slices.Clone(c.AllowedParams),
		Defaults:      params.Clone(c.Defaults),
		Dataset:       c.Dataset,
	}
}

// Registry maps route paths to their configuration
type Registry struct {
	routes map[string]PathConfig
}

// New builds a registry from explicit configurations. Reserved keys that are
// allowed but have no default get the global default.
func New(routes map[string]PathConfig) *Registry {
	r := &Registry{routes: make(map[string]PathConfig, len(routes))}
	for path, cfg := range routes {
		r.routes[NormalizePath(path)] = complete(cfg)
	}
	return r
}

// Builtin returns the registry of the demo application: the products list,
// the users list and the dashboard, which shares the products configuration.
func Builtin() *Registry {
	products := PathConfig{
		AllowedParams: []string{types.KeyFilter, types.KeyPagination, types.KeySorts, "tab", "layout"},
		Defaults: types.Params{
			"layout": "grid",
			"tab":    "basic-info",
		},
		Dataset: "products",
	}
	users := PathConfig{
		AllowedParams: []string{types.KeyFilter, types.KeyPagination, types.KeySorts, "layout", "tab"},
		Defaults: types.Params{
			"layout": "table",
			"tab":    "profile",
		},
		Dataset: "users",
	}
	return New(map[string]PathConfig{
		PathRoot:     products,
		PathProducts: products.clone(),
		PathUsers:    users,
	})
}

func complete(cfg PathConfig) PathConfig {
	out := cfg.clone()
	for _, key := range out.AllowedParams {
		if _, ok := out.Defaults[key]; !ok && types.IsAPIKey(key) {
			out.Defaults[key] = params.GlobalDefault(key)
		}
	}
	return out
}

// NormalizePath trims trailing slashes from every path except the root
func NormalizePath(path string) string {
	if path == "" {
		return PathRoot
	}
	trimmed := strings.TrimRight(path, "/")
	if trimmed == "" {
		return PathRoot
	}
	return trimmed
}

// Has reports whether path is a known route
func (r *Registry) Has(path string) bool {
	_, ok := r.routes[NormalizePath(path)]
	return ok
}

// ConfigFor returns a copy of the configuration for path. Unknown paths
// yield an empty allowed set and empty defaults.
func (r *Registry) ConfigFor(path string) PathConfig {
	cfg, ok := r.routes[NormalizePath(path)]
	if !ok {
		return PathConfig{AllowedParams: []string{}, Defaults: types.Params{}}
	}
	return cfg.clone()
}

// Paths lists the known route paths in lexical order
func (r *Registry) Paths() []string {
	return params.SortedKeys(r.routes)
}

// AllowedParams returns the ordered allowed parameter names of path
func (r *Registry) AllowedParams(path string) []string {
	return r.ConfigFor(path).AllowedParams
}

// Defaults returns a copy of the default values of path
func (r *Registry) Defaults(path string) types.Params {
	return r.ConfigFor(path).Defaults
}

// Dataset returns the dataset listed by path, empty for unknown paths
func (r *Registry) Dataset(path string) string {
	return r.routes[NormalizePath(path)].Dataset
}

// routesFile is the YAML layout of a routes file
type routesFile struct {
	Routes []routeEntry `yaml:"routes"`
}

type routeEntry struct {
	Path          string         `yaml:"path"`
	Dataset       string         `yaml:"dataset"`
	Extends       string         `yaml:"extends"`
	AllowedParams []string       `yaml:"allowedParams"`
	Defaults      map[string]any `yaml:"defaults"`
}

// LoadFile reads additional route definitions from a YAML file and returns a
// new registry containing both the existing and the loaded routes.
func (r *Registry) LoadFile(file string) (*Registry, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}
	next, err := r.Load(data)
	if err != nil {
		return nil, fmt.Errorf("invalid routes file %s: %w", file, err)
	}
	return next, nil
}

// Load parses YAML route definitions. See LoadFile.
func (r *Registry) Load(data []byte) (*Registry, error) {
	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse routes: %w", err)
	}

	defs := make([]validation.Route, len(file.Routes))
	for i, e := range file.Routes {
		defs[i] = validation.Route{
			Path:          e.Path,
			Dataset:       e.Dataset,
			Extends:       e.Extends,
			AllowedParams: e.AllowedParams,
			Defaults:      e.Defaults,
		}
	}
	return r.Extend(defs)
}

// Extend returns a new registry with defs added. A definition that extends
// another route starts from that route's configuration: its allowed
// parameters are appended, its defaults deep-merged over the parent's and a
// non-empty dataset replaces the parent's.
func (r *Registry) Extend(defs []validation.Route) (*Registry, error) {
	if err := validation.Routes(defs, r.Has); err != nil {
		return nil, err
	}

	next := &Registry{routes: make(map[string]PathConfig, len(r.routes)+len(defs))}
	for path, cfg := range r.routes {
		next.routes[path] = cfg
	}

	for _, def := range defs {
		var cfg PathConfig
		if def.Extends != "" {
			parent := next.ConfigFor(def.Extends)
			cfg = PathConfig{
				AllowedParams: parent.AllowedParams,
				Defaults:      params.Merge(parent.Defaults, def.Defaults),
				Dataset:       parent.Dataset,
			}
			for _, key := range def.AllowedParams {
				if !slices.Contains(cfg.AllowedParams, key) {
					cfg.AllowedParams = append(cfg.AllowedParams, key)
				}
			}
			if def.Dataset != "" {
				cfg.Dataset = def.Dataset
			}
			for _, key := range params.SortedKeys(cfg.Defaults) {
				if !cfg.Allows(key) {
					return nil, fmt.Errorf("route %s: default for '%s' which is not an allowed parameter", def.Path, key)
				}
				if types.IsAPIKey(key) && !params.CheckAPIParam(key, cfg.Defaults[key]) {
					return nil, fmt.Errorf("route %s: default for '%s' is malformed", def.Path, key)
				}
			}
		} else {
			cfg = PathConfig{
				AllowedParams: slices.Clone(def.AllowedParams),
				Defaults:      params.Clone(def.Defaults),
				Dataset:       def.Dataset,
			}
		}
		next.routes[NormalizePath(def.Path)] = complete(cfg)
	}
	return next, nil
}
