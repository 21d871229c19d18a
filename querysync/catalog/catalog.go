// Package catalog provides the datasets behind the list endpoints: generated
// products and demo users, each with its filter rules and sortable fields.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/arthur-debert/querysync/querysync/params"
	"github.com/arthur-debert/querysync/querysync/query"
	"github.com/arthur-debert/querysync/types"
)

// Dataset names
const (
	Products = "products"
	Users    = "users"
)

// ErrUnknownDataset is returned for names the catalog does not hold
var ErrUnknownDataset = errors.New("unknown dataset")

// Dataset is a named record set with its query processor
type Dataset struct {
	Name     string
	Records  []types.Record
	SortKeys []string

	processor *query.Processor
}

// FilterKeys lists the filters the dataset understands
func (d *Dataset) FilterKeys() []string {
	return d.processor.FilterKeys()
}

// Catalog holds every dataset
type Catalog struct {
	datasets map[string]*Dataset
	latency  time.Duration
	logger   *slog.Logger
}

type config struct {
	seed         uint64
	productCount int
	extraUsers   int
	latency      time.Duration
	logger       *slog.Logger
}

// Option configures a Catalog
type Option func(*config)

// WithSeed sets the seed for generated records
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// WithProductCount sets how many products are generated
func WithProductCount(n int) Option {
	return func(c *config) {
		c.productCount = n
	}
}

// WithExtraUsers appends n generated users to the demo users
func WithExtraUsers(n int) Option {
	return func(c *config) {
		c.extraUsers = n
	}
}

// WithLatency delays every Fetch, simulating a remote endpoint
func WithLatency(d time.Duration) Option {
	return func(c *config) {
		c.latency = d
	}
}

// WithLogger sets the catalog logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New builds the catalog
func New(opts ...Option) (*Catalog, error) {
	cfg := config{
		seed:         42,
		productCount: 200,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	faker := gofakeit.New(cfg.seed)
	c := &Catalog{
		datasets: make(map[string]*Dataset),
		latency:  cfg.latency,
		logger:   cfg.logger,
	}
	if err := c.add(Products, generateProducts(faker, cfg.productCount), productRules, productSortKeys); err != nil {
		return nil, err
	}
	if err := c.add(Users, users(faker, cfg.extraUsers), userRules, userSortKeys); err != nil {
		return nil, err
	}
	return c, nil
}

// Add registers a dataset with its filter rules. See query.NewProcessor for
// the rule syntax.
func (c *Catalog) Add(name string, records []types.Record, rules map[string]string, sortKeys []string) error {
	if _, exists := c.datasets[name]; exists {
		return fmt.Errorf("dataset %s already exists", name)
	}
	return c.add(name, records, rules, sortKeys)
}

func (c *Catalog) add(name string, records []types.Record, rules map[string]string, sortKeys []string) error {
	processor, err := query.NewProcessor(rules, query.WithLogger(c.logger))
	if err != nil {
		return fmt.Errorf("dataset %s: %w", name, err)
	}
	c.datasets[name] = &Dataset{
		Name:      name,
		Records:   records,
		SortKeys:  sortKeys,
		processor: processor,
	}
	return nil
}

// Names lists the dataset names in lexical order
func (c *Catalog) Names() []string {
	return params.SortedKeys(c.datasets)
}

// Dataset returns the named dataset
func (c *Catalog) Dataset(name string) (*Dataset, bool) {
	d, ok := c.datasets[name]
	return d, ok
}

// Fetch runs a list query against the named dataset. It honors the
// configured latency and returns early when ctx is done.
func (c *Catalog) Fetch(ctx context.Context, name string, api types.APIParams) (types.PaginatedData[types.Record], error) {
	d, ok := c.datasets[name]
	if !ok {
		return types.PaginatedData[types.Record]{}, fmt.Errorf("%w: %s", ErrUnknownDataset, name)
	}

	if c.latency > 0 {
		timer := time.NewTimer(c.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return types.PaginatedData[types.Record]{}, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return types.PaginatedData[types.Record]{}, err
	}

	result := d.processor.Execute(d.Records, api)
	c.logger.Debug("dataset fetched",
		"dataset", name,
		"page", api.Pagination.Page,
		"page_size", api.Pagination.PageSize,
		"total", result.Total)
	return result, nil
}
