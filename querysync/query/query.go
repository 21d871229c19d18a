// Package query runs list queries over in-memory record sets: filter
// predicates written as expr expressions, multi-key sorting with locale
// aware string collation, and page slicing.
package query

import (
	"log/slog"

	"golang.org/x/text/language"

	"github.com/arthur-debert/querysync/types"
)

// Processor executes list queries against records
type Processor struct {
	rules  map[string]*rule
	lang   language.Tag
	logger *slog.Logger
}

// Option configures a Processor
type Option func(*Processor)

// WithLanguage sets the collation language used for string sorting
func WithLanguage(tag language.Tag) Option {
	return func(p *Processor) {
		p.lang = tag
	}
}

// WithLogger sets the logger used for predicate evaluation failures
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor compiles one filter rule per filter key. A rule is a boolean
// expr expression over "item" (the record) and "value" (the filter value),
// for example:
//
//	value == "all" || item.category == value
//	item.price >= value
//	lower(item.name) contains lower(value)
func NewProcessor(rules map[string]string, opts ...Option) (*Processor, error) {
	p := &Processor{
		rules:  make(map[string]*rule, len(rules)),
		lang:   language.English,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for key, expression := range rules {
		compiled, err := compileRule(key, expression)
		if err != nil {
			return nil, err
		}
		p.rules[key] = compiled
	}
	return p, nil
}

// FilterKeys lists the filter keys the processor has rules for
func (p *Processor) FilterKeys() []string {
	keys := make([]string, 0, len(p.rules))
	for k := range p.rules {
		keys = append(keys, k)
	}
	return sortStrings(keys)
}

// Execute filters, sorts and paginates records. The input slice is not
// modified. Total counts the records that passed the filter.
func (p *Processor) Execute(records []types.Record, api types.APIParams) types.PaginatedData[types.Record] {
	result := make([]types.Record, 0, len(records))
	for _, rec := range records {
		if p.MatchesFilters(rec, api.Filter) {
			result = append(result, rec)
		}
	}

	if len(api.Sorts) > 0 {
		p.sortRecords(result, api.Sorts)
	}

	total := len(result)
	return types.PaginatedData[types.Record]{
		Data:       paginate(result, api.Pagination),
		Pagination: api.Pagination,
		Total:      total,
	}
}

// paginate returns the page of records selected by pg. A page past the end
// is empty; a non-positive page size returns everything from the offset.
func paginate(records []types.Record, pg types.Pagination) []types.Record {
	offset := pg.Offset()
	if offset >= len(records) {
		return []types.Record{}
	}
	end := len(records)
	if pg.PageSize > 0 && pg.PageSize < end-offset {
		end = offset + pg.PageSize
	}
	return records[offset:end]
}
