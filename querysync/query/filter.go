package query

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/arthur-debert/querysync/types"
)

// rule is a compiled filter predicate
type rule struct {
	key        string
	expression string
	program    *vm.Program
}

func compileRule(key, expression string) (*rule, error) {
	if expression == "" {
		return nil, fmt.Errorf("filter rule %q: expression must not be empty", key)
	}
	program, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("filter rule %q: %w", key, err)
	}
	return &rule{key: key, expression: expression, program: program}, nil
}

func (r *rule) match(rec types.Record, value any) (bool, error) {
	out, err := expr.Run(r.program, map[string]any{
		"item":  map[string]any(rec),
		"value": value,
	})
	if err != nil {
		return false, err
	}
	matched, _ := out.(bool)
	return matched, nil
}

// MatchesFilters reports whether rec passes every filter value that has a
// rule. Nil and empty string values are ignored, as are filter keys without
// a rule. A predicate that fails to evaluate, for example because a number
// is compared with a string, does not match.
func (p *Processor) MatchesFilters(rec types.Record, filter types.Filter) bool {
	for key, value := range filter {
		if value == nil || value == "" {
			continue
		}
		r, ok := p.rules[key]
		if !ok {
			continue
		}
		matched, err := r.match(rec, value)
		if err != nil {
			p.logger.Debug("filter rule failed",
				"filter", key,
				"expression", r.expression,
				"value", value,
				"error", err)
			return false
		}
		if !matched {
			return false
		}
	}
	return true
}
