package household

import (
	"fmt"
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	goerrors "github.com/goliatone/go-errors"
)

// ExtraRules holds operator supplied visibility expressions per feature.
// Expressions see two maps, actor and record, and must return a bool:
//
//	actor.role == "nanny" && record.creator_role == "family"
//
// They can only widen visibility. Household isolation and guest denial are
// applied before any expression runs.
type ExtraRules struct {
	mu       sync.RWMutex
	rules    map[Feature][]extraRule
	programs map[string]*exprvm.Program
}

type extraRule struct {
	expression string
	program    *exprvm.Program
}

// NewExtraRules returns an empty rule set
func NewExtraRules() *ExtraRules {
	return &ExtraRules{
		rules:    map[Feature][]extraRule{},
		programs: map[string]*exprvm.Program{},
	}
}

// Add compiles expression and registers it for feature. Identical
// expressions share one compiled program.
func (r *ExtraRules) Add(feature Feature, expression string) error {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return invalidRuleError(feature, expression, fmt.Errorf("expression must not be empty"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	program, ok := r.programs[expression]
	if !ok {
		compiled, err := exprlang.Compile(expression,
			exprlang.Env(ruleEnvironment(Actor{}, ShareableRecord{})),
			exprlang.AsBool(),
		)
		if err != nil {
			return invalidRuleError(feature, expression, err)
		}
		program = compiled
		r.programs[expression] = program
	}

	r.rules[feature] = append(r.rules[feature], extraRule{
		expression: expression,
		program:    program,
	})
	return nil
}

// Len returns the number of rules registered for feature
func (r *ExtraRules) Len(feature Feature) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules[feature])
}

// Allows reports whether any rule of the record feature admits the actor.
// Evaluation errors are returned with the first failing expression.
func (r *ExtraRules) Allows(actor Actor, record ShareableRecord) (bool, error) {
	if r == nil {
		return false, nil
	}

	r.mu.RLock()
	rules := r.rules[record.Feature]
	r.mu.RUnlock()

	if len(rules) == 0 {
		return false, nil
	}

	env := ruleEnvironment(actor, record)
	for _, rule := range rules {
		out, err := exprlang.Run(rule.program, env)
		if err != nil {
			return false, invalidRuleError(record.Feature, rule.expression, err)
		}
		if ok, _ := out.(bool); ok {
			return true, nil
		}
	}
	return false, nil
}

func ruleEnvironment(actor Actor, record ShareableRecord) map[string]any {
	return map[string]any{
		"actor": map[string]any{
			"id":           actor.ID,
			"name":         actor.Name,
			"role":         string(actor.Role),
			"household_id": actor.HouseholdID,
		},
		"record": map[string]any{
			"id":             record.ID,
			"feature":        string(record.Feature),
			"household_id":   record.HouseholdID,
			"creator_id":     record.CreatorID,
			"creator_name":   record.CreatorName,
			"creator_role":   string(record.CreatorRole),
			"recipient_id":   record.Recipient.ID,
			"recipient_name": record.Recipient.Name,
			"anyone":         record.Recipient.Anyone,
			"visibility":     record.Visibility.Strings(),
			"parent_id":      record.ParentID,
		},
	}
}

func invalidRuleError(feature Feature, expression string, err error) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid policy rule").
		WithTextCode(TextCodeInvalidPolicyRule).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"feature":    feature,
			"expression": expression,
		})
}
