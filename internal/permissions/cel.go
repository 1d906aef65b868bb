package permissions

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// PolicyRule grants or denies one action. An empty Condition always
// matches; otherwise the condition is a CEL expression over the subject's
// attributes, e.g. `environment == "prod" && secretPath.startsWith("/api")`.
type PolicyRule struct {
	Action    Action `json:"action"`
	Effect    string `json:"effect"` // "allow" or "deny"
	Condition string `json:"condition,omitempty"`
}

const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
)

// PolicyEvaluator evaluates compiled policy rules in order; the first rule
// whose action and condition match decides. No matching rule means deny.
type PolicyEvaluator struct {
	rules []compiledRule
}

type compiledRule struct {
	action  Action
	allow   bool
	program cel.Program
}

func NewPolicyEvaluator(rules []PolicyRule) (*PolicyEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("environment", cel.StringType),
		cel.Variable("secretPath", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if rule.Effect != EffectAllow && rule.Effect != EffectDeny {
			return nil, fmt.Errorf("rule %d: effect must be %q or %q, got %q", i, EffectAllow, EffectDeny, rule.Effect)
		}

		cr := compiledRule{action: rule.Action, allow: rule.Effect == EffectAllow}

		if rule.Condition != "" {
			ast, issues := env.Compile(rule.Condition)
			if issues != nil && issues.Err() != nil {
				return nil, fmt.Errorf("rule %d: failed to compile condition: %w", i, issues.Err())
			}
			if ast.OutputType() != cel.BoolType {
				return nil, fmt.Errorf("rule %d: condition must return bool, got %v", i, ast.OutputType())
			}
			program, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("rule %d: failed to create CEL program: %w", i, err)
			}
			cr.program = program
		}

		compiled = append(compiled, cr)
	}

	return &PolicyEvaluator{rules: compiled}, nil
}

func (e *PolicyEvaluator) Can(action Action, sub Subject) bool {
	for _, rule := range e.rules {
		if rule.action != action {
			continue
		}
		if rule.program != nil {
			result, _, err := rule.program.Eval(map[string]interface{}{
				"environment": sub.Environment,
				"secretPath":  sub.SecretPath,
			})
			if err != nil {
				// An unevaluable condition never grants access.
				continue
			}
			matched, ok := result.Value().(bool)
			if !ok || !matched {
				continue
			}
		}
		return rule.allow
	}
	return false
}
