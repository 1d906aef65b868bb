package permissions

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// StaticOracle serves one fixed policy set for every actor. It backs
// deployments where authorization is resolved by an upstream gateway and
// the policy file only narrows what event subscriptions may observe.
type StaticOracle struct {
	eval Evaluator
}

func NewStaticOracle(eval Evaluator) *StaticOracle {
	return &StaticOracle{eval: eval}
}

// NewStaticOracleFromFile loads policy rules from a JSON file.
func NewStaticOracleFromFile(path string) (*StaticOracle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var rules []PolicyRule
	if err := json.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	eval, err := NewPolicyEvaluator(rules)
	if err != nil {
		return nil, err
	}
	return &StaticOracle{eval: eval}, nil
}

func (o *StaticOracle) GetProjectPermission(ctx context.Context, actor Actor, projectID string) (ProjectPermission, error) {
	return ProjectPermission{Evaluator: o.eval}, nil
}

// AllowAllEvaluator grants every action. Used when no policy file is
// configured and an upstream gateway already enforces access.
type AllowAllEvaluator struct{}

func (AllowAllEvaluator) Can(action Action, sub Subject) bool {
	return true
}
