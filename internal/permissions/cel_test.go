package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyEvaluatorCan(t *testing.T) {
	eval, err := NewPolicyEvaluator([]PolicyRule{
		{Action: ActionSubscribeSecretUpdate, Effect: EffectDeny, Condition: `environment == "prod" && secretPath.startsWith("/billing")`},
		{Action: ActionSubscribeSecretUpdate, Effect: EffectAllow, Condition: `environment == "prod"`},
		{Action: ActionSubscribeSecretDelete, Effect: EffectAllow},
	})
	require.NoError(t, err)

	tests := []struct {
		name    string
		action  Action
		subject Subject
		want    bool
	}{
		{
			name:    "allow by condition",
			action:  ActionSubscribeSecretUpdate,
			subject: Subject{Environment: "prod", SecretPath: "/api/keys"},
			want:    true,
		},
		{
			name:    "deny rule matches first",
			action:  ActionSubscribeSecretUpdate,
			subject: Subject{Environment: "prod", SecretPath: "/billing/keys"},
			want:    false,
		},
		{
			name:    "condition mismatch falls through to default deny",
			action:  ActionSubscribeSecretUpdate,
			subject: Subject{Environment: "staging", SecretPath: "/api/keys"},
			want:    false,
		},
		{
			name:    "unconditional allow",
			action:  ActionSubscribeSecretDelete,
			subject: Subject{Environment: "dev", SecretPath: "/anything"},
			want:    true,
		},
		{
			name:    "action without rules is denied",
			action:  ActionSubscribeSecretCreate,
			subject: Subject{Environment: "prod", SecretPath: "/api/keys"},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eval.Can(tt.action, tt.subject))
		})
	}
}

func TestNewPolicyEvaluatorRejectsBadRules(t *testing.T) {
	tests := []struct {
		name  string
		rules []PolicyRule
	}{
		{
			name:  "unknown effect",
			rules: []PolicyRule{{Action: ActionSubscribeSecretUpdate, Effect: "grant"}},
		},
		{
			name:  "unparsable condition",
			rules: []PolicyRule{{Action: ActionSubscribeSecretUpdate, Effect: EffectAllow, Condition: `environment ==`}},
		},
		{
			name:  "non-boolean condition",
			rules: []PolicyRule{{Action: ActionSubscribeSecretUpdate, Effect: EffectAllow, Condition: `environment`}},
		},
		{
			name:  "unknown variable",
			rules: []PolicyRule{{Action: ActionSubscribeSecretUpdate, Effect: EffectAllow, Condition: `role == "admin"`}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicyEvaluator(tt.rules)
			assert.Error(t, err)
		})
	}
}

func TestPolicyEvaluatorEmptyRulesDenyEverything(t *testing.T) {
	eval, err := NewPolicyEvaluator(nil)
	require.NoError(t, err)

	assert.False(t, eval.Can(ActionSubscribeSecretUpdate, Subject{Environment: "prod", SecretPath: "/api/keys"}))
}
