package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"keyhive/internal/permissions"
	"keyhive/internal/secretevents"
)

type stubEvaluator struct {
	allow func(action permissions.Action, sub permissions.Subject) bool
}

func (e stubEvaluator) Can(action permissions.Action, sub permissions.Subject) bool {
	if e.allow == nil {
		return true
	}
	return e.allow(action, sub)
}

func allowAll() permissions.Evaluator { return stubEvaluator{} }

func denyAll() permissions.Evaluator {
	return stubEvaluator{allow: func(permissions.Action, permissions.Subject) bool { return false }}
}

func filterClient(projectID string, eval permissions.Evaluator, regs ...Registration) *Client {
	req := SubscribeRequest{
		ProjectID:     projectID,
		Actor:         permissions.Actor{ID: "actor-1", OrgID: "org-1"},
		Registrations: regs,
	}
	return newClient("conn-1", req, permissions.NewCache(eval), 4)
}

func updateEvent(projectID, env, path string) secretevents.SecretEvent {
	return secretevents.SecretEvent{
		EventType:   secretevents.EventTypeSecretUpdate,
		ProjectID:   projectID,
		Environment: env,
		SecretPath:  path,
		SecretKey:   "API_KEY",
	}
}

func TestMatchPathGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{pattern: "", path: "/api/keys", want: true},
		{pattern: "/api/keys", path: "/api/keys", want: true},
		{pattern: "/api/keys", path: "/api/tokens", want: false},
		{pattern: "/api/*", path: "/api/keys", want: true},
		{pattern: "/api/*", path: "/billing/keys", want: false},
		// A star crosses path separators wherever it sits.
		{pattern: "/api/*", path: "/api/v2/keys", want: true},
		{pattern: "/api/**", path: "/api/v2/keys", want: true},
		{pattern: "/*/keys", path: "/api/keys", want: true},
		{pattern: "/api/v*", path: "/api/v2/keys", want: true},
		{pattern: "/api*", path: "/api/keys", want: true},
		{pattern: "/api/v*", path: "/api/web/keys", want: false},
		{pattern: "*keys", path: "/api/keys", want: true},
		{pattern: "[invalid", path: "/api/keys", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" vs "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, matchPathGlob(tt.pattern, tt.path))
		})
	}
}

func TestAllowedFiltering(t *testing.T) {
	pathReg := Registration{
		EventType:  secretevents.EventTypeSecretUpdate,
		Conditions: &RegistrationConditions{SecretPath: "/api/*"},
	}

	tests := []struct {
		name   string
		client *Client
		event  secretevents.SecretEvent
		want   bool
	}{
		{
			name:   "matching path glob",
			client: filterClient("proj-1", allowAll(), pathReg),
			event:  updateEvent("proj-1", "prod", "/api/keys"),
			want:   true,
		},
		{
			name:   "non-matching path glob",
			client: filterClient("proj-1", allowAll(), pathReg),
			event:  updateEvent("proj-1", "prod", "/billing/keys"),
			want:   false,
		},
		{
			name:   "wrong project",
			client: filterClient("proj-1", allowAll(), pathReg),
			event:  updateEvent("proj-2", "prod", "/api/keys"),
			want:   false,
		},
		{
			name: "wrong event category",
			client: filterClient("proj-1", allowAll(), Registration{
				EventType: secretevents.EventTypeSecretDelete,
			}),
			event: updateEvent("proj-1", "prod", "/api/keys"),
			want:  false,
		},
		{
			name: "environment mismatch",
			client: filterClient("proj-1", allowAll(), Registration{
				EventType:  secretevents.EventTypeSecretUpdate,
				Conditions: &RegistrationConditions{Environment: "staging"},
			}),
			event: updateEvent("proj-1", "prod", "/api/keys"),
			want:  false,
		},
		{
			name: "no conditions matches everything in category",
			client: filterClient("proj-1", allowAll(), Registration{
				EventType: secretevents.EventTypeSecretUpdate,
			}),
			event: updateEvent("proj-1", "prod", "/anything/at/all"),
			want:  true,
		},
		{
			name:   "permission denied despite matching registration",
			client: filterClient("proj-1", denyAll(), pathReg),
			event:  updateEvent("proj-1", "prod", "/api/keys"),
			want:   false,
		},
		{
			name: "second registration matches after first misses",
			client: filterClient("proj-1", allowAll(),
				Registration{
					EventType:  secretevents.EventTypeSecretUpdate,
					Conditions: &RegistrationConditions{SecretPath: "/billing/*"},
				},
				pathReg,
			),
			event: updateEvent("proj-1", "prod", "/api/keys"),
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, allowed(tt.client, tt.event))
		})
	}
}

func TestAllowedChecksActualEventAttributes(t *testing.T) {
	// The evaluator grants the registration's broad intent but denies the
	// concrete path the event carries.
	eval := stubEvaluator{allow: func(action permissions.Action, sub permissions.Subject) bool {
		return sub.SecretPath != "/api/private"
	}}
	c := filterClient("proj-1", eval, Registration{
		EventType:  secretevents.EventTypeSecretUpdate,
		Conditions: &RegistrationConditions{SecretPath: "/api/*"},
	})

	assert.True(t, allowed(c, updateEvent("proj-1", "prod", "/api/keys")))
	assert.False(t, allowed(c, updateEvent("proj-1", "prod", "/api/private")))
}

func TestAllowedUsesRefreshedEvaluator(t *testing.T) {
	c := filterClient("proj-1", allowAll(), Registration{
		EventType: secretevents.EventTypeSecretUpdate,
	})
	evt := updateEvent("proj-1", "prod", "/api/keys")

	assert.True(t, allowed(c, evt))

	c.SetPermission(permissions.NewCache(denyAll()))

	assert.False(t, allowed(c, evt))
}

func TestActionForImportMutation(t *testing.T) {
	assert.Equal(t, permissions.ActionSubscribeImportChange, actionFor(secretevents.EventTypeImportChange))
	assert.Equal(t, permissions.ActionSubscribeSecretCreate, actionFor(secretevents.EventTypeSecretCreate))
}
