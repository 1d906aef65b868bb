package secretevents

import (
	"fmt"
)

type EventType string

const (
	EventTypeSecretCreate EventType = "secret:create"
	EventTypeSecretUpdate EventType = "secret:update"
	EventTypeSecretDelete EventType = "secret:delete"
	EventTypeImportChange EventType = "secret:import-mutation"
)

func (t EventType) Valid() bool {
	switch t {
	case EventTypeSecretCreate, EventTypeSecretUpdate, EventTypeSecretDelete, EventTypeImportChange:
		return true
	}
	return false
}

// SecretEvent is one secret mutation. SecretKey is empty for import
// mutations, which apply to a whole import mapping rather than one key.
type SecretEvent struct {
	EventType   EventType `json:"eventType"`
	ProjectID   string    `json:"projectId"`
	Environment string    `json:"environment"`
	SecretPath  string    `json:"secretPath"`
	SecretKey   string    `json:"secretKey,omitempty"`
}

func (e SecretEvent) Validate() error {
	if !e.EventType.Valid() {
		return fmt.Errorf("unknown event type %q", e.EventType)
	}
	if e.ProjectID == "" || e.Environment == "" || e.SecretPath == "" {
		return fmt.Errorf("event is missing project, environment or path")
	}
	if e.EventType != EventTypeImportChange && e.SecretKey == "" {
		return fmt.Errorf("%s event is missing a secret key", e.EventType)
	}
	return nil
}

// SecretItem is the delivery shape for create/update/delete events, one
// entry per affected key.
type SecretItem struct {
	Environment string `json:"environment"`
	SecretPath  string `json:"secretPath"`
	SecretKey   string `json:"secretKey"`
}

// ImportItem is the delivery shape for import mutations.
type ImportItem struct {
	Environment string `json:"environment"`
	SecretPath  string `json:"secretPath"`
}

// DeliveryPayload shapes the event for the push protocol.
func (e SecretEvent) DeliveryPayload() interface{} {
	if e.EventType == EventTypeImportChange {
		return []ImportItem{{Environment: e.Environment, SecretPath: e.SecretPath}}
	}
	return []SecretItem{{Environment: e.Environment, SecretPath: e.SecretPath, SecretKey: e.SecretKey}}
}
