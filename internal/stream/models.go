package stream

import (
	"fmt"

	"keyhive/internal/permissions"
	"keyhive/internal/secretevents"
)

// Registration is a client's declared interest in one event category,
// optionally narrowed by environment and secret path glob. The set is
// fixed for the connection's lifetime.
type Registration struct {
	EventType  secretevents.EventType  `json:"event"`
	Conditions *RegistrationConditions `json:"conditions,omitempty"`
}

type RegistrationConditions struct {
	Environment string `json:"environment,omitempty"`
	SecretPath  string `json:"secretPath,omitempty"`
}

func (r Registration) Validate() error {
	if !r.EventType.Valid() {
		return fmt.Errorf("unknown event type %q", r.EventType)
	}
	return nil
}

// Subject returns the registration's declared intent as evaluation
// attributes. Empty fields mean the registration did not narrow them.
func (r Registration) Subject() permissions.Subject {
	sub := permissions.Subject{}
	if r.Conditions != nil {
		sub.Environment = r.Conditions.Environment
		sub.SecretPath = r.Conditions.SecretPath
	}
	return sub
}

type SubscribeRequest struct {
	ProjectID     string
	Actor         permissions.Actor
	Registrations []Registration
}

func (req SubscribeRequest) Validate() error {
	if req.ProjectID == "" {
		return fmt.Errorf("project id is required")
	}
	if req.Actor.ID == "" {
		return fmt.Errorf("actor id is required")
	}
	if len(req.Registrations) == 0 {
		return fmt.Errorf("at least one registration is required")
	}
	for i, reg := range req.Registrations {
		if err := reg.Validate(); err != nil {
			return fmt.Errorf("registration %d: %w", i, err)
		}
	}
	return nil
}

// Frame is the payload shape written for a delivered event.
type Frame struct {
	ProjectType string    `json:"projectType"`
	Data        FrameData `json:"data"`
}

type FrameData struct {
	EventType secretevents.EventType `json:"eventType"`
	Payload   interface{}            `json:"payload"`
}

const projectTypeSecretManager = "secret-manager"

func NewEventFrame(evt secretevents.SecretEvent) Frame {
	return Frame{
		ProjectType: projectTypeSecretManager,
		Data: FrameData{
			EventType: evt.EventType,
			Payload:   evt.DeliveryPayload(),
		},
	}
}
