package license

import (
	"context"
)

type Plan struct {
	EventSubscriptions bool `json:"eventSubscriptions"`
}

// Checker answers plan/tier questions for an organization. The licensing
// service lives behind this interface; StaticChecker covers self-hosted
// deployments where the plan is fixed by configuration.
type Checker interface {
	GetPlan(ctx context.Context, orgID string) (Plan, error)
}

type StaticChecker struct {
	plan Plan
}

func NewStaticChecker(eventSubscriptions bool) *StaticChecker {
	return &StaticChecker{plan: Plan{EventSubscriptions: eventSubscriptions}}
}

func (c *StaticChecker) GetPlan(ctx context.Context, orgID string) (Plan, error) {
	return c.plan, nil
}
