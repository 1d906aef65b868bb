package permissions

import (
	"context"
	"time"
)

type Action string

const (
	ActionSubscribeSecretCreate Action = "subscribe:secret-create"
	ActionSubscribeSecretUpdate Action = "subscribe:secret-update"
	ActionSubscribeSecretDelete Action = "subscribe:secret-delete"
	ActionSubscribeImportChange Action = "subscribe:secret-import"
)

// Actor is the identity requesting a capability check.
type Actor struct {
	ID    string
	OrgID string
}

// Subject carries the attributes a capability is evaluated against. An
// empty field means "any"; the evaluator decides how to treat it.
type Subject struct {
	Environment string
	SecretPath  string
}

// Evaluator is the capability predicate obtained from the oracle. It must
// be a pure function: safe for concurrent use from the per-event filter.
type Evaluator interface {
	Can(action Action, sub Subject) bool
}

type ProjectPermission struct {
	Evaluator   Evaluator
	Memberships []string
}

// Oracle resolves an actor's capabilities in one project. The permission
// evaluation engine itself lives behind this interface.
type Oracle interface {
	GetProjectPermission(ctx context.Context, actor Actor, projectID string) (ProjectPermission, error)
}

// Cache is a snapshot of one connection's evaluator. It is replaced
// wholesale on refresh, never mutated, so concurrent readers always see a
// consistent evaluator/timestamp pair.
type Cache struct {
	Evaluator Evaluator
	FetchedAt time.Time
}

func NewCache(eval Evaluator) Cache {
	return Cache{Evaluator: eval, FetchedAt: time.Now()}
}
