package registry

import (
	"context"
	"time"
)

// Registry is the distributed connection registry: TTL keys plus membership
// lists used for cross-instance admission control. It is advisory, not
// authoritative for delivery; readers must reconcile stale entries.
type Registry interface {
	SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns one entry per requested key; nil marks a missing key.
	Get(ctx context.Context, keys []string) ([]*string, error)
	ListPush(ctx context.Context, listKey, value string) error
	ListRange(ctx context.Context, listKey string, start, stop int64) ([]string, error)
	ListRemove(ctx context.Context, listKey string, count int64, value string) error
	Delete(ctx context.Context, key string) error
	// AcquireLock serializes cross-instance critical sections on one key.
	// Acquisition is retried with backoff bounded by waitTimeout; the lock
	// self-expires after holdTimeout if never released.
	AcquireLock(ctx context.Context, key string, waitTimeout, holdTimeout time.Duration) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}
