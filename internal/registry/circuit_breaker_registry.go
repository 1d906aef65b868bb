package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"keyhive/internal/config"
	"keyhive/pkg/circuitbreaker"
)

// CircuitBreakerRegistry shields the rest of the service from a degraded
// redis: once the breaker opens, registry housekeeping fails fast instead
// of stalling subscribes and heartbeats.
type CircuitBreakerRegistry struct {
	inner Registry
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerRegistry(inner Registry, cfg config.CircuitBreakerConfig) *CircuitBreakerRegistry {
	if !cfg.Enabled {
		return &CircuitBreakerRegistry{inner: inner}
	}

	cbConfig := circuitbreaker.DefaultConfig("redis-registry")
	if cfg.MaxRequests > 0 {
		cbConfig.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		cbConfig.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		cbConfig.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 && cfg.MinRequests > 0 {
		cbConfig.ReadyToTrip = func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		}
	}

	return &CircuitBreakerRegistry{
		inner: inner,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (r *CircuitBreakerRegistry) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if r.cb == nil {
		return fn()
	}

	result, err := r.cb.ExecuteWithContext(ctx, fn)
	r.cb.RecordRequest(err == nil)

	if err != nil && r.cb.IsOpen() {
		return nil, fmt.Errorf("circuit breaker is open for redis-registry: %w", err)
	}
	return result, err
}

func (r *CircuitBreakerRegistry) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := r.execute(ctx, func() (interface{}, error) {
		return nil, r.inner.SetWithExpiry(ctx, key, value, ttl)
	})
	return err
}

func (r *CircuitBreakerRegistry) Get(ctx context.Context, keys []string) ([]*string, error) {
	result, err := r.execute(ctx, func() (interface{}, error) {
		return r.inner.Get(ctx, keys)
	})
	if err != nil {
		return nil, err
	}
	values, ok := result.([]*string)
	if !ok && result != nil {
		return nil, fmt.Errorf("registry returned invalid result type")
	}
	return values, nil
}

func (r *CircuitBreakerRegistry) ListPush(ctx context.Context, listKey, value string) error {
	_, err := r.execute(ctx, func() (interface{}, error) {
		return nil, r.inner.ListPush(ctx, listKey, value)
	})
	return err
}

func (r *CircuitBreakerRegistry) ListRange(ctx context.Context, listKey string, start, stop int64) ([]string, error) {
	result, err := r.execute(ctx, func() (interface{}, error) {
		return r.inner.ListRange(ctx, listKey, start, stop)
	})
	if err != nil {
		return nil, err
	}
	values, ok := result.([]string)
	if !ok && result != nil {
		return nil, fmt.Errorf("registry returned invalid result type")
	}
	return values, nil
}

func (r *CircuitBreakerRegistry) ListRemove(ctx context.Context, listKey string, count int64, value string) error {
	_, err := r.execute(ctx, func() (interface{}, error) {
		return nil, r.inner.ListRemove(ctx, listKey, count, value)
	})
	return err
}

func (r *CircuitBreakerRegistry) Delete(ctx context.Context, key string) error {
	_, err := r.execute(ctx, func() (interface{}, error) {
		return nil, r.inner.Delete(ctx, key)
	})
	return err
}

func (r *CircuitBreakerRegistry) AcquireLock(ctx context.Context, key string, waitTimeout, holdTimeout time.Duration) (Lock, error) {
	result, err := r.execute(ctx, func() (interface{}, error) {
		return r.inner.AcquireLock(ctx, key, waitTimeout, holdTimeout)
	})
	if err != nil {
		return nil, err
	}
	lock, ok := result.(Lock)
	if !ok {
		return nil, fmt.Errorf("registry returned invalid result type")
	}
	return lock, nil
}
