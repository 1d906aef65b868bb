package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"keyhive/internal/config"
	"keyhive/internal/constants"
	"keyhive/internal/license"
	"keyhive/internal/logger"
	"keyhive/internal/permissions"
	"keyhive/internal/registry"
	"keyhive/internal/secretevents"
	"keyhive/pkg/errors"
	"keyhive/pkg/logging"
	"keyhive/pkg/metrics"
)

// Service fans secret events out to streaming clients. It owns the
// in-memory connection map, enforces the per-project admission cap through
// the distributed registry, and re-validates cached permissions on a timer.
type Service struct {
	cfg      config.StreamConfig
	channel  *secretevents.Channel
	registry registry.Registry
	oracle   permissions.Oracle
	plans    license.Checker
	log      logger.Logger

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool

	unsubscribe func()
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewService(
	cfg config.StreamConfig,
	channel *secretevents.Channel,
	reg registry.Registry,
	oracle permissions.Oracle,
	plans license.Checker,
	log logger.Logger,
) *Service {
	return &Service{
		cfg:      cfg,
		channel:  channel,
		registry: reg,
		oracle:   oracle,
		plans:    plans,
		log:      log,
		clients:  make(map[string]*Client),
		stop:     make(chan struct{}),
	}
}

// Start subscribes the fan-out filter to the project event channel and
// launches the heartbeat, keep-alive and permission refresh loops.
func (s *Service) Start(ctx context.Context) {
	s.unsubscribe = s.channel.Subscribe(func(ctx context.Context, evt secretevents.SecretEvent) error {
		s.fanOut(ctx, evt)
		return nil
	})

	s.wg.Add(3)
	go s.runLoop(ctx, s.cfg.HeartbeatInterval, s.heartbeat)
	go s.runLoop(ctx, s.cfg.PingInterval, s.ping)
	go s.runLoop(ctx, s.cfg.PermissionRefreshInterval, s.refreshPermissions)
}

func (s *Service) runLoop(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Subscribe admits a new streaming connection. Authorization, plan and
// admission failures reject the request synchronously; no connection state
// is created on any failure path.
func (s *Service) Subscribe(ctx context.Context, req SubscribeRequest) (*Client, error) {
	if err := req.Validate(); err != nil {
		return nil, errors.ErrValidation.WithCause(err)
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, errors.ErrServiceUnavailable.WithMessage("service is shutting down")
	}

	ctx = logging.WithProjectID(ctx, req.ProjectID)

	perm, err := s.oracle.GetProjectPermission(ctx, req.Actor, req.ProjectID)
	if err != nil {
		metrics.SubscribeRequestsTotal.WithLabelValues("unauthorized").Inc()
		return nil, errors.ErrUnauthorized.WithCause(err)
	}

	// Every registration's declared intent must be permitted; partial
	// registration is not allowed.
	if err := validateRegistrations(perm.Evaluator, req.Registrations); err != nil {
		metrics.SubscribeRequestsTotal.WithLabelValues("forbidden").Inc()
		return nil, err
	}

	plan, err := s.plans.GetPlan(ctx, req.Actor.OrgID)
	if err != nil {
		metrics.SubscribeRequestsTotal.WithLabelValues("error").Inc()
		return nil, errors.ErrInternal.WithCause(err)
	}
	if !plan.EventSubscriptions {
		metrics.SubscribeRequestsTotal.WithLabelValues("plan_restricted").Inc()
		return nil, errors.ErrPlanRestricted.WithMessage("event subscriptions are not available on the current plan")
	}

	connID := uuid.New().String()
	if err := s.admit(ctx, req.ProjectID, connID); err != nil {
		return nil, err
	}

	client := newClient(connID, req, permissions.NewCache(perm.Evaluator), s.cfg.ClientBuffer)

	s.mu.Lock()
	if s.closed {
		// Close ran between the early check and registration. Its snapshot
		// cannot include this client, so undo the admission here.
		s.mu.Unlock()
		client.stream.Close()
		s.removeRegistryEntry(ctx, client)
		return nil, errors.ErrServiceUnavailable.WithMessage("service is shutting down")
	}
	s.clients[connID] = client
	s.mu.Unlock()

	metrics.SubscribeRequestsTotal.WithLabelValues("ok").Inc()
	metrics.ActiveConnections.Inc()

	s.log.InfowCtx(ctx, "Streaming connection established",
		"connection_id", connID,
		"registrations", len(req.Registrations),
	)

	return client, nil
}

// admit runs the read-count-then-register sequence under the per-project
// lock. Expired connection ids found while counting are garbage collected
// opportunistically.
func (s *Service) admit(ctx context.Context, projectID, connID string) error {
	lockKey := constants.RegistryKeyPrefixLock + projectID

	lock, err := s.registry.AcquireLock(ctx, lockKey, s.cfg.LockWaitTimeout, s.cfg.LockHoldTimeout)
	if err != nil {
		metrics.AdmissionRejectionsTotal.WithLabelValues("lock").Inc()
		return errors.ErrServiceUnavailable.WithCause(err)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.log.WarnwCtx(ctx, "Failed to release admission lock",
				"error", err,
				"project_id", projectID,
			)
		}
	}()

	live, err := s.countLive(ctx, projectID)
	if err != nil {
		metrics.AdmissionRejectionsTotal.WithLabelValues("registry").Inc()
		return errors.ErrServiceUnavailable.WithCause(err)
	}

	if live >= s.cfg.ProjectConnectionCap {
		metrics.AdmissionRejectionsTotal.WithLabelValues("cap").Inc()
		return errors.ErrRateLimited.WithDetail("limit", s.cfg.ProjectConnectionCap)
	}

	if err := s.registry.SetWithExpiry(ctx, connKey(projectID, connID), "1", s.cfg.ConnectionTTL); err != nil {
		return errors.ErrServiceUnavailable.WithCause(err)
	}
	if err := s.registry.ListPush(ctx, listKey(projectID), connID); err != nil {
		return errors.ErrServiceUnavailable.WithCause(err)
	}

	return nil
}

// countLive reads the project's connection list and keeps only ids whose
// TTL key still exists, pruning the rest from the list.
func (s *Service) countLive(ctx context.Context, projectID string) (int, error) {
	ids, err := s.registry.ListRange(ctx, listKey(projectID), 0, -1)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = connKey(projectID, id)
	}

	values, err := s.registry.Get(ctx, keys)
	if err != nil {
		return 0, err
	}

	live := 0
	for i, v := range values {
		if v != nil {
			live++
			continue
		}
		if err := s.registry.ListRemove(ctx, listKey(projectID), 0, ids[i]); err != nil {
			s.log.WarnwCtx(ctx, "Failed to prune stale connection id",
				"error", err,
				"project_id", projectID,
				"connection_id", ids[i],
			)
		}
	}

	return live, nil
}

// fanOut runs once per event and iterates every connection; per-client
// work stays cheap and synchronous.
func (s *Service) fanOut(ctx context.Context, evt secretevents.SecretEvent) {
	start := time.Now()

	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		if !allowed(c, evt) {
			continue
		}

		frame := NewEventFrame(evt)
		if c.stream.Send(OutFrame{ID: uuid.New().String(), Event: string(evt.EventType), Data: frame}) {
			metrics.EventsDeliveredTotal.WithLabelValues(string(evt.EventType)).Inc()
		} else {
			// Dropped under backpressure; never buffered or retried.
			metrics.EventsDroppedTotal.WithLabelValues(string(evt.EventType)).Inc()
			s.log.DebugwCtx(ctx, "Dropped event for slow client",
				"connection_id", c.ID,
				"event_type", evt.EventType,
			)
		}
	}

	metrics.ObserveFilterDuration(time.Since(start))
}

// heartbeat refreshes the registry TTL of every open connection, which is
// what keeps a long-lived connection counted by admission control.
func (s *Service) heartbeat(ctx context.Context) {
	for _, c := range s.snapshot() {
		select {
		case <-c.stream.Done():
			continue
		default:
		}

		if err := s.registry.SetWithExpiry(ctx, connKey(c.ProjectID, c.ID), "1", s.cfg.ConnectionTTL); err != nil {
			s.log.WarnwCtx(ctx, "Failed to refresh connection TTL",
				"error", err,
				"connection_id", c.ID,
				"project_id", c.ProjectID,
			)
		}
	}
}

// ping emits a no-op frame on every stream to defeat idle timeouts in
// intermediaries.
func (s *Service) ping(ctx context.Context) {
	for _, c := range s.snapshot() {
		c.stream.Send(PingFrame())
	}
}

// refreshPermissions re-fetches each connection's evaluator and re-checks
// every registration. Revocation is the only close initiated by neither
// the client nor a stream-level event.
func (s *Service) refreshPermissions(ctx context.Context) {
	for _, c := range s.snapshot() {
		perm, err := s.oracle.GetProjectPermission(ctx, c.Actor, c.ProjectID)
		if err != nil {
			s.log.WarnwCtx(ctx, "Failed to refresh permission",
				"error", err,
				"connection_id", c.ID,
				"project_id", c.ProjectID,
			)
			continue
		}

		if err := validateRegistrations(perm.Evaluator, c.Registrations); err != nil {
			metrics.PermissionRevocationsTotal.Inc()
			s.log.InfowCtx(ctx, "Closing connection after permission revocation",
				"connection_id", c.ID,
				"project_id", c.ProjectID,
			)
			c.stream.Send(ErrorFrame("access revoked"))
			s.Disconnect(ctx, c)
			continue
		}

		c.SetPermission(permissions.NewCache(perm.Evaluator))
	}
}

func validateRegistrations(eval permissions.Evaluator, regs []Registration) error {
	for _, reg := range regs {
		if !eval.Can(actionFor(reg.EventType), reg.Subject()) {
			return errors.ErrForbidden.
				WithMessage("registration is not permitted").
				WithDetail("event", string(reg.EventType))
		}
	}
	return nil
}

// Disconnect tears one connection down. It is idempotent: stream error and
// stream close can both trigger it for the same connection.
func (s *Service) Disconnect(ctx context.Context, c *Client) {
	c.cleanupOnce.Do(func() {
		c.stream.Close()

		s.mu.Lock()
		_, present := s.clients[c.ID]
		delete(s.clients, c.ID)
		s.mu.Unlock()

		if present {
			metrics.ActiveConnections.Dec()
		}

		s.removeRegistryEntry(ctx, c)

		s.log.InfowCtx(ctx, "Streaming connection closed",
			"connection_id", c.ID,
			"project_id", c.ProjectID,
		)
	})
}

func (s *Service) removeRegistryEntry(ctx context.Context, c *Client) {
	if err := s.registry.Delete(ctx, connKey(c.ProjectID, c.ID)); err != nil {
		s.log.WarnwCtx(ctx, "Failed to remove connection key",
			"error", err,
			"connection_id", c.ID,
		)
	}
	if err := s.registry.ListRemove(ctx, listKey(c.ProjectID), 0, c.ID); err != nil {
		s.log.WarnwCtx(ctx, "Failed to remove connection from project list",
			"error", err,
			"connection_id", c.ID,
		)
	}
}

// Close shuts the whole service down: stops the loops, closes every stream
// and removes every registry entry.
func (s *Service) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()

	if s.unsubscribe != nil {
		s.unsubscribe()
	}

	for _, c := range s.snapshot() {
		s.Disconnect(ctx, c)
	}
}

func (s *Service) snapshot() []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	return out
}

// ActiveCount reports the in-process connection count.
func (s *Service) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func connKey(projectID, connID string) string {
	return constants.RegistryKeyPrefixConn + projectID + ":" + connID
}

func listKey(projectID string) string {
	return constants.RegistryKeyPrefixConnList + projectID
}
