package stream

import (
	"sync"

	"keyhive/internal/permissions"
)

// Client is one live streaming connection. The service's in-memory map is
// the single source of truth for liveness within a process; the
// distributed registry only feeds admission control.
type Client struct {
	ID            string
	ProjectID     string
	Actor         permissions.Actor
	Registrations []Registration

	stream *Stream

	permMu sync.RWMutex
	perm   permissions.Cache

	cleanupOnce sync.Once
}

func newClient(id string, req SubscribeRequest, perm permissions.Cache, buffer int) *Client {
	return &Client{
		ID:            id,
		ProjectID:     req.ProjectID,
		Actor:         req.Actor,
		Registrations: req.Registrations,
		stream:        NewStream(buffer),
		perm:          perm,
	}
}

func (c *Client) Stream() *Stream {
	return c.stream
}

// Permission returns the current cached evaluator snapshot.
func (c *Client) Permission() permissions.Cache {
	c.permMu.RLock()
	defer c.permMu.RUnlock()
	return c.perm
}

// SetPermission swaps in a fresh snapshot. The cache is replaced, never
// mutated, so readers holding the previous snapshot stay consistent.
func (c *Client) SetPermission(perm permissions.Cache) {
	c.permMu.Lock()
	defer c.permMu.Unlock()
	c.perm = perm
}
