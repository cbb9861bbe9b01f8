package apiclient

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"ambrosia-pos-gateway/internal/domain/session"
)

// RefreshFunc exchanges the refresh token of s for a new session.
type RefreshFunc func(ctx context.Context, s session.Session) (session.Session, error)

// RefreshCoordinator runs at most one refresh per session key at a time.
// Every caller waiting on a key observes the same outcome.
type RefreshCoordinator struct {
	group   singleflight.Group
	timeout time.Duration
	runs    atomic.Int64
}

func NewRefreshCoordinator(timeout time.Duration) *RefreshCoordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RefreshCoordinator{timeout: timeout}
}

// Do runs fn for s unless a refresh for s.Key is already in flight. The
// refresh is detached from ctx cancellation so one caller giving up does not
// fail the others, but ctx still bounds how long this caller waits.
func (c *RefreshCoordinator) Do(ctx context.Context, s session.Session, fn RefreshFunc) (session.Session, error) {
	ch := c.group.DoChan(s.Key, func() (interface{}, error) {
		c.runs.Add(1)
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return fn(rctx, s)
	})

	select {
	case <-ctx.Done():
		return session.Session{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return session.Session{}, r.Err
		}
		return r.Val.(session.Session), nil
	}
}

// Runs counts refreshes actually executed.
func (c *RefreshCoordinator) Runs() int64 {
	return c.runs.Load()
}
