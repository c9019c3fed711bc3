// Package capacity enforces the ceiling on outstanding scheduled
// notifications.
package capacity

import (
	"context"

	"golang.org/x/sync/singleflight"
)

// MaxPending is the most requests the platform keeps pending at once.
const MaxPending = 64

// Counter reports how many requests are pending.
type Counter interface {
	PendingCount(ctx context.Context) (int, error)
}

// Guard is read-only; it never mutates the center.
type Guard struct {
	counter Counter
	limit   int
	group   singleflight.Group
}

func New(counter Counter) *Guard {
	return &Guard{counter: counter, limit: MaxPending}
}

func (g *Guard) Limit() int { return g.limit }

// PendingCount blocks until the center answers or ctx is done. Concurrent
// callers share one query, which outlives any single caller's ctx.
func (g *Guard) PendingCount(ctx context.Context) (int, error) {
	ch := g.group.DoChan("pending", func() (any, error) {
		return g.counter.PendingCount(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return 0, r.Err
		}
		return r.Val.(int), nil
	}
}

// HasCapacity reports whether one more request fits under the ceiling.
func (g *Guard) HasCapacity(ctx context.Context) (bool, error) {
	n, err := g.PendingCount(ctx)
	if err != nil {
		return false, err
	}
	return n < g.limit, nil
}
