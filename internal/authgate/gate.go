// Package authgate coalesces notification permission checks.
//
// Every caller that arrives while a check is in flight is queued and served
// by that same check: the center is queried (and, if undetermined, asked for
// permission) once, and all queued callbacks receive the same Result in
// arrival order.
package authgate

import (
	"context"
	"sync"
	"sync/atomic"

	"localnotify/internal/eventbus"
	"localnotify/internal/platform"
	logx "localnotify/pkg/logx"
)

// Authorizer is the part of the notification center the gate talks to.
type Authorizer interface {
	AuthorizationState(ctx context.Context) (platform.PermissionState, error)
	RequestAuthorization(ctx context.Context, opts platform.AuthorizationOptions) (bool, error)
}

// Result is the settled outcome of one check.
type Result struct {
	Allowed bool
	Status  platform.PermissionState
}

var denied = Result{Allowed: false, Status: platform.PermissionDenied}

type Callback func(Result)

type State int

const (
	Idle State = iota
	Checking
)

func (s State) String() string {
	if s == Checking {
		return "checking"
	}
	return "idle"
}

type Option func(*Gate)

func WithLogger(log logx.Logger) Option { return func(g *Gate) { g.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(g *Gate) { g.bus = bus } }

// WithOptions sets the capabilities requested when permission is undetermined.
func WithOptions(opts platform.AuthorizationOptions) Option {
	return func(g *Gate) { g.opts = opts }
}

// Gate is a single-flight permission checker. It is safe for concurrent use.
type Gate struct {
	center Authorizer
	opts   platform.AuthorizationOptions
	log    logx.Logger
	bus    eventbus.Bus

	// mu guards pending. A non-empty queue means a check is in flight.
	mu      sync.Mutex
	pending []Callback

	checks atomic.Uint64
}

func New(center Authorizer, opts ...Option) *Gate {
	g := &Gate{center: center, opts: platform.DefaultAuthorizationOptions}
	for _, o := range opts {
		o(g)
	}
	if g.log.IsZero() {
		g.log = logx.Nop()
	}
	g.log = g.log.With(logx.String("comp", "authgate"))
	return g
}

// CheckPermission queues cb and returns immediately. The first caller on an
// idle gate starts the check; cb runs on the goroutine that resolves it.
//
// The check is detached from ctx cancellation: it serves every queued
// caller, not only the one that started it.
func (g *Gate) CheckPermission(ctx context.Context, cb Callback) {
	if ctx == nil {
		ctx = context.Background()
	}
	g.mu.Lock()
	g.pending = append(g.pending, cb)
	trigger := len(g.pending) == 1
	g.mu.Unlock()

	if !trigger {
		return
	}
	go g.run(context.WithoutCancel(ctx))
}

// Check blocks until the in-flight (or a new) check resolves. ctx only
// bounds how long this caller waits.
func (g *Gate) Check(ctx context.Context) (Result, error) {
	ch := make(chan Result, 1)
	g.CheckPermission(ctx, func(r Result) { ch <- r })
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return denied, ctx.Err()
	}
}

// State reports whether a check is currently in flight.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) == 0 {
		return Idle
	}
	return Checking
}

// Waiting returns the number of callbacks queued on the in-flight check.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Checks returns how many checks reached the center.
func (g *Gate) Checks() uint64 { return g.checks.Load() }

func (g *Gate) run(ctx context.Context) {
	g.checks.Add(1)
	res := g.determine(ctx)

	g.mu.Lock()
	handlers := g.pending
	g.pending = nil
	g.mu.Unlock()

	g.log.Debug("permission resolved",
		logx.Bool("allowed", res.Allowed),
		logx.String("status", res.Status.String()),
		logx.Int("waiters", len(handlers)),
	)
	eventbus.PublishTo(g.bus, eventbus.PermissionResolved, res)

	for _, h := range handlers {
		if h != nil {
			h(res)
		}
	}
}

func (g *Gate) determine(ctx context.Context) Result {
	st, err := g.center.AuthorizationState(ctx)
	if err != nil {
		g.log.Warn("permission state query failed", logx.Err(err))
		return denied
	}
	if st != platform.PermissionUndetermined {
		return settle(st)
	}

	granted, err := g.center.RequestAuthorization(ctx, g.opts)
	if err != nil {
		g.log.Warn("permission request failed", logx.Err(err))
		return denied
	}
	if !granted {
		return denied
	}

	st, err = g.center.AuthorizationState(ctx)
	if err != nil {
		g.log.Warn("permission state query failed", logx.Err(err))
		return denied
	}
	return settle(st)
}

func settle(st platform.PermissionState) Result {
	switch st {
	case platform.PermissionAuthorized, platform.PermissionProvisional:
		return Result{Allowed: true, Status: st}
	default:
		return denied
	}
}
