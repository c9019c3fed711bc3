// Package local is an in-process notification center and location manager.
//
// Pending requests live in a storage.Store. Run fires calendar and interval
// requests when they fall due; ReportLocation fires region requests on
// entry or exit. Fired notifications go to a delivery.Sink.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"localnotify/internal/delivery"
	"localnotify/internal/eventbus"
	"localnotify/internal/platform"
	"localnotify/internal/storage"
	logx "localnotify/pkg/logx"
)

const (
	permissionKey = "permission"
	defaultTick   = time.Second
)

// Prompter answers a permission request on behalf of the user.
type Prompter func(ctx context.Context, opts platform.AuthorizationOptions) (bool, error)

// Answer returns a Prompter that always gives the same answer.
func Answer(granted bool) Prompter {
	return func(context.Context, platform.AuthorizationOptions) (bool, error) { return granted, nil }
}

type Option func(*Center)

func WithLogger(log logx.Logger) Option { return func(c *Center) { c.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(c *Center) { c.bus = bus } }

func WithPrompter(p Prompter) Option { return func(c *Center) { c.prompt = p } }

// WithInitialPermission is the state reported before anything is stored.
func WithInitialPermission(s platform.PermissionState) Option {
	return func(c *Center) { c.initial = s }
}

func WithSink(s delivery.Sink) Option { return func(c *Center) { c.sink = s } }

// WithRate limits deliveries. A zero limit disables limiting.
func WithRate(r rate.Limit, burst int) Option {
	return func(c *Center) {
		if r <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(r, burst)
	}
}

func WithClock(now func() time.Time) Option { return func(c *Center) { c.now = now } }

func WithTick(d time.Duration) Option { return func(c *Center) { c.tick = d } }

// Center implements platform.NotificationCenter.
type Center struct {
	store   storage.Store
	log     logx.Logger
	bus     eventbus.Bus
	sink    delivery.Sink
	limiter *rate.Limiter
	prompt  Prompter
	now     func() time.Time
	tick    time.Duration
	initial platform.PermissionState

	// mu serializes read-modify-write cycles on the store.
	mu sync.Mutex
}

var _ platform.NotificationCenter = (*Center)(nil)

func New(store storage.Store, opts ...Option) *Center {
	c := &Center{
		store:   store,
		prompt:  Answer(true),
		now:     time.Now,
		tick:    defaultTick,
		initial: platform.PermissionUndetermined,
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.log = c.log.With(logx.String("comp", "center"))
	if c.sink == nil {
		c.sink = delivery.NewLogSink(c.log)
	}
	if c.tick <= 0 {
		c.tick = defaultTick
	}
	if c.prompt == nil {
		c.prompt = Answer(true)
	}
	return c
}

func (c *Center) AuthorizationState(ctx context.Context) (platform.PermissionState, error) {
	raw, ok, err := c.store.GetState(ctx, permissionKey)
	if err != nil {
		return platform.PermissionUndetermined, fmt.Errorf("load permission: %w", err)
	}
	if !ok {
		return c.initial, nil
	}
	return platform.ParsePermissionState(raw)
}

// RequestAuthorization prompts only while the state is undetermined; after
// that it reports the stored answer.
func (c *Center) RequestAuthorization(ctx context.Context, opts platform.AuthorizationOptions) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.AuthorizationState(ctx)
	if err != nil {
		return false, err
	}
	if st != platform.PermissionUndetermined {
		return granted(st), nil
	}
	ok, err := c.prompt(ctx, opts)
	if err != nil {
		return false, err
	}
	st = platform.PermissionDenied
	if ok {
		st = platform.PermissionAuthorized
	}
	if err := c.store.PutState(ctx, permissionKey, st.String()); err != nil {
		return false, fmt.Errorf("store permission: %w", err)
	}
	c.log.Info("permission answered", logx.String("state", st.String()))
	return ok, nil
}

// SetPermission overrides the stored answer, as a user would in settings.
func (c *Center) SetPermission(ctx context.Context, st platform.PermissionState) error {
	return c.store.PutState(ctx, permissionKey, st.String())
}

func granted(st platform.PermissionState) bool {
	return st == platform.PermissionAuthorized || st == platform.PermissionProvisional
}

func (c *Center) PendingRequests(ctx context.Context) ([]platform.Request, error) {
	recs, err := c.store.ListRequests(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]platform.Request, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Request)
	}
	return out, nil
}

// Pending returns the stored records, bookkeeping included.
func (c *Center) Pending(ctx context.Context) ([]storage.Record, error) {
	return c.store.ListRequests(ctx)
}

func (c *Center) PendingCount(ctx context.Context) (int, error) {
	return c.store.CountRequests(ctx)
}

// Add validates req and stores it, replacing any pending request with the
// same identifier.
func (c *Center) Add(ctx context.Context, req platform.Request) error {
	now := c.now()
	next, err := validate(req, now)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec := storage.Record{Request: req, CreatedAt: now, NextFire: next}
	if err := c.store.PutRequest(ctx, rec); err != nil {
		return fmt.Errorf("store request: %w", err)
	}
	c.log.Debug("request added",
		logx.String("id", req.Identifier),
		logx.String("trigger", req.Trigger.String()),
		logx.Time("next_fire", next),
	)
	return nil
}

func (c *Center) Remove(ctx context.Context, identifiers []string) error {
	ids := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.store.DeleteRequests(ctx, ids)
	if err != nil {
		return err
	}
	c.log.Debug("requests removed", logx.Strings("ids", ids), logx.Int("removed", n))
	return nil
}

func (c *Center) RemoveAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.store.DeleteAll(ctx)
	if err != nil {
		return err
	}
	c.log.Debug("all requests removed", logx.Int("removed", n))
	return nil
}

// Run fires due requests every tick until ctx is done.
func (c *Center) Run(ctx context.Context) error {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	c.log.Info("center running", logx.Duration("tick", c.tick))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := c.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Warn("tick failed", logx.Err(err))
			}
		}
	}
}

type firing struct {
	rec    storage.Record
	reason delivery.Reason
}

// Tick fires every calendar or interval request due at the current time
// and reports how many fired.
func (c *Center) Tick(ctx context.Context) (int, error) {
	now := c.now()

	c.mu.Lock()
	recs, err := c.store.ListRequests(ctx)
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	var due []firing
	var drop []string
	for _, rec := range recs {
		if rec.NextFire.IsZero() || rec.NextFire.After(now) {
			continue
		}
		reason := delivery.ReasonInterval
		if rec.Request.Trigger.Kind == platform.TriggerCalendar {
			reason = delivery.ReasonCalendar
		}
		due = append(due, firing{rec: rec, reason: reason})

		rec.Fired++
		next, ok := reschedule(rec, now)
		if !ok {
			drop = append(drop, rec.ID())
			if rec.Request.Trigger.Repeats {
				eventbus.PublishTo(c.bus, eventbus.NotificationExpired, rec.Request)
			}
			continue
		}
		rec.NextFire = next
		if err := c.store.PutRequest(ctx, rec); err != nil {
			c.log.Warn("reschedule failed", logx.String("id", rec.ID()), logx.Err(err))
		}
	}
	if len(drop) > 0 {
		if _, err := c.store.DeleteRequests(ctx, drop); err != nil {
			c.log.Warn("drop fired requests failed", logx.Strings("ids", drop), logx.Err(err))
		}
	}
	c.mu.Unlock()

	return c.deliver(ctx, due, now)
}

// reschedule computes the next fire time of a request that just fired.
// ok is false when the request is done.
func reschedule(rec storage.Record, now time.Time) (time.Time, bool) {
	tr := rec.Request.Trigger
	if !tr.Repeats {
		return time.Time{}, false
	}
	switch tr.Kind {
	case platform.TriggerInterval:
		next := rec.NextFire.Add(tr.Every)
		if !next.After(now) {
			next = now.Add(tr.Every)
		}
		return next, true
	case platform.TriggerCalendar:
		if tr.Pattern == nil {
			return time.Time{}, false
		}
		return tr.Pattern.Next(now)
	}
	return time.Time{}, false
}

// ReportLocation feeds a new device position and fires region requests
// whose boundary was crossed in a direction they listen for.
func (c *Center) ReportLocation(ctx context.Context, lat, lon float64) (int, error) {
	now := c.now()

	c.mu.Lock()
	recs, err := c.store.ListRequests(ctx)
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	var due []firing
	var drop []string
	for _, rec := range recs {
		tr := rec.Request.Trigger
		if tr.Kind != platform.TriggerRegion || tr.Region == nil {
			continue
		}
		r := tr.Region
		inside := distance(lat, lon, r.Latitude, r.Longitude) <= r.Radius
		if inside == rec.Inside {
			continue
		}
		rec.Inside = inside

		var reason delivery.Reason
		switch {
		case inside && r.NotifyOnEntry:
			reason = delivery.ReasonRegionEntry
		case !inside && r.NotifyOnExit:
			reason = delivery.ReasonRegionExit
		}
		if reason != "" {
			rec.Fired++
			due = append(due, firing{rec: rec, reason: reason})
			if !tr.Repeats {
				drop = append(drop, rec.ID())
				continue
			}
		}
		if err := c.store.PutRequest(ctx, rec); err != nil {
			c.log.Warn("region update failed", logx.String("id", rec.ID()), logx.Err(err))
		}
	}
	if len(drop) > 0 {
		if _, err := c.store.DeleteRequests(ctx, drop); err != nil {
			c.log.Warn("drop fired requests failed", logx.Strings("ids", drop), logx.Err(err))
		}
	}
	c.mu.Unlock()

	return c.deliver(ctx, due, now)
}

func (c *Center) deliver(ctx context.Context, due []firing, now time.Time) (int, error) {
	n := 0
	for _, f := range due {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return n, err
			}
		}
		d := delivery.Delivery{Request: f.rec.Request, FiredAt: now, Reason: f.reason}
		if err := c.sink.Deliver(ctx, d); err != nil {
			c.log.Warn("delivery failed", logx.String("id", f.rec.ID()), logx.Err(err))
			continue
		}
		n++
		eventbus.PublishTo(c.bus, eventbus.NotificationFired, d)
	}
	return n, nil
}
