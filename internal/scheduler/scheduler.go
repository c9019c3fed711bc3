package scheduler

import (
	"context"
	"fmt"
	"time"

	"localnotify/internal/authgate"
	"localnotify/internal/capacity"
	"localnotify/internal/content"
	"localnotify/internal/eventbus"
	"localnotify/internal/platform"
	"localnotify/internal/recurrence"
	logx "localnotify/pkg/logx"
)

// Gate is the permission check consulted before every schedule and cancel.
type Gate interface {
	CheckPermission(ctx context.Context, cb authgate.Callback)
	Check(ctx context.Context) (authgate.Result, error)
}

// Guard is the capacity check consulted first on every schedule.
type Guard interface {
	PendingCount(ctx context.Context) (int, error)
	HasCapacity(ctx context.Context) (bool, error)
}

// Notification is the caller-supplied part of a request.
type Notification struct {
	Identifier string
	Title      string
	content.Fields
}

// Scheduler is the scheduling facade. It is safe for concurrent use.
type Scheduler struct {
	center   platform.NotificationCenter
	location platform.LocationManager

	gate    Gate
	guard   Guard
	builder *content.Builder

	authOpts    platform.AuthorizationOptions
	cancelGated bool
	log         logx.Logger
	bus         eventbus.Bus
}

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option { return func(s *Scheduler) { s.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(s *Scheduler) { s.bus = bus } }

// WithGate replaces the default single-flight gate over the center.
func WithGate(g Gate) Option { return func(s *Scheduler) { s.gate = g } }

// WithGuard replaces the default capacity guard over the center.
func WithGuard(g Guard) Option { return func(s *Scheduler) { s.guard = g } }

// WithAuthorizationOptions sets what the default gate asks the user for.
func WithAuthorizationOptions(opts platform.AuthorizationOptions) Option {
	return func(s *Scheduler) { s.authOpts = opts }
}

// WithContentDefaults sets the payload that optional fields fall back to.
func WithContentDefaults(p content.Payload) Option {
	return func(s *Scheduler) { s.builder = content.NewBuilder(p) }
}

// WithCancelRequiresPermission controls whether Cancel is gated by the
// permission check. It is gated by default.
func WithCancelRequiresPermission(enabled bool) Option {
	return func(s *Scheduler) { s.cancelGated = enabled }
}

func New(center platform.NotificationCenter, location platform.LocationManager, opts ...Option) *Scheduler {
	s := &Scheduler{
		center:      center,
		location:    location,
		authOpts:    platform.DefaultAuthorizationOptions,
		cancelGated: true,
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	if s.gate == nil {
		s.gate = authgate.New(center,
			authgate.WithOptions(s.authOpts),
			authgate.WithLogger(s.log),
			authgate.WithBus(s.bus),
		)
	}
	if s.guard == nil {
		s.guard = capacity.New(center)
	}
	if s.builder == nil {
		s.builder = content.NewBuilder(content.DefaultPayload())
	}
	s.log = s.log.With(logx.String("comp", "scheduler"))
	return s
}

// ScheduleDate schedules n to fire at the calendar moment of at, repeating
// per unit.
func (s *Scheduler) ScheduleDate(ctx context.Context, at time.Time, unit recurrence.Unit, n Notification) error {
	return s.schedule(ctx, n, false, func() platform.Trigger {
		p, repeats := recurrence.Translate(at, unit)
		return platform.CalendarTrigger(p, repeats)
	})
}

// ScheduleInterval schedules n to fire after every has elapsed.
func (s *Scheduler) ScheduleInterval(ctx context.Context, every time.Duration, repeats bool, n Notification) error {
	return s.schedule(ctx, n, false, func() platform.Trigger {
		return platform.IntervalTrigger(every, repeats)
	})
}

// ScheduleRegion schedules n to fire on entering or leaving region. It needs
// location authorization in addition to notification permission.
func (s *Scheduler) ScheduleRegion(ctx context.Context, region platform.Region, repeats bool, n Notification) error {
	return s.schedule(ctx, n, true, func() platform.Trigger {
		return platform.RegionTrigger(region, repeats)
	})
}

func (s *Scheduler) schedule(ctx context.Context, n Notification, needsLocation bool, trigger func() platform.Trigger) error {
	log := s.log.With(logx.String("id", n.Identifier))

	ok, err := s.guard.HasCapacity(ctx)
	if err != nil {
		return fmt.Errorf("count pending notifications: %w", err)
	}
	if !ok {
		return s.reject(log, n, ErrCapacityExceeded)
	}

	if needsLocation {
		if err := s.checkLocation(ctx); err != nil {
			return s.reject(log, n, err)
		}
	}

	res, err := s.gate.Check(ctx)
	if err != nil {
		return err
	}
	if !res.Allowed {
		return s.reject(log, n, ErrPermissionDenied)
	}

	req := platform.Request{
		Identifier: n.Identifier,
		Content:    s.builder.Build(n.Title, n.Fields),
		Trigger:    trigger(),
	}
	if err := s.center.Add(ctx, req); err != nil {
		log.Warn("enqueue failed", logx.String("trigger", req.Trigger.String()), logx.Err(err))
		eventbus.PublishTo(s.bus, eventbus.NotificationRejected, n.Identifier)
		return err
	}

	log.Info("notification scheduled", logx.String("trigger", req.Trigger.String()))
	eventbus.PublishTo(s.bus, eventbus.NotificationScheduled, req)
	return nil
}

func (s *Scheduler) checkLocation(ctx context.Context) error {
	if s.location == nil {
		return ErrLocationAuthorizationRequired
	}
	st, err := s.location.AuthorizationStatus(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLocationAuthorizationRequired, err)
	}
	if !st.Allowed() {
		return ErrLocationAuthorizationRequired
	}
	return nil
}

func (s *Scheduler) reject(log logx.Logger, n Notification, err error) error {
	log.Info("notification rejected", logx.Err(err))
	eventbus.PublishTo(s.bus, eventbus.NotificationRejected, n.Identifier)
	return err
}

// Cancel removes pending requests. A nil identifiers slice removes every
// pending request; otherwise only the named ones are removed and unknown
// identifiers are ignored.
func (s *Scheduler) Cancel(ctx context.Context, identifiers []string) error {
	if s.cancelGated {
		res, err := s.gate.Check(ctx)
		if err != nil {
			return err
		}
		if !res.Allowed {
			return ErrPermissionDenied
		}
	}

	var err error
	if identifiers == nil {
		err = s.center.RemoveAll(ctx)
	} else {
		err = s.center.Remove(ctx, identifiers)
	}
	if err != nil {
		return err
	}

	s.log.Info("notifications cancelled", logx.Bool("all", identifiers == nil), logx.Strings("ids", identifiers))
	eventbus.PublishTo(s.bus, eventbus.NotificationCancelled, identifiers)
	return nil
}

// CheckPermission queues cb on the permission gate; see authgate.Gate.
func (s *Scheduler) CheckPermission(ctx context.Context, cb authgate.Callback) {
	s.gate.CheckPermission(ctx, cb)
}

// Permission blocks until the permission check settles.
func (s *Scheduler) Permission(ctx context.Context) (authgate.Result, error) {
	return s.gate.Check(ctx)
}

// PendingCount returns how many requests the center holds.
func (s *Scheduler) PendingCount(ctx context.Context) (int, error) {
	return s.guard.PendingCount(ctx)
}

// Pending lists the center's pending requests.
func (s *Scheduler) Pending(ctx context.Context) ([]platform.Request, error) {
	return s.center.PendingRequests(ctx)
}

// Async runs op on a new goroutine and hands its error to done, for callers
// that want completion-callback style.
func Async(done func(error), op func() error) {
	go func() {
		err := op()
		if done != nil {
			done(err)
		}
	}()
}
