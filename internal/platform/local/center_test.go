package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localnotify/internal/content"
	"localnotify/internal/delivery"
	"localnotify/internal/eventbus"
	"localnotify/internal/platform"
	"localnotify/internal/recurrence"
	"localnotify/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu  sync.Mutex
	got []delivery.Delivery
}

func (r *recorder) Deliver(_ context.Context, d delivery.Delivery) error {
	r.mu.Lock()
	r.got = append(r.got, d)
	r.mu.Unlock()
	return nil
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, d := range r.got {
		out = append(out, d.Request.Identifier)
	}
	return out
}

var start = time.Date(2026, 3, 18, 14, 0, 0, 0, time.UTC)

func newCenter(t *testing.T, opts ...Option) (*Center, *fakeClock, *recorder) {
	t.Helper()
	clk := &fakeClock{t: start}
	rec := &recorder{}
	base := []Option{WithClock(clk.Now), WithSink(rec)}
	return New(storage.NewMemory(), append(base, opts...)...), clk, rec
}

func request(id string, tr platform.Trigger) platform.Request {
	return platform.Request{Identifier: id, Content: content.Build("t-"+id, content.Fields{Body: "b"}), Trigger: tr}
}

func TestAddRejectsInvalidTriggers(t *testing.T) {
	t.Parallel()
	past, _ := recurrence.Translate(start.Add(-time.Hour), recurrence.None)

	cases := []struct {
		name string
		req  platform.Request
	}{
		{"empty id", request(" ", platform.IntervalTrigger(time.Minute, false))},
		{"zero interval", request("a", platform.IntervalTrigger(0, false))},
		{"negative interval", request("a", platform.IntervalTrigger(-time.Second, false))},
		{"short repeating interval", request("a", platform.IntervalTrigger(59*time.Second, true))},
		{"empty pattern", request("a", platform.CalendarTrigger(recurrence.Pattern{}, false))},
		{"nil pattern", request("a", platform.Trigger{Kind: platform.TriggerCalendar})},
		{"past date", request("a", platform.CalendarTrigger(past, false))},
		{"zero radius", request("a", platform.RegionTrigger(platform.Region{Identifier: "r", NotifyOnEntry: true}, false))},
		{"bad latitude", request("a", platform.RegionTrigger(platform.Region{Identifier: "r", Latitude: 91, Radius: 10}, false))},
		{"nil region", request("a", platform.Trigger{Kind: platform.TriggerRegion})},
		{"unknown kind", request("a", platform.Trigger{Kind: "push"})},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c, _, _ := newCenter(t)
			err := c.Add(context.Background(), tc.req)
			assert.ErrorIs(t, err, ErrInvalidTrigger)
			n, _ := c.PendingCount(context.Background())
			assert.Zero(t, n)
		})
	}
}

func TestAddAcceptsShortOneShotInterval(t *testing.T) {
	t.Parallel()
	c, _, _ := newCenter(t)
	require.NoError(t, c.Add(context.Background(), request("a", platform.IntervalTrigger(5*time.Second, false))))
}

func TestAddReplacesDuplicateIdentifier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, _ := newCenter(t)

	require.NoError(t, c.Add(ctx, request("a", platform.IntervalTrigger(time.Hour, false))))
	require.NoError(t, c.Add(ctx, request("a", platform.IntervalTrigger(2*time.Hour, true))))

	pending, err := c.PendingRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2*time.Hour, pending[0].Trigger.Every)
	assert.True(t, pending[0].Trigger.Repeats)
}

func TestTickFiresIntervalRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	c, clk, rec := newCenter(t, WithBus(bus))

	require.NoError(t, c.Add(ctx, request("repeat", platform.IntervalTrigger(2*time.Minute, true))))
	require.NoError(t, c.Add(ctx, request("once", platform.IntervalTrigger(time.Minute, false))))

	n, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(time.Minute)
	n, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"once"}, rec.ids())

	clk.Advance(time.Minute)
	n, _ = c.Tick(ctx)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"once", "repeat"}, rec.ids())

	recs, err := c.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "repeat", recs[0].ID())
	assert.Equal(t, 1, recs[0].Fired)
	assert.True(t, recs[0].NextFire.Equal(start.Add(4*time.Minute)))

	select {
	case e := <-events:
		assert.Equal(t, eventbus.NotificationFired, e.Type)
	case <-time.After(time.Second):
		t.Fatal("no fired event")
	}
}

func TestTickFiresCalendarRequests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, clk, rec := newCenter(t)

	p, repeats := recurrence.Translate(start.Add(30*time.Minute), recurrence.Hourly)
	require.True(t, repeats)
	require.NoError(t, c.Add(ctx, request("hourly", platform.CalendarTrigger(p, repeats))))

	clk.Advance(29 * time.Minute)
	n, _ := c.Tick(ctx)
	assert.Zero(t, n)

	clk.Advance(time.Minute)
	n, _ = c.Tick(ctx)
	assert.Equal(t, 1, n)
	require.Len(t, rec.got, 1)
	assert.Equal(t, delivery.ReasonCalendar, rec.got[0].Reason)

	recs, _ := c.Pending(ctx)
	require.Len(t, recs, 1)
	assert.True(t, recs[0].NextFire.Equal(start.Add(90*time.Minute)))
}

func TestTickDropsOneShotCalendar(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, clk, rec := newCenter(t)

	p, repeats := recurrence.Translate(start.Add(time.Hour), recurrence.None)
	require.False(t, repeats)
	require.NoError(t, c.Add(ctx, request("once", platform.CalendarTrigger(p, repeats))))

	clk.Advance(2 * time.Hour)
	n, _ := c.Tick(ctx)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"once"}, rec.ids())
	count, _ := c.PendingCount(ctx)
	assert.Zero(t, count)
}

func TestRemoveIgnoresUnknownIdentifiers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, _ := newCenter(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, c.Add(ctx, request(id, platform.IntervalTrigger(time.Hour, false))))
	}

	require.NoError(t, c.Remove(ctx, []string{"a", "zzz", ""}))
	pending, _ := c.PendingRequests(ctx)
	require.Len(t, pending, 2)

	require.NoError(t, c.RemoveAll(ctx))
	n, _ := c.PendingCount(ctx)
	assert.Zero(t, n)
}

func TestRequestAuthorizationPromptsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	prompts := 0
	c, _, _ := newCenter(t, WithPrompter(func(context.Context, platform.AuthorizationOptions) (bool, error) {
		prompts++
		return false, nil
	}))

	st, err := c.AuthorizationState(ctx)
	require.NoError(t, err)
	assert.Equal(t, platform.PermissionUndetermined, st)

	ok, err := c.RequestAuthorization(ctx, platform.DefaultAuthorizationOptions)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, _ = c.RequestAuthorization(ctx, platform.DefaultAuthorizationOptions)
	assert.False(t, ok)
	assert.Equal(t, 1, prompts)

	st, _ = c.AuthorizationState(ctx)
	assert.Equal(t, platform.PermissionDenied, st)

	require.NoError(t, c.SetPermission(ctx, platform.PermissionProvisional))
	ok, _ = c.RequestAuthorization(ctx, platform.DefaultAuthorizationOptions)
	assert.True(t, ok)
}

func TestRequestAuthorizationPromptError(t *testing.T) {
	t.Parallel()
	boom := errors.New("prompt crashed")
	c, _, _ := newCenter(t, WithPrompter(func(context.Context, platform.AuthorizationOptions) (bool, error) {
		return false, boom
	}))
	_, err := c.RequestAuthorization(context.Background(), platform.OptionAlert)
	assert.ErrorIs(t, err, boom)
	st, _ := c.AuthorizationState(context.Background())
	assert.Equal(t, platform.PermissionUndetermined, st)
}

func TestInitialPermission(t *testing.T) {
	t.Parallel()
	c, _, _ := newCenter(t, WithInitialPermission(platform.PermissionAuthorized), WithPrompter(nil))
	st, err := c.AuthorizationState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, platform.PermissionAuthorized, st)
}

func TestReportLocationFiresOnCrossings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, rec := newCenter(t)

	home := platform.Region{Identifier: "home", Latitude: 52.52, Longitude: 13.405, Radius: 200, NotifyOnEntry: true, NotifyOnExit: true}
	require.NoError(t, c.Add(ctx, request("home", platform.RegionTrigger(home, true))))
	office := platform.Region{Identifier: "office", Latitude: 48.8566, Longitude: 2.3522, Radius: 200, NotifyOnEntry: true}
	require.NoError(t, c.Add(ctx, request("office", platform.RegionTrigger(office, false))))

	n, err := c.ReportLocation(ctx, 52.5201, 13.4051)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, _ = c.ReportLocation(ctx, 52.5202, 13.4052)
	assert.Zero(t, n)

	n, _ = c.ReportLocation(ctx, 48.8566, 2.3522)
	assert.Equal(t, 2, n)

	require.Len(t, rec.got, 3)
	assert.Equal(t, delivery.ReasonRegionEntry, rec.got[0].Reason)
	reasons := map[string]delivery.Reason{}
	for _, d := range rec.got[1:] {
		reasons[d.Request.Identifier] = d.Reason
	}
	assert.Equal(t, delivery.ReasonRegionExit, reasons["home"])
	assert.Equal(t, delivery.ReasonRegionEntry, reasons["office"])

	pending, _ := c.PendingRequests(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, "home", pending[0].Identifier)
}

func TestRateLimitedDeliveryRespectsContext(t *testing.T) {
	t.Parallel()
	c, clk, rec := newCenter(t, WithRate(0.001, 1))
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, c.Add(ctx, request(id, platform.IntervalTrigger(time.Minute, false))))
	}
	clk.Advance(time.Minute)

	tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	n, err := c.Tick(tctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, rec.ids(), 1)
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()
	c, _, _ := newCenter(t, WithTick(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestLocationSet(t *testing.T) {
	t.Parallel()
	l := NewLocation(platform.LocationDenied)
	st, err := l.AuthorizationStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, platform.LocationDenied, st)

	l.Set(platform.LocationAuthorizedWhenInUse)
	st, _ = l.AuthorizationStatus(context.Background())
	assert.True(t, st.Allowed())
}

func TestDistance(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0, distance(1, 1, 1, 1), 1e-9)
	// Berlin to Paris is roughly 878 km.
	assert.InDelta(t, 878000, distance(52.52, 13.405, 48.8566, 2.3522), 5000)
}
