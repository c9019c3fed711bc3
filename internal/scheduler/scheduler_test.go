package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localnotify/internal/authgate"
	"localnotify/internal/capacity"
	"localnotify/internal/content"
	"localnotify/internal/eventbus"
	"localnotify/internal/platform"
	"localnotify/internal/recurrence"
)

type fakeCenter struct {
	mu       sync.Mutex
	state    platform.PermissionState
	grant    bool
	pending  []platform.Request
	count    int // overrides len(pending) when > 0
	addErr   error
	countErr error

	requests  atomic.Int32
	removes   atomic.Int32
	removeAll atomic.Int32
}

func (f *fakeCenter) AuthorizationState(context.Context) (platform.PermissionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, nil
}

func (f *fakeCenter) RequestAuthorization(context.Context, platform.AuthorizationOptions) (bool, error) {
	f.requests.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.grant {
		f.state = platform.PermissionAuthorized
	} else {
		f.state = platform.PermissionDenied
	}
	return f.grant, nil
}

func (f *fakeCenter) PendingRequests(context.Context) ([]platform.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.Request(nil), f.pending...), nil
}

func (f *fakeCenter) PendingCount(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.count > 0 {
		return f.count, nil
	}
	return len(f.pending), nil
}

func (f *fakeCenter) Add(_ context.Context, req platform.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.pending = append(f.pending, req)
	return nil
}

func (f *fakeCenter) Remove(_ context.Context, ids []string) error {
	f.removes.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.pending[:0]
	for _, r := range f.pending {
		if !drop[r.Identifier] {
			kept = append(kept, r)
		}
	}
	f.pending = kept
	return nil
}

func (f *fakeCenter) RemoveAll(context.Context) error {
	f.removeAll.Add(1)
	f.mu.Lock()
	f.pending = nil
	f.mu.Unlock()
	return nil
}

type fakeLocation struct {
	status platform.LocationAuthorization
	err    error
}

func (l fakeLocation) AuthorizationStatus(context.Context) (platform.LocationAuthorization, error) {
	return l.status, l.err
}

// countingGate wraps a real gate and counts checks.
type countingGate struct {
	*authgate.Gate
	calls atomic.Int32
}

func (g *countingGate) Check(ctx context.Context) (authgate.Result, error) {
	g.calls.Add(1)
	return g.Gate.Check(ctx)
}

func newFixture(t *testing.T, center *fakeCenter, loc platform.LocationManager, opts ...Option) (*Scheduler, *countingGate) {
	t.Helper()
	g := &countingGate{Gate: authgate.New(center)}
	return New(center, loc, append([]Option{WithGate(g)}, opts...)...), g
}

func note(id string) Notification {
	return Notification{Identifier: id, Title: "Title " + id, Fields: content.Fields{Body: "body"}}
}

var home = platform.Region{Identifier: "home", Latitude: 1, Longitude: 2, Radius: 100, NotifyOnEntry: true}

func TestScheduleIntervalEnqueues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	center := &fakeCenter{state: platform.PermissionAuthorized}
	s, _ := newFixture(t, center, nil)

	require.NoError(t, s.ScheduleInterval(ctx, 90*time.Second, true, note("a")))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].Identifier)
	assert.Equal(t, "Title a", pending[0].Content.Title)
	assert.Equal(t, platform.TriggerInterval, pending[0].Trigger.Kind)
	assert.Equal(t, 90*time.Second, pending[0].Trigger.Every)
	assert.True(t, pending[0].Trigger.Repeats)
}

func TestScheduleAtCapacityNeverConsultsGate(t *testing.T) {
	t.Parallel()
	center := &fakeCenter{state: platform.PermissionAuthorized, count: capacity.MaxPending}
	s, gate := newFixture(t, center, fakeLocation{status: platform.LocationAuthorizedAlways})
	ctx := context.Background()

	err := s.ScheduleInterval(ctx, time.Hour, false, note("a"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	err = s.ScheduleDate(ctx, time.Now().Add(time.Hour), recurrence.Daily, note("b"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	err = s.ScheduleRegion(ctx, home, false, note("c"))
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	assert.Zero(t, gate.calls.Load())
	assert.Zero(t, gate.Checks())
}

func TestScheduleJustBelowCapacity(t *testing.T) {
	t.Parallel()
	center := &fakeCenter{state: platform.PermissionAuthorized, count: capacity.MaxPending - 1}
	s, _ := newFixture(t, center, nil)
	assert.NoError(t, s.ScheduleInterval(context.Background(), time.Hour, false, note("a")))
}

func TestScheduleCountErrorIsWrapped(t *testing.T) {
	t.Parallel()
	boom := errors.New("count failed")
	center := &fakeCenter{state: platform.PermissionAuthorized, countErr: boom}
	s, gate := newFixture(t, center, nil)
	err := s.ScheduleInterval(context.Background(), time.Hour, false, note("a"))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, gate.calls.Load())
}

func TestScheduleRegionNeedsLocation(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		loc  platform.LocationManager
		want error
	}{
		{"no manager", nil, ErrLocationAuthorizationRequired},
		{"denied", fakeLocation{status: platform.LocationDenied}, ErrLocationAuthorizationRequired},
		{"restricted", fakeLocation{status: platform.LocationRestricted}, ErrLocationAuthorizationRequired},
		{"not determined", fakeLocation{status: platform.LocationNotDetermined}, ErrLocationAuthorizationRequired},
		{"query error", fakeLocation{err: errors.New("gps off")}, ErrLocationAuthorizationRequired},
		{"always", fakeLocation{status: platform.LocationAuthorizedAlways}, nil},
		{"when in use", fakeLocation{status: platform.LocationAuthorizedWhenInUse}, nil},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			center := &fakeCenter{state: platform.PermissionAuthorized}
			s, gate := newFixture(t, center, tc.loc)
			err := s.ScheduleRegion(context.Background(), home, true, note("r"))
			if tc.want == nil {
				require.NoError(t, err)
				assert.Equal(t, int32(1), gate.calls.Load())
				return
			}
			assert.ErrorIs(t, err, tc.want)
			assert.Zero(t, gate.calls.Load())
			n, _ := s.PendingCount(context.Background())
			assert.Zero(t, n)
		})
	}
}

func TestSchedulePermissionDenied(t *testing.T) {
	t.Parallel()
	center := &fakeCenter{state: platform.PermissionUndetermined, grant: false}
	s, _ := newFixture(t, center, nil)

	err := s.ScheduleInterval(context.Background(), time.Hour, false, note("a"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, int32(1), center.requests.Load())
	n, _ := s.PendingCount(context.Background())
	assert.Zero(t, n)
}

func TestScheduleEnqueueErrorPassesThrough(t *testing.T) {
	t.Parallel()
	boom := errors.New("platform says no")
	center := &fakeCenter{state: platform.PermissionAuthorized, addErr: boom}
	s, _ := newFixture(t, center, nil)

	err := s.ScheduleInterval(context.Background(), time.Hour, false, note("a"))
	assert.Same(t, boom, err)
}

func TestScheduleDateNoneRoundTrip(t *testing.T) {
	t.Parallel()
	center := &fakeCenter{state: platform.PermissionAuthorized}
	s, _ := newFixture(t, center, nil)
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	at := time.Date(2027, 7, 4, 18, 30, 15, 0, loc)

	require.NoError(t, s.ScheduleDate(context.Background(), at, recurrence.None, note("once")))

	pending, _ := s.Pending(context.Background())
	require.Len(t, pending, 1)
	tr := pending[0].Trigger
	require.NotNil(t, tr.Pattern)
	assert.False(t, tr.Repeats)
	next, ok := tr.Pattern.Next(at.Add(-time.Second))
	require.True(t, ok)
	assert.True(t, next.Equal(at))
}

func TestScheduleAppliesContentDefaults(t *testing.T) {
	t.Parallel()
	center := &fakeCenter{state: platform.PermissionAuthorized}
	s, _ := newFixture(t, center, nil, WithContentDefaults(content.Payload{Category: "general", Sound: "chime"}))

	n := note("a")
	n.Category = content.Some("alerts")
	require.NoError(t, s.ScheduleInterval(context.Background(), time.Hour, false, n))

	pending, _ := s.Pending(context.Background())
	require.Len(t, pending, 1)
	assert.Equal(t, "alerts", pending[0].Content.Category)
	assert.Equal(t, "chime", pending[0].Content.Sound)
}

func TestCancelSelectedAndAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	center := &fakeCenter{state: platform.PermissionAuthorized}
	s, _ := newFixture(t, center, nil)
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.ScheduleInterval(ctx, time.Hour, false, note(id)))
	}

	require.NoError(t, s.Cancel(ctx, []string{"a", "b", "missing"}))
	pending, _ := s.Pending(ctx)
	require.Len(t, pending, 2)
	assert.Equal(t, "c", pending[0].Identifier)
	assert.Equal(t, "d", pending[1].Identifier)

	require.NoError(t, s.Cancel(ctx, []string{}))
	n, _ := s.PendingCount(ctx)
	assert.Equal(t, 2, n)
	assert.Zero(t, center.removeAll.Load())

	require.NoError(t, s.Cancel(ctx, nil))
	n, _ = s.PendingCount(ctx)
	assert.Zero(t, n)
	assert.Equal(t, int32(1), center.removeAll.Load())
}

func TestCancelGating(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	center := &fakeCenter{state: platform.PermissionDenied}
	s, _ := newFixture(t, center, nil)
	assert.ErrorIs(t, s.Cancel(ctx, nil), ErrPermissionDenied)
	assert.Zero(t, center.removeAll.Load())

	center = &fakeCenter{state: platform.PermissionDenied}
	s, gate := newFixture(t, center, nil, WithCancelRequiresPermission(false))
	require.NoError(t, s.Cancel(ctx, nil))
	assert.Equal(t, int32(1), center.removeAll.Load())
	assert.Zero(t, gate.calls.Load())
}

func TestConcurrentSchedulesShareOneCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	center := &fakeCenter{state: platform.PermissionUndetermined, grant: true}
	s := New(center, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.ScheduleInterval(ctx, time.Hour, false, note(string(rune('A'+i))))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), center.requests.Load())
	n, _ := s.PendingCount(ctx)
	assert.Equal(t, 32, n)
}

func TestSchedulePublishesEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	center := &fakeCenter{state: platform.PermissionAuthorized}
	s, _ := newFixture(t, center, nil, WithBus(bus))
	ctx := context.Background()

	require.NoError(t, s.ScheduleInterval(ctx, time.Hour, false, note("a")))
	assert.ErrorIs(t, s.ScheduleRegion(ctx, home, false, note("b")), ErrLocationAuthorizationRequired)
	require.NoError(t, s.Cancel(ctx, []string{"a"}))

	var types []string
	timeout := time.After(time.Second)
	for len(types) < 3 {
		select {
		case e := <-ch:
			types = append(types, e.Type)
		case <-timeout:
			t.Fatalf("got only %v", types)
		}
	}
	assert.Equal(t, []string{
		eventbus.NotificationScheduled,
		eventbus.NotificationRejected,
		eventbus.NotificationCancelled,
	}, types)
}

func TestPermissionAndAsync(t *testing.T) {
	t.Parallel()
	center := &fakeCenter{state: platform.PermissionProvisional}
	s, _ := newFixture(t, center, nil)

	res, err := s.Permission(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, platform.PermissionProvisional, res.Status)

	got := make(chan authgate.Result, 1)
	s.CheckPermission(context.Background(), func(r authgate.Result) { got <- r })
	select {
	case r := <-got:
		assert.True(t, r.Allowed)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}

	done := make(chan error, 1)
	Async(func(err error) { done <- err }, func() error {
		return s.ScheduleInterval(context.Background(), time.Hour, false, note("async"))
	})
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("async op did not complete")
	}
}

func TestDefaultScheduler(t *testing.T) {
	SetDefault(nil)
	t.Cleanup(func() { SetDefault(nil) })

	d := Default()
	require.NotNil(t, d)
	assert.Same(t, d, Default())

	ctx := context.Background()
	require.NoError(t, d.ScheduleInterval(ctx, time.Hour, false, note("x")))
	require.NoError(t, d.ScheduleRegion(ctx, home, false, note("y")))
	n, err := d.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	custom := New(&fakeCenter{}, nil)
	SetDefault(custom)
	assert.Same(t, custom, Default())
}
