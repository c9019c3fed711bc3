// Package app wires config, logging, storage, the local center and the
// scheduling facade into one process.
package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"localnotify/internal/config"
	"localnotify/internal/delivery"
	"localnotify/internal/eventbus"
	"localnotify/internal/platform/local"
	"localnotify/internal/runtime/supervisor"
	"localnotify/internal/scheduler"
	"localnotify/internal/storage"
	logx "localnotify/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	zone *time.Location

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	center   *local.Center
	location *local.Location
	sched    *scheduler.Scheduler

	sup *supervisor.Supervisor
}

// New loads cfgPath and builds the app. An empty path runs on defaults
// with an in-memory store.
func New(cfgPath string) (*App, error) {
	var (
		cfgm *config.ConfigManager
		cfg  = &config.Config{}
	)
	if strings.TrimSpace(cfgPath) != "" {
		cfgm = config.NewConfigManager(cfgPath)
		loaded, err := cfgm.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return build(cfgm, cfg, nil)
}

// NewFromConfig builds the app from an already validated config. Extra
// sinks receive every delivery alongside the configured ones.
func NewFromConfig(cfg *config.Config, sinks ...delivery.Sink) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return build(nil, cfg, sinks)
}

func build(cfgm *config.ConfigManager, cfg *config.Config, extra []delivery.Sink) (_ *App, err error) {
	zone, err := cfg.Center.Zone()
	if err != nil {
		return nil, err
	}
	grants, err := cfg.Center.Grants()
	if err != nil {
		return nil, err
	}
	initial, err := cfg.Center.InitialPermission()
	if err != nil {
		return nil, err
	}
	locAuth, err := cfg.Center.LocationAuthorization()
	if err != nil {
		return nil, err
	}
	tick, err := cfg.Center.TickInterval()
	if err != nil {
		return nil, err
	}
	authOpts, err := cfg.Facade.Options()
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging.Logx())
	defer func() {
		if err != nil {
			_ = logSvc.Close()
		}
	}()
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	appLog.Debug("storage opened", logx.String("driver", sc.Driver))

	sinks := delivery.Multi{delivery.NewLogSink(log)}
	if t := cfg.Telegram; t != nil && t.Enabled {
		ts, err := delivery.NewTelegramSink(delivery.TelegramConfig{
			Token:    t.Token,
			ChatID:   t.ChatID,
			ThreadID: t.ThreadID,
		})
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		sinks = append(sinks, ts)
		appLog.Info("telegram delivery enabled", logx.Int64("chat_id", t.ChatID))
	}
	sinks = append(sinks, extra...)

	center := local.New(store,
		local.WithLogger(log),
		local.WithBus(bus),
		local.WithSink(sinks),
		local.WithPrompter(local.Answer(grants)),
		local.WithInitialPermission(initial),
		local.WithTick(tick),
		local.WithRate(rate.Limit(cfg.Center.RatePerSec), cfg.Center.Burst),
	)
	location := local.NewLocation(locAuth)

	sched := scheduler.New(center, location,
		scheduler.WithLogger(log),
		scheduler.WithBus(bus),
		scheduler.WithAuthorizationOptions(authOpts),
		scheduler.WithContentDefaults(cfg.Facade.Defaults.Payload()),
		scheduler.WithCancelRequiresPermission(cfg.Facade.CancelGated()),
	)

	return &App{
		cfgm:     cfgm,
		cfg:      cfg,
		zone:     zone,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		center:   center,
		location: location,
		sched:    sched,
	}, nil
}

func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *App) Center() *local.Center           { return a.center }
func (a *App) Location() *local.Location       { return a.location }
func (a *App) Bus() eventbus.Bus               { return a.bus }
func (a *App) Logger() logx.Logger             { return a.log }

// Zone is the timezone dates given without one are read in.
func (a *App) Zone() *time.Location { return a.zone }

// Done is closed when the app stops or fails.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen since Start.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the center's firing loop, the config watcher and the event log
// until Stop or ctx is done.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.sup.GoRestart("center.run", a.center.Run, 250*time.Millisecond, 10*time.Second)

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log)
		sub := a.cfgm.Subscribe(8)
		a.sup.Go("config.watch", a.cfgm.Watch)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			for {
				select {
				case <-c.Done():
					return nil
				case next, ok := <-sub:
					if !ok {
						return nil
					}
					a.applyConfig(next)
				}
			}
		})
	}

	a.log.Info("app started")
	return nil
}

// applyConfig takes over the parts of a reloaded config that can change
// while running: logging and location authorization.
func (a *App) applyConfig(next *config.Config) {
	if next == nil {
		return
	}
	changed, attrs := config.SummarizeConfigChange(a.cfg, next)
	a.cfg = next
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)

	a.logs.Apply(next.Logging.Logx())
	if st, err := next.Center.LocationAuthorization(); err == nil {
		a.location.Set(st)
	}
	if config.RestartRequired(changed) {
		a.log.Warn("some config changes need a restart to take effect", logx.Strings("sections", changed))
	}
}

// Stop waits for the background goroutines (bounded by ctx) and releases
// the store and log file.
func (a *App) Stop(ctx context.Context) error {
	var errs []error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	return errors.Join(append(errs, a.Close())...)
}

// Close releases resources without touching background goroutines. One-shot
// commands that never call Start use it.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
