package command

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli"

	"localnotify/internal/app"
	"localnotify/internal/content"
	"localnotify/internal/platform"
	"localnotify/internal/recurrence"
	"localnotify/internal/scheduler"
)

func contentFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{Name: "id", Usage: "request identifier (default: a random UUID)"},
		cli.StringFlag{Name: "title, t", Usage: "notification title"},
		cli.StringFlag{Name: "subtitle", Usage: "notification subtitle"},
		cli.StringFlag{Name: "body, b", Usage: "notification body"},
		cli.IntFlag{Name: "badge", Usage: "app badge number"},
		cli.StringFlag{Name: "category", Usage: "category identifier"},
		cli.StringFlag{Name: "thread", Usage: "thread identifier used for grouping"},
		cli.StringFlag{Name: "sound", Usage: "sound name"},
		cli.StringFlag{Name: "launch-image", Usage: "launch image name"},
		cli.StringSliceFlag{Name: "info", Usage: "user info entry key=value (repeatable)"},
	}
}

var (
	dateFlags = []cli.Flag{
		cli.StringFlag{Name: "at", Usage: `when to fire: RFC 3339, "2006-01-02 15:04[:05]" in the configured timezone, or "+DURATION" from now`},
		cli.StringFlag{Name: "repeat, r", Value: "none", Usage: "repeat unit: none, hourly, daily, weekly, monthly, yearly"},
	}
	intervalFlags = []cli.Flag{
		cli.DurationFlag{Name: "every, e", Usage: "time until the notification fires"},
		cli.BoolFlag{Name: "repeats", Usage: "fire again every interval (minimum 1m)"},
	}
	regionFlags = []cli.Flag{
		cli.Float64Flag{Name: "lat", Usage: "region center latitude"},
		cli.Float64Flag{Name: "lon", Usage: "region center longitude"},
		cli.Float64Flag{Name: "radius", Value: 100, Usage: "region radius in metres"},
		cli.StringFlag{Name: "region-id", Usage: "region identifier (default: the request identifier)"},
		cli.BoolTFlag{Name: "on-entry", Usage: "fire when entering the region (default: true)"},
		cli.BoolFlag{Name: "on-exit", Usage: "fire when leaving the region"},
		cli.BoolFlag{Name: "repeats", Usage: "keep firing on every crossing"},
	}
)

func notificationFrom(ctx *cli.Context) (scheduler.Notification, error) {
	id := strings.TrimSpace(ctx.String("id"))
	if id == "" {
		id = uuid.NewString()
	}
	n := scheduler.Notification{
		Identifier: id,
		Title:      ctx.String("title"),
		Fields: content.Fields{
			Subtitle: ctx.String("subtitle"),
			Body:     ctx.String("body"),
			Badge:    ctx.Int("badge"),
		},
	}
	optional := func(name string) content.Optional[string] {
		if ctx.IsSet(name) {
			return content.Some(ctx.String(name))
		}
		return content.Optional[string]{}
	}
	n.Category = optional("category")
	n.Thread = optional("thread")
	n.Sound = optional("sound")
	n.LaunchImage = optional("launch-image")

	if entries := ctx.StringSlice("info"); len(entries) > 0 {
		info := make(map[string]any, len(entries))
		for _, e := range entries {
			k, v, ok := strings.Cut(e, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return n, fmt.Errorf("info %q: want key=value", e)
			}
			info[strings.TrimSpace(k)] = v
		}
		n.UserInfo = content.Some(info)
	}
	return n, nil
}

func scheduleDate(ctx *cli.Context) error {
	n, err := notificationFrom(ctx)
	if err != nil {
		return err
	}
	unit, err := recurrence.ParseUnit(ctx.String("repeat"))
	if err != nil {
		return err
	}
	return withApp(ctx, func(a *app.App) error {
		at, err := parseAt(ctx.String("at"), time.Now(), a.Zone())
		if err != nil {
			return err
		}
		if err := a.Scheduler().ScheduleDate(background(ctx), at, unit, n); err != nil {
			return err
		}
		printf(ctx, "scheduled %s at %s (repeat: %s)\n", n.Identifier, at.Format(time.RFC3339), unit)
		return nil
	})
}

func scheduleInterval(ctx *cli.Context) error {
	n, err := notificationFrom(ctx)
	if err != nil {
		return err
	}
	every := ctx.Duration("every")
	repeats := ctx.Bool("repeats")
	return withApp(ctx, func(a *app.App) error {
		if err := a.Scheduler().ScheduleInterval(background(ctx), every, repeats, n); err != nil {
			return err
		}
		printf(ctx, "scheduled %s every %s (repeats: %t)\n", n.Identifier, every, repeats)
		return nil
	})
}

func scheduleRegion(ctx *cli.Context) error {
	n, err := notificationFrom(ctx)
	if err != nil {
		return err
	}
	if !ctx.IsSet("lat") || !ctx.IsSet("lon") {
		return errors.New("--lat and --lon are required")
	}
	region := platform.Region{
		Identifier:    ctx.String("region-id"),
		Latitude:      ctx.Float64("lat"),
		Longitude:     ctx.Float64("lon"),
		Radius:        ctx.Float64("radius"),
		NotifyOnEntry: ctx.BoolT("on-entry"),
		NotifyOnExit:  ctx.Bool("on-exit"),
	}
	if region.Identifier == "" {
		region.Identifier = n.Identifier
	}
	repeats := ctx.Bool("repeats")
	return withApp(ctx, func(a *app.App) error {
		if err := a.Scheduler().ScheduleRegion(background(ctx), region, repeats, n); err != nil {
			return err
		}
		printf(ctx, "scheduled %s for region %s (%g,%g r=%gm)\n",
			n.Identifier, region.Identifier, region.Latitude, region.Longitude, region.Radius)
		return nil
	})
}

var atLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// parseAt reads an absolute time (zoneless forms in loc) or a "+DURATION"
// offset from now.
func parseAt(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("--at is required")
	}
	if strings.HasPrefix(s, "+") {
		d, err := time.ParseDuration(s[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("--at %q: %w", raw, err)
		}
		return now.In(loc).Add(d), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range atLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("--at %q: unrecognised time", raw)
}
