package command

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"localnotify/internal/app"
	"localnotify/internal/platform"
)

func cancelPending(ctx *cli.Context) error {
	ids := []string(ctx.Args())
	all := ctx.Bool("all")
	switch {
	case all && len(ids) > 0:
		return errors.New("pass either --all or identifiers, not both")
	case !all && len(ids) == 0:
		return errors.New("nothing to cancel: pass identifiers or --all")
	}
	if all {
		ids = nil
	}
	return withApp(ctx, func(a *app.App) error {
		if err := a.Scheduler().Cancel(background(ctx), ids); err != nil {
			return err
		}
		if all {
			printf(ctx, "cancelled all pending notifications\n")
		} else {
			printf(ctx, "cancelled %d identifier(s)\n", len(ids))
		}
		return nil
	})
}

func list(ctx *cli.Context) error {
	return withApp(ctx, func(a *app.App) error {
		recs, err := a.Center().Pending(background(ctx))
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			printf(ctx, "no pending notifications\n")
			return nil
		}
		w := tabwriter.NewWriter(ctx.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tTRIGGER\tNEXT FIRE\tFIRED")
		for _, r := range recs {
			next := "-"
			if !r.NextFire.IsZero() {
				next = r.NextFire.In(a.Zone()).Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
				r.ID(), r.Request.Content.Title, r.Request.Trigger, next, r.Fired)
		}
		return w.Flush()
	})
}

func permission(ctx *cli.Context) error {
	return withApp(ctx, func(a *app.App) error {
		res, err := a.Scheduler().Permission(background(ctx))
		if err != nil {
			return err
		}
		printf(ctx, "permission: %s (allowed: %t)\n", res.Status, res.Allowed)
		return nil
	})
}

func setPermission(ctx *cli.Context) error {
	st, err := platform.ParsePermissionState(ctx.Args().First())
	if err != nil {
		return err
	}
	return withApp(ctx, func(a *app.App) error {
		if err := a.Center().SetPermission(background(ctx), st); err != nil {
			return err
		}
		printf(ctx, "permission set to %s\n", st)
		return nil
	})
}

func locate(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 2 {
		return errors.New("usage: localnotify locate LAT LON")
	}
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("longitude: %w", err)
	}
	return withApp(ctx, func(a *app.App) error {
		n, err := a.Center().ReportLocation(background(ctx), lat, lon)
		if err != nil {
			return err
		}
		printf(ctx, "%d notification(s) fired\n", n)
		return nil
	})
}

func tick(ctx *cli.Context) error {
	return withApp(ctx, func(a *app.App) error {
		n, err := a.Center().Tick(background(ctx))
		if err != nil {
			return err
		}
		printf(ctx, "%d notification(s) fired\n", n)
		return nil
	})
}
