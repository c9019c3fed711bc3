// Package command is the localnotify command-line front end.
package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"localnotify/internal/app"
)

const description = `localnotify schedules local notifications against an in-process
notification center. Pending requests survive restarts when a file or sqlite
store is configured; "localnotify run" fires them as they fall due.`

// Execute runs the CLI with args (including the program name) and writes
// command output to out.
func Execute(args []string, out io.Writer, version string) error {
	if out == nil {
		out = os.Stdout
	}
	a := cli.NewApp()
	a.Name = "localnotify"
	a.HelpName = "localnotify"
	a.Usage = "schedule and fire local notifications"
	a.UsageText = "localnotify [--config FILE] <command> [arguments...]"
	a.Description = description
	a.Version = version
	a.Writer = out
	a.ErrWriter = out
	a.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "path to a JSON or YAML config file (default: in-memory store)",
			EnvVar: "LOCALNOTIFY_CONFIG",
		},
	}
	a.Commands = []cli.Command{
		{
			Name:    "schedule",
			Aliases: []string{"s"},
			Usage:   "schedule a notification",
			Subcommands: []cli.Command{
				{
					Name:   "date",
					Usage:  "fire at a calendar moment, optionally repeating",
					Flags:  append(contentFlags(), dateFlags...),
					Action: scheduleDate,
				},
				{
					Name:   "interval",
					Usage:  "fire after a time interval",
					Flags:  append(contentFlags(), intervalFlags...),
					Action: scheduleInterval,
				},
				{
					Name:   "region",
					Usage:  "fire on entering or leaving a circular region",
					Flags:  append(contentFlags(), regionFlags...),
					Action: scheduleRegion,
				},
			},
		},
		{
			Name:      "cancel",
			Usage:     "cancel pending notifications",
			UsageText: "localnotify cancel [--all] [ID...]",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "all, a", Usage: "cancel every pending notification"},
			},
			Action: cancelPending,
		},
		{
			Name:    "list",
			Aliases: []string{"l"},
			Usage:   "list pending notifications",
			Action:  list,
		},
		{
			Name:  "permission",
			Usage: "check (and if needed request) notification permission",
			Subcommands: []cli.Command{
				{
					Name:      "set",
					Usage:     "override the stored answer",
					UsageText: "localnotify permission set <undetermined|denied|authorized|provisional>",
					Action:    setPermission,
				},
			},
			Action: permission,
		},
		{
			Name:      "locate",
			Usage:     "report the device position and fire crossed regions",
			UsageText: "localnotify locate LAT LON",
			Action:    locate,
		},
		{
			Name:   "tick",
			Usage:  "fire every calendar or interval notification that is due now",
			Action: tick,
		},
		{
			Name:   "run",
			Usage:  "run the center until interrupted, firing notifications as they fall due",
			Action: run,
		},
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.Metadata = map[string]interface{}{ctxKey: sigCtx}
	return a.Run(args)
}

const ctxKey = "ctx"

// background is the process context, cancelled on SIGINT or SIGTERM.
func background(ctx *cli.Context) context.Context {
	if c, ok := ctx.App.Metadata[ctxKey].(context.Context); ok {
		return c
	}
	return context.Background()
}

// withApp builds the app from the --config flag and closes it afterwards.
func withApp(ctx *cli.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	defer a.Close()
	return fn(a)
}

func printf(ctx *cli.Context, format string, args ...any) {
	fmt.Fprintf(ctx.App.Writer, format, args...)
}
