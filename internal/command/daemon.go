package command

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/urfave/cli"

	"localnotify/internal/app"
	logx "localnotify/pkg/logx"
)

const stopTimeout = 10 * time.Second

// run keeps the center firing until a signal arrives, telling systemd
// when it is ready and when it starts stopping.
func run(ctx *cli.Context) error {
	a, err := app.New(ctx.GlobalString("config"))
	if err != nil {
		return err
	}
	log := a.Logger()

	sigCtx := background(ctx)
	if err := a.Start(sigCtx); err != nil {
		_ = a.Close()
		return err
	}
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify ready sent")
	}
	printf(ctx, "localnotify running; press Ctrl+C to stop\n")

	select {
	case <-sigCtx.Done():
	case <-a.Done():
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	fatal := a.Err()
	if err := a.Stop(stopCtx); err != nil {
		log.Warn("stop incomplete", logx.Err(err))
	}
	return fatal
}
