package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/cmodk/deskctl"
)

var (
	configDir = pflag.String("config", "config", "Directory holding <environment>.yaml")
	debug     = pflag.Bool("debug", false, "Enable debug output")
	period    = pflag.Duration("period", time.Second, "How often to look for commands past their deadline")
)

func main() {
	pflag.Parse()

	if err := run(); err != nil {
		logrus.WithField("error", err).Error("Reaper stopped")
		os.Exit(1)
	}
}

func run() error {
	d, err := deskctl.Load(*configDir)
	if err != nil {
		return err
	}
	defer d.Close()

	if *debug {
		d.Logger.SetLevel(logrus.DebugLevel)
	}

	if d.Deadlines == nil {
		return errors.New("the reaper needs Redis configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d.Event.SetListenName("deskctl-reaper")
	d.Event.Handle(deskctl.CommandStatusChanged{}, d.Deadlines.CommandStatusChanged)

	go d.Deadlines.Run(ctx, *period)

	d.Logger.WithField("timeout", d.Deadlines.Timeout).WithField("grace", d.Deadlines.Grace).Info("Reaping delivered commands")

	if err := d.Event.Listen(ctx); err != nil {
		return fmt.Errorf("listen for events: %w", err)
	}
	return nil
}
