package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/cmodk/deskctl"
	"github.com/cmodk/deskctl/api"
)

var (
	configDir = pflag.String("config", "config", "Directory holding <environment>.yaml")
	debug     = pflag.Bool("debug", false, "Enable debug output")
	migrate   = pflag.Bool("migrate", true, "Apply database migrations before serving")
)

func main() {
	pflag.Parse()

	if err := run(); err != nil {
		logrus.WithField("error", err).Error("deskctl stopped")
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *migrate {
		if err := d.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}

	api.Register(d)

	d.Logger.WithField("environment", d.Environment).Infof("deskctl %s", deskctl.Version)

	if err := d.Run(ctx); err != nil {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}
