package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/cmodk/deskctl/agent"
	"github.com/cmodk/deskctl/app"
	"github.com/cmodk/deskctl/client"
)

var (
	server   = pflag.String("server", "http://localhost:4010", "deskctl server url")
	token    = pflag.String("token", os.Getenv("DESKCTL_DEVICE_TOKEN"), "Device token, defaults to $DESKCTL_DEVICE_TOKEN")
	interval = pflag.Duration("interval", app.DefaultPollInterval, "Poll interval")
	timeout  = pflag.Duration("timeout", app.DefaultExecutionTimeout, "Execution timeout per command, keep it at or below the server ExecutionTimeout")
	batch    = pflag.Int("batch", agent.DefaultBatch, "Maximum commands fetched per poll")
	programs = pflag.StringToString("program", nil, "command_type=program to run, repeatable")
	debug    = pflag.Bool("debug", false, "Enable debug output")
)

func main() {
	pflag.Parse()

	lg := logrus.New()
	if *debug {
		lg.SetLevel(logrus.DebugLevel)
	}

	if err := run(lg); err != nil {
		lg.WithField("error", err).Error("Agent stopped")
		os.Exit(1)
	}
}

func run(lg *logrus.Logger) error {
	if *token == "" {
		return errors.New("missing device token")
	}

	executor, err := agent.ParsePrograms(*programs)
	if err != nil {
		return err
	}

	a := agent.New(client.New(*server, *token, lg), executor, lg)
	a.Interval = *interval
	a.Timeout = *timeout
	a.Batch = *batch

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lg.WithField("server", *server).WithField("interval", a.Interval).Info("Polling for commands")

	return a.Run(ctx)
}
