// Package agent is the consumer side of the command queue. One agent runs
// on each controlled desktop and polls the server for its commands.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cmodk/deskctl"
	"github.com/cmodk/deskctl/app"
)

const (
	DefaultBatch   = 20
	TimeoutMessage = "execution timeout"
)

// Backend is the server as the agent sees it. *client.Client implements it.
type Backend interface {
	Pending(limit int) ([]deskctl.Command, error)
	Claim(id uint64) (*deskctl.Command, error)
	Report(id uint64, status deskctl.Status, report deskctl.StatusReport) error
	Heartbeat() error
	Offline() error
}

type Executor interface {
	Execute(ctx context.Context, c deskctl.Command) error
}

type Agent struct {
	Backend  Backend
	Executor Executor
	Logger   *logrus.Logger

	Interval time.Duration
	Timeout  time.Duration
	Batch    int

	Now func() time.Time
}

func New(backend Backend, executor Executor, logger *logrus.Logger) *Agent {
	return &Agent{
		Backend:  backend,
		Executor: executor,
		Logger:   logger,
		Interval: app.DefaultPollInterval,
		Timeout:  app.DefaultExecutionTimeout,
		Batch:    DefaultBatch,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run polls every Interval until ctx is cancelled and then tells the server
// the device went offline.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	for {
		if _, err := a.Poll(ctx); err != nil {
			a.Logger.WithField("error", err).Error("Polling for commands")
		}

		select {
		case <-ctx.Done():
			if err := a.Backend.Offline(); err != nil {
				a.Logger.WithField("error", err).Warn("Reporting offline")
				return err
			}
			a.Logger.Info("Agent stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll sends a heartbeat and works through the pending commands in issue
// order. It returns how many commands were executed successfully, and stops
// at the first command it could not claim for a reason other than losing it.
func (a *Agent) Poll(ctx context.Context) (int, error) {
	if err := a.Backend.Heartbeat(); err != nil {
		return 0, err
	}

	cs, err := a.Backend.Pending(a.Batch)
	if err != nil {
		return 0, err
	}

	executed := 0
	for _, c := range cs {
		if ctx.Err() != nil {
			break
		}

		ok, err := a.process(ctx, c)
		if err != nil {
			return executed, err
		}
		if ok {
			executed++
		}
	}

	return executed, nil
}

// skippable reports whether a claim failed because the command is no longer
// ours to run: claimed elsewhere, or deleted with its device.
func skippable(err error) bool {
	return deskctl.HasCode(err, deskctl.CodeInvalidTransition) || deskctl.HasCode(err, deskctl.CodeNotFound)
}

// process runs one command. A claim that fails for any other reason is
// returned, so later commands of the batch cannot overtake this one.
func (a *Agent) process(ctx context.Context, c deskctl.Command) (bool, error) {
	log := a.Logger.WithField("command", c.Id).WithField("type", c.Kind)

	claimed, err := a.Backend.Claim(c.Id)
	if err != nil {
		if !skippable(err) {
			return false, fmt.Errorf("claim command %d: %w", c.Id, err)
		}
		log.WithField("error", err).Warn("Skipping command")
		return false, nil
	}

	execCtx, cancel := context.WithTimeout(ctx, a.Timeout)
	err = a.Executor.Execute(execCtx, *claimed)
	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		msg := err.Error()
		if timedOut {
			msg = TimeoutMessage
		}
		log.WithField("error", msg).Warn("Command failed")

		if err := a.Backend.Report(c.Id, deskctl.StatusFailed, deskctl.StatusReport{Error: msg}); err != nil {
			log.WithField("error", err).Warn("Reporting failure")
		}
		return false, nil
	}

	now := a.Now()
	if err := a.Backend.Report(c.Id, deskctl.StatusExecuted, deskctl.StatusReport{ExecutedAt: &now}); err != nil {
		log.WithField("error", err).Warn("Reporting execution")
		return false, nil
	}

	log.Info("Command executed")
	return true, nil
}
