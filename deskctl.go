package deskctl

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/cmodk/deskctl/app"
)

const Version = "1.0.0"

type Deskctl struct {
	*app.App
	Users     *Users
	Devices   *Devices
	Commands  *Commands
	Teams     *Teams
	Deadlines *Deadlines
}

// New wires the repositories on top of a connected App.
func New(a *app.App) *Deskctl {
	d := &Deskctl{
		App: a,
	}

	d.Users = NewUsers(d)
	d.Devices = NewDevices(d)
	d.Commands = NewCommands(d)
	d.Teams = NewTeams(d)

	if a.Redis != nil {
		d.Deadlines = NewDeadlines(d, a.Redis)
	}

	return d
}

// Migrate brings the schema up to date.
func (d *Deskctl) Migrate(ctx context.Context) error {
	return d.Database.CheckAndUpdateDatabase(ctx, DatabaseStructure)
}

// Load reads config/<env>.yaml below configDir for the environment named by
// DESKCTL_ENV and connects everything the configuration names.
func Load(configDir string) (*Deskctl, error) {
	config, err := app.LoadConfig(configDir, app.Environment())
	if err != nil {
		return nil, err
	}

	a, err := app.New(config, logrus.New())
	if err != nil {
		return nil, err
	}

	return New(a), nil
}
