// Package deskctltest builds a Deskctl on a throwaway sqlite database for
// tests of the packages layered on top of it.
package deskctltest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/urfave/negroni"

	"github.com/cmodk/deskctl"
	"github.com/cmodk/deskctl/app"
)

var Epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Clock advances one second on every reading.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type Env struct {
	*deskctl.Deskctl
	Clock *Clock
}

func New(t testing.TB) *Env {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	config := app.DefaultConfig()
	config.Database.DSN = filepath.Join(t.TempDir(), "deskctl.db") +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := app.OpenDatabase(config.Database, logger)
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	clock := &Clock{now: Epoch}
	a := &app.App{
		Environment: "test",
		Config:      config,
		Router:      mux.NewRouter(),
		Negroni:     negroni.New(),
		Logger:      logger,
		Database:    db,
		Now:         clock.Now,
	}
	a.Event = app.NewEventBus(a)

	d := deskctl.New(a)
	if err := d.Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}

	return &Env{d, clock}
}

// User creates a user with an api key and returns both.
func (env *Env) User(t testing.TB, email string) (*deskctl.User, *deskctl.ApiKey) {
	t.Helper()

	ctx := context.Background()

	u, err := env.Users.Create(ctx, email)
	if err != nil {
		t.Fatal(err)
	}

	key, err := env.Users.CreateApiKey(ctx, u.Id, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	return u, key
}

func (env *Env) Subject(t testing.TB, userId uint64) deskctl.Subject {
	t.Helper()

	s, err := env.Teams.Subject(context.Background(), userId)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func (env *Env) Device(t testing.TB, owner uint64, name string) *deskctl.Device {
	t.Helper()

	d, err := env.Devices.Register(context.Background(), env.Subject(t, owner), name, "192.168.1.100", 3000)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
