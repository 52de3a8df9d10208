package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/cmodk/deskctl"
)

var (
	configDir = pflag.String("config", "config", "Directory holding <environment>.yaml")
	ttl       = pflag.Duration("ttl", 90*24*time.Hour, "Lifetime of created api keys")
	debug     = pflag.Bool("debug", false, "Enable debug output")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: deskctl-admin [flags] <command>

Commands:
  migrate              apply database migrations
  user-create <email>  create a user and print an api key
  apikey-create <email> print a new api key for an existing user

Flags:
`)
	pflag.PrintDefaults()
}

func main() {
	pflag.Usage = usage
	pflag.Parse()

	args := pflag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	if err := run(args[0], args[1:]); err != nil {
		logrus.WithField("error", err).Errorf("%s failed", args[0])
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	d, err := deskctl.Load(*configDir)
	if err != nil {
		return err
	}
	defer d.Close()

	if *debug {
		d.Logger.SetLevel(logrus.DebugLevel)
	}

	ctx := context.Background()

	switch command {
	case "migrate":
		return d.Migrate(ctx)
	case "user-create":
		return userCreate(ctx, d, args)
	case "apikey-create":
		return apiKeyCreate(ctx, d, args)
	}

	return fmt.Errorf("unknown command %q, see -h", command)
}

func userCreate(ctx context.Context, d *deskctl.Deskctl, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("user-create takes exactly one email")
	}

	u, err := d.Users.Create(ctx, args[0])
	if err != nil {
		return err
	}

	key, err := d.Users.CreateApiKey(ctx, u.Id, *ttl)
	if err != nil {
		return err
	}

	return printJSON(struct {
		User   *deskctl.User   `json:"user"`
		ApiKey *deskctl.ApiKey `json:"api_key"`
	}{u, key})
}

func apiKeyCreate(ctx context.Context, d *deskctl.Deskctl, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("apikey-create takes exactly one email")
	}

	u, err := d.Users.ByEmail(ctx, args[0])
	if err != nil {
		return err
	}

	key, err := d.Users.CreateApiKey(ctx, u.Id, *ttl)
	if err != nil {
		return err
	}

	return printJSON(key)
}

func printJSON(v interface{}) error {
	e := json.NewEncoder(os.Stdout)
	e.SetIndent("", "  ")
	return e.Encode(v)
}
