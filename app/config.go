package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

const (
	DefaultEnvironment      = "dev"
	DefaultPollInterval     = 5 * time.Second
	DefaultExecutionTimeout = 30 * time.Second
	DefaultReapGrace        = 15 * time.Second
	DefaultStaleAfter       = 30 * time.Second
)

type DatabaseConfig struct {
	Driver string `yaml:"Driver" env:"DRIVER"`
	DSN    string `yaml:"DSN" env:"DSN"`
}

type HttpConfig struct {
	Address        string        `yaml:"Address" env:"ADDRESS"`
	Port           int           `yaml:"Port" env:"PORT"`
	UseTLS         bool          `yaml:"UseTLS" env:"USE_TLS"`
	TLSCertificate string        `yaml:"TLSCertificate" env:"TLS_CERTIFICATE"`
	TLSKey         string        `yaml:"TLSKey" env:"TLS_KEY"`
	Timeout        time.Duration `yaml:"Timeout" env:"TIMEOUT"`
}

type LivenessConfig struct {
	StaleAfter time.Duration `yaml:"StaleAfter" env:"STALE_AFTER"`
}

// CommandsConfig holds the execution limits. Agents give up on a command
// after ExecutionTimeout, the reaper fails it ExecutionTimeout plus ReapGrace
// after delivery.
type CommandsConfig struct {
	ExecutionTimeout time.Duration `yaml:"ExecutionTimeout" env:"EXECUTION_TIMEOUT"`
	ReapGrace        time.Duration `yaml:"ReapGrace" env:"REAP_GRACE"`
}

type Config struct {
	LogLevel   string          `yaml:"LogLevel" env:"LOG_LEVEL"`
	Database   DatabaseConfig  `yaml:"Database" envPrefix:"DATABASE_"`
	Http       HttpConfig      `yaml:"Http" envPrefix:"HTTP_"`
	Liveness   LivenessConfig  `yaml:"Liveness" envPrefix:"LIVENESS_"`
	Commands   CommandsConfig  `yaml:"Commands" envPrefix:"COMMANDS_"`
	NsqTopic   string          `yaml:"NsqTopic" env:"NSQ_TOPIC"`
	NsqLookupd string          `yaml:"NsqLookupd" env:"NSQ_LOOKUPD"`
	Nsqd       string          `yaml:"Nsqd" env:"NSQD"`
	Redis      string          `yaml:"Redis" env:"REDIS"`
	EventBus   *EventBusConfig `yaml:"EventBus"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "deskctl.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		},
		Http: HttpConfig{
			Address: "0.0.0.0",
			Port:    4010,
			Timeout: 120 * time.Second,
		},
		Liveness: LivenessConfig{StaleAfter: DefaultStaleAfter},
		Commands: CommandsConfig{
			ExecutionTimeout: DefaultExecutionTimeout,
			ReapGrace:        DefaultReapGrace,
		},
		NsqTopic: "deskctl",
		EventBus: &EventBusConfig{NumHandlers: 1},
	}
}

// Environment returns the DESKCTL_ENV value, dev when unset.
func Environment() string {
	e := os.Getenv("DESKCTL_ENV")
	if e == "" {
		return DefaultEnvironment
	}
	return e
}

// LoadConfig reads config/<env>.yaml from dir on top of the defaults and
// applies DESKCTL_* environment overrides. A missing file is not an error.
func LoadConfig(dir string, environment string) (*Config, error) {
	config := DefaultConfig()

	path := filepath.Join(dir, fmt.Sprintf("%s.yaml", environment))
	config_file, err := os.Open(path)
	switch {
	case err == nil:
		defer config_file.Close()
		if err := yaml.NewDecoder(config_file).Decode(config); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := env.ParseWithOptions(config, env.Options{Prefix: "DESKCTL_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if config.EventBus == nil {
		config.EventBus = &EventBusConfig{NumHandlers: 1}
	}

	return config, nil
}
