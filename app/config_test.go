package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(t.TempDir(), "missing")
	if err != nil {
		t.Fatal(err)
	}

	if config.Http.Port != 4010 || config.Commands.ExecutionTimeout != DefaultExecutionTimeout {
		t.Fatalf("Unexpected defaults %+v", config)
	}
	if config.Commands.ReapGrace != DefaultReapGrace {
		t.Fatalf("Unexpected reap grace %s", config.Commands.ReapGrace)
	}
	if config.Liveness.StaleAfter != DefaultStaleAfter {
		t.Fatalf("Unexpected stale after %s", config.Liveness.StaleAfter)
	}
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()

	data := []byte(`LogLevel: debug
Database:
  Driver: mysql
  DSN: deskctl:secret@tcp(db:3306)/deskctl?parseTime=true&clientFoundRows=true
Http:
  Port: 8000
Commands:
  ExecutionTimeout: 45s
Redis: redis:6379
`)
	if err := os.WriteFile(filepath.Join(dir, "production.yaml"), data, 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DESKCTL_HTTP_PORT", "9000")
	t.Setenv("DESKCTL_LIVENESS_STALE_AFTER", "1m")

	config, err := LoadConfig(dir, "production")
	if err != nil {
		t.Fatal(err)
	}

	if config.LogLevel != "debug" || config.Database.Driver != "mysql" || config.Redis != "redis:6379" {
		t.Fatalf("File values not applied: %+v", config)
	}
	if config.Commands.ExecutionTimeout != 45*time.Second {
		t.Fatalf("Unexpected execution timeout %s", config.Commands.ExecutionTimeout)
	}
	if config.Http.Port != 9000 {
		t.Fatalf("Environment must override the file, got port %d", config.Http.Port)
	}
	if config.Liveness.StaleAfter != time.Minute {
		t.Fatalf("Unexpected stale after %s", config.Liveness.StaleAfter)
	}
	if config.Http.Address != "0.0.0.0" {
		t.Fatalf("Defaults must survive partial files, got %q", config.Http.Address)
	}
}

func TestLoadConfigBrokenFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "dev.yaml"), []byte("Http: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(dir, "dev"); err == nil {
		t.Fatal("Expected broken yaml to fail")
	}
}
