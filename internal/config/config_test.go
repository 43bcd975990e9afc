package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/meetwave/meetwave/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" || cfg.Store != "postgres" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.SendBuffer != 32 || cfg.ReadLimit != 32768 {
		t.Fatalf("unexpected transport defaults %+v", cfg)
	}
	if cfg.MeetingTTL != 24*time.Hour {
		t.Fatalf("unexpected meeting ttl %v", cfg.MeetingTTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "mode: debug\nport: 9090\nstore: redis\nmeeting_ttl: 1h\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "debug" || cfg.Port != 9090 || cfg.Store != "redis" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.MeetingTTL != time.Hour {
		t.Fatalf("unexpected ttl %v", cfg.MeetingTTL)
	}
	// Values absent from the file keep their defaults.
	if cfg.SendBuffer != 32 {
		t.Fatalf("default lost: %+v", cfg)
	}
}
