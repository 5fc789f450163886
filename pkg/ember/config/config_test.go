package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	if err != nil {
		t.Fatal(err)
	}
	want := Default()
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
}

func TestLoadOverridesFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ember.yml")
	contents := "port: 9090\nlog_level: DEBUG\nthread_num: 16\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Fatalf("expected log_level DEBUG, got %q", cfg.LogLevel)
	}
	if cfg.ThreadNum != 16 {
		t.Fatalf("expected thread_num 16, got %d", cfg.ThreadNum)
	}
	// Untouched fields keep their defaults.
	if cfg.ConnectionPoolSize != Default().ConnectionPoolSize {
		t.Fatalf("expected connection_pool_size to keep its default, got %d", cfg.ConnectionPoolSize)
	}
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("EMBER_PORT", "7000")
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 7000 {
		t.Fatalf("expected env override to set port 7000, got %d", cfg.Port)
	}
}
