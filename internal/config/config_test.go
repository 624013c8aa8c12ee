package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.QueuePath == "" {
		t.Fatalf("expected default queue path")
	}
	if cfg.SplitUnitMeters != 1000 {
		t.Fatalf("expected kilometer splits by default, got %v", cfg.SplitUnitMeters)
	}
	if cfg.SyncIntervalSec <= 0 || cfg.SyncMaxAttempts <= 0 {
		t.Fatalf("expected sync defaults")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("QUEUE_PATH", "/tmp/custom-queue.db")
	t.Setenv("SPLIT_UNIT_METERS", "1609.344")
	t.Setenv("SYNC_MAX_ATTEMPTS", "3")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.QueuePath != "/tmp/custom-queue.db" {
		t.Fatalf("expected override queue path")
	}
	if cfg.SplitUnitMeters != 1609.344 {
		t.Fatalf("expected mile splits, got %v", cfg.SplitUnitMeters)
	}
	if cfg.SyncMaxAttempts != 3 {
		t.Fatalf("expected override attempts")
	}
}
