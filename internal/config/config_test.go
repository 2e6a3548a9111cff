package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOREKEEPER_STORE_DRIVER",
		"LOREKEEPER_STORE_PATH",
		"LOREKEEPER_STORE_DSN",
		"LOREKEEPER_EXTRACTOR_PROVIDER",
		"LOREKEEPER_EXTRACTOR_MODEL",
		"OPENAI_API_KEY",
		"ANTHROPIC_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadProjectConfig(t *testing.T) {
	clearEnv(t)

	t.Run("valid config loads", func(t *testing.T) {
		cfg, err := LoadProjectConfig(filepath.Join("testdata", "valid_config.yaml"))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Project != "test-project" {
			t.Fatalf("expected project name, got %q", cfg.Project)
		}
		if cfg.Extractor.Timeout != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", cfg.Extractor.Timeout)
		}
		if *cfg.Reconcile.WorldOverlapThreshold != 4 {
			t.Fatalf("expected world threshold 4, got %d", *cfg.Reconcile.WorldOverlapThreshold)
		}
		if cfg.Reconcile.KeyMaxLength != 40 {
			t.Fatalf("expected default key length, got %d", cfg.Reconcile.KeyMaxLength)
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\n")
		cfg, err := LoadProjectConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if cfg.Store.Driver != "files" || cfg.Store.Path != "Database" {
			t.Fatalf("expected files store default, got %+v", cfg.Store)
		}
		if cfg.Extractor.Provider != "heuristic" {
			t.Fatalf("expected heuristic extractor default, got %q", cfg.Extractor.Provider)
		}
		if *cfg.Reconcile.WorldOverlapThreshold != 3 || *cfg.Reconcile.TimelineOverlapThreshold != 5 {
			t.Fatalf("expected default thresholds, got %d and %d", *cfg.Reconcile.WorldOverlapThreshold, *cfg.Reconcile.TimelineOverlapThreshold)
		}
		if *cfg.Extractor.MaxRetries != 3 {
			t.Fatalf("expected default max_retries 3, got %d", *cfg.Extractor.MaxRetries)
		}
	})

	t.Run("explicit zeros kept", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nextractor:\n  max_retries: 0\nreconcile:\n  world_overlap_threshold: 0\n  timeline_overlap_threshold: 0\n")
		cfg, err := LoadProjectConfig(path)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if *cfg.Extractor.MaxRetries != 0 {
			t.Fatalf("expected max_retries 0, got %d", *cfg.Extractor.MaxRetries)
		}
		if *cfg.Reconcile.WorldOverlapThreshold != 0 || *cfg.Reconcile.TimelineOverlapThreshold != 0 {
			t.Fatalf("expected zero thresholds, got %d and %d", *cfg.Reconcile.WorldOverlapThreshold, *cfg.Reconcile.TimelineOverlapThreshold)
		}
	})

	t.Run("negative threshold rejected", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nreconcile:\n  world_overlap_threshold: -1\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("missing project name", func(t *testing.T) {
		path := writeTempConfig(t, "version: 1\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unsupported version", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 2\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown store driver", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nstore:\n  driver: mongo\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("sqlite without dsn", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nstore:\n  driver: sqlite\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("postgres without dsn", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nstore:\n  driver: postgres\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("unknown extractor", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nextractor:\n  provider: oracle\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("backoff ordering", func(t *testing.T) {
		path := writeTempConfig(t, "project: test\nversion: 1\nextractor:\n  initial_backoff: 10s\n  max_backoff: 1s\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		if _, err := LoadProjectConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeTempConfig(t, "project: [\n")
		if _, err := LoadProjectConfig(path); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOREKEEPER_STORE_DRIVER", "sqlite")
	t.Setenv("LOREKEEPER_STORE_DSN", "sqlite://:memory:")
	t.Setenv("LOREKEEPER_EXTRACTOR_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "secret")

	path := writeTempConfig(t, "project: test\nversion: 1\nstore:\n  driver: files\n")
	cfg, err := LoadProjectConfig(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "sqlite://:memory:" {
		t.Fatalf("expected env store override, got %+v", cfg.Store)
	}
	if cfg.Extractor.Provider != "anthropic" || cfg.Extractor.APIKey != "secret" {
		t.Fatalf("expected anthropic provider with env key, got %q", cfg.Extractor.Provider)
	}
	if cfg.Extractor.Model == "" {
		t.Fatalf("expected provider default model")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := validateProjectConfig(cfg); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Setenv("LOREKEEPER_STORE_DRIVER", "memory")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("expected default config, got %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Fatalf("expected env override on defaults, got %q", cfg.Store.Driver)
	}
	if cfg.Extractor.Provider != "heuristic" {
		t.Fatalf("expected heuristic provider, got %q", cfg.Extractor.Provider)
	}
}

func TestLoadOrDefault_ExistingFileIsValidated(t *testing.T) {
	path := writeTempConfig(t, "project: broken\nversion: 2\n")
	if _, err := LoadOrDefault(path); err == nil {
		t.Fatalf("expected version error")
	}
}

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}
