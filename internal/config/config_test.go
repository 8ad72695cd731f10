package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.DefaultThresholdMs != 200 {
		t.Errorf("expected default threshold 200, got %d", cfg.Engine.DefaultThresholdMs)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyrxd.toml")
	content := `
version = 1

[engine]
default_threshold_ms = 180
tick_interval_ms = 5
queue_size = 512

[profile]
source_path = "/etc/keyrx/mapping.krx"
auto_reload = false

[logging]
level = "debug"
format = "text"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.DefaultThresholdMs != 180 {
		t.Errorf("threshold = %d, want 180", cfg.Engine.DefaultThresholdMs)
	}
	if cfg.Engine.QueueSize != 512 {
		t.Errorf("queue = %d, want 512", cfg.Engine.QueueSize)
	}
	if cfg.Profile.SourcePath != "/etc/keyrx/mapping.krx" {
		t.Errorf("source = %q", cfg.Profile.SourcePath)
	}
	if cfg.Profile.AutoReload {
		t.Error("auto_reload should be false")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	// Unspecified sections keep defaults.
	if cfg.Store.MaxHistory != 100 {
		t.Errorf("store.max_history = %d, want default 100", cfg.Store.MaxHistory)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyrxd.yaml")
	content := `
version: 1
engine:
  default_threshold_ms: 250
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.DefaultThresholdMs != 250 {
		t.Errorf("threshold = %d, want 250", cfg.Engine.DefaultThresholdMs)
	}
}

func TestValidationCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Engine.DefaultThresholdMs = 0
	cfg.Engine.QueueSize = 1
	cfg.Logging.Level = "loud"
	cfg.Profile.SourcePath = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(errs) != 4 {
		t.Errorf("expected 4 errors, got %d: %v", len(errs), errs)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("KEYRX_LOG_LEVEL", "debug")
	t.Setenv("KEYRX_PROFILE_PATH", "/tmp/x.krx")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Logging.Level)
	}
	if cfg.Profile.SourcePath != "/tmp/x.krx" {
		t.Errorf("source = %q", cfg.Profile.SourcePath)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.toml")
	cfg := Default()
	cfg.Engine.DefaultThresholdMs = 175
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.Engine.DefaultThresholdMs != 175 {
		t.Errorf("threshold = %d, want 175", back.Engine.DefaultThresholdMs)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := Default()
	cfg.Devices.IncludePatterns = []string{"USB*"}
	clone := cfg.Clone()
	clone.Devices.IncludePatterns[0] = "PS2*"
	if cfg.Devices.IncludePatterns[0] != "USB*" {
		t.Error("clone shares pattern slice with original")
	}
}

func TestLoaderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyrxd.toml")
	if err := os.WriteFile(path, []byte("version = 1\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(path)
	defer l.Close()
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Engine.DefaultThresholdMs != 200 {
		t.Errorf("threshold = %d", cfg.Engine.DefaultThresholdMs)
	}
	got := l.Config()
	if got == cfg {
		t.Error("Config() should hand out a copy, not the shared pointer")
	}
	if got.Engine.DefaultThresholdMs != cfg.Engine.DefaultThresholdMs {
		t.Errorf("copy threshold = %d, want %d", got.Engine.DefaultThresholdMs, cfg.Engine.DefaultThresholdMs)
	}
	got.Engine.DefaultThresholdMs = 50
	if l.Config().Engine.DefaultThresholdMs != 200 {
		t.Error("mutating the returned copy leaked into the loader")
	}
}
