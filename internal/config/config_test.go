package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Executor.MaxConcurrent != 1 {
		t.Errorf("MaxConcurrent = %d, want 1", cfg.Executor.MaxConcurrent)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
macro_path = "macros.json"
trigger_path = "triggers.json"
injector = "ydotool"

[log]
level = "debug"
format = "json"

[executor]
max_concurrent = 2
queue_size = 16
action_timeout = "5s"

[[devices]]
id = "kb-main"
kind = "keyboard"

[[devices]]
id = "pad-1"
kind = "controller"
path = "/dev/input/js0"
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.MacroPath != "macros.json" {
		t.Errorf("MacroPath = %q, want %q", cfg.MacroPath, "macros.json")
	}
	if cfg.Executor.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", cfg.Executor.MaxConcurrent)
	}
	if cfg.Executor.ActionTimeout != 5*time.Second {
		t.Errorf("ActionTimeout = %v, want 5s", cfg.Executor.ActionTimeout)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("len(Devices) = %d, want 2", len(cfg.Devices))
	}
	if cfg.Devices[1].Path != "/dev/input/js0" {
		t.Errorf("Devices[1].Path = %q", cfg.Devices[1].Path)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero concurrency", func(c *Config) { c.Executor.MaxConcurrent = 0 }, true},
		{"zero queue", func(c *Config) { c.Executor.QueueSize = 0 }, true},
		{
			"duplicate device id",
			func(c *Config) {
				c.Devices = []DeviceConfig{
					{ID: "d1", Kind: "keyboard"},
					{ID: "d1", Kind: "midi"},
				}
			},
			true,
		},
		{
			"unknown kind",
			func(c *Config) {
				c.Devices = []DeviceConfig{{ID: "d1", Kind: "touchpad"}}
			},
			true,
		},
		{
			"empty id",
			func(c *Config) {
				c.Devices = []DeviceConfig{{Kind: "keyboard"}}
			},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Executor.MaxConcurrent != 1 {
		t.Errorf("missing file should yield defaults, got %+v", cfg.Executor)
	}
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("= nonsense ="), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should fail on malformed TOML")
	}
}
