// Package config loads and validates the macrokit engine configuration.
//
// Configuration lives in a single TOML file. Macro definitions and trigger
// mappings are not configuration; they come from the authoring layer as JSON
// and are referenced here only by path.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the engine configuration.
type Config struct {
	// Log configures structured logging output.
	Log LogConfig `toml:"log"`

	// MacroPath is the macro library JSON file from the authoring layer.
	MacroPath string `toml:"macro_path"`

	// TriggerPath is the trigger mapping JSON file.
	TriggerPath string `toml:"trigger_path"`

	// WatchFiles enables hot reload of the macro and trigger files.
	WatchFiles bool `toml:"watch_files"`

	// Executor configures macro execution.
	Executor ExecutorConfig `toml:"executor"`

	// Devices lists the input devices to register at startup.
	Devices []DeviceConfig `toml:"devices"`

	// Injector is the external command used for key and pointer injection.
	// Empty disables injection actions.
	Injector string `toml:"injector"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ExecutorConfig configures the macro executor.
type ExecutorConfig struct {
	// MaxConcurrent is the number of macros that may run at once.
	MaxConcurrent int `toml:"max_concurrent"`

	// QueueSize bounds the number of pending runs.
	QueueSize int `toml:"queue_size"`

	// ActionTimeout bounds a single platform action. Zero means no limit.
	ActionTimeout time.Duration `toml:"action_timeout"`
}

// DeviceConfig describes one input device registration.
type DeviceConfig struct {
	// ID is the stable device identifier used by trigger mappings.
	ID string `toml:"id"`

	// Kind is one of: keyboard, controller, midi, text, voice.
	Kind string `toml:"kind"`

	// Path is the OS resource path for controller and midi devices.
	Path string `toml:"path"`

	// Addr is the websocket address for voice devices.
	Addr string `toml:"addr"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Executor: ExecutorConfig{
			MaxConcurrent: 1,
			QueueSize:     64,
		},
		WatchFiles: true,
	}
}

// Load reads configuration from a TOML file, applying defaults for
// unset fields. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes configuration from raw TOML bytes over the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if c.Executor.MaxConcurrent < 1 {
		return fmt.Errorf("config: executor.max_concurrent must be >= 1, got %d", c.Executor.MaxConcurrent)
	}
	if c.Executor.QueueSize < 1 {
		return fmt.Errorf("config: executor.queue_size must be >= 1, got %d", c.Executor.QueueSize)
	}

	seen := make(map[string]bool, len(c.Devices))
	for _, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("config: device with empty id")
		}
		if seen[d.ID] {
			return fmt.Errorf("config: duplicate device id %q", d.ID)
		}
		seen[d.ID] = true

		switch d.Kind {
		case "keyboard", "controller", "midi", "text", "voice":
		default:
			return fmt.Errorf("config: device %q has unknown kind %q", d.ID, d.Kind)
		}
	}
	return nil
}
