// Package app assembles the macrokit runtime: configuration, logging,
// devices, trigger resolution, macro execution, and file hot reload.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/rionhunter/macrokit/internal/config"
	"github.com/rionhunter/macrokit/internal/device"
	"github.com/rionhunter/macrokit/internal/engine"
	"github.com/rionhunter/macrokit/internal/executor"
	"github.com/rionhunter/macrokit/internal/logging"
	"github.com/rionhunter/macrokit/internal/macro"
	"github.com/rionhunter/macrokit/internal/notify"
	"github.com/rionhunter/macrokit/internal/platform"
	"github.com/rionhunter/macrokit/internal/reload"
	"github.com/rionhunter/macrokit/internal/script"
	"github.com/rionhunter/macrokit/internal/trigger"
)

// Options are the command-line level settings.
type Options struct {
	// ConfigPath is the TOML configuration file.
	ConfigPath string

	// MacroPath overrides the configured macro library file.
	MacroPath string

	// TriggerPath overrides the configured trigger mapping file.
	TriggerPath string

	// LogLevel overrides the configured log level.
	LogLevel string
}

// App is the assembled runtime.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	bus      *notify.Bus
	macros   *macro.Store
	resolver *trigger.Resolver
	scripts  *script.Engine
	exec     *executor.Executor
	manager  *device.Manager
	watcher  *reload.Watcher
}

// New loads configuration and builds the runtime. Nothing starts
// listening until Run.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.MacroPath != "" {
		cfg.MacroPath = opts.MacroPath
	}
	if opts.TriggerPath != "" {
		cfg.TriggerPath = opts.TriggerPath
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		log:    log,
		bus:    notify.NewBus(),
		macros: macro.NewStore(nil),
	}
	a.bus.SubscribeFunc(a.logNotification)

	if err := a.loadMacros(); err != nil {
		return nil, err
	}

	mappings, err := a.loadTriggers()
	if err != nil {
		return nil, err
	}
	a.resolver = trigger.NewResolver(mappings)

	a.scripts = script.NewEngine(0)
	binding := platform.NewDesktop(
		platform.WithInjector(cfg.Injector),
		platform.WithScriptEngine(a.scripts),
		platform.WithDesktopLogger(log),
	)

	a.exec = executor.New(executor.Config{
		MaxConcurrent: cfg.Executor.MaxConcurrent,
		QueueSize:     cfg.Executor.QueueSize,
		ActionTimeout: cfg.Executor.ActionTimeout,
	}, binding, executor.WithSink(a.bus), executor.WithLogger(log))

	eng := engine.New(a.resolver, a.macros, a.exec, engine.WithLogger(log))
	a.manager = device.NewManager(eng.HandleEvent,
		device.WithLogger(log), device.WithSink(a.bus))

	return a, nil
}

// loadMacros reads the macro library file into the store. A missing path
// leaves the store empty.
func (a *App) loadMacros() error {
	if a.cfg.MacroPath == "" {
		return nil
	}
	data, err := os.ReadFile(a.cfg.MacroPath)
	if err != nil {
		return fmt.Errorf("app: reading macros: %w", err)
	}
	lib, err := macro.DecodeLibrary(data)
	if err != nil {
		return err
	}
	a.macros.Replace(lib)
	a.log.Info("macro library loaded", "path", a.cfg.MacroPath, "macros", len(lib))
	return nil
}

// loadTriggers reads the trigger mapping file.
func (a *App) loadTriggers() ([]trigger.Mapping, error) {
	if a.cfg.TriggerPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(a.cfg.TriggerPath)
	if err != nil {
		return nil, fmt.Errorf("app: reading triggers: %w", err)
	}
	return trigger.DecodeMappings(data)
}

// logNotification mirrors lifecycle notifications into the log.
func (a *App) logNotification(n notify.Notification) {
	switch n.Kind {
	case notify.KindRun:
		if n.Err != nil {
			a.log.Warn("run transition", "run", n.RunID, "macro", n.MacroID,
				"state", n.State, "action", n.ActionIndex, "error", n.Err)
			return
		}
		a.log.Info("run transition", "run", n.RunID, "macro", n.MacroID,
			"state", n.State, "action", n.ActionIndex)
	case notify.KindDeviceLost:
		a.log.Error("device lost", "device", n.DeviceID, "error", n.Err)
	case notify.KindDeviceUnavailable:
		a.log.Error("device unavailable", "device", n.DeviceID, "error", n.Err)
	}
}

// Bus exposes the notification bus for additional subscribers.
func (a *App) Bus() *notify.Bus { return a.bus }

// Run starts devices and blocks until ctx is cancelled. Devices that
// fail to register are reported and skipped; the session runs with
// whatever remains.
func (a *App) Run(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}

	for _, dc := range a.cfg.Devices {
		kind, err := device.ParseKind(dc.Kind)
		if err != nil {
			a.log.Error("skipping device", "device", dc.ID, "error", err)
			continue
		}
		cfg := device.Config{ID: dc.ID, Kind: kind, Path: dc.Path, Addr: dc.Addr}
		if _, err := a.manager.Register(cfg); err != nil {
			a.log.Error("skipping device", "device", dc.ID, "error", err)
			continue
		}
		a.log.Info("device registered", "device", dc.ID, "kind", dc.Kind)
	}

	if a.cfg.WatchFiles {
		if err := a.startWatcher(); err != nil {
			a.log.Warn("hot reload disabled", "error", err)
		}
	}

	a.log.Info("macrokit running")
	<-ctx.Done()
	return nil
}

// startWatcher wires hot reload for the macro and trigger files.
func (a *App) startWatcher() error {
	if a.cfg.MacroPath == "" && a.cfg.TriggerPath == "" {
		return nil
	}
	w, err := reload.NewWatcher(reload.WithLogger(a.log))
	if err != nil {
		return err
	}
	a.watcher = w

	if a.cfg.MacroPath != "" {
		err = w.Watch(a.cfg.MacroPath, func(string) {
			if err := a.loadMacros(); err != nil {
				a.log.Error("macro reload failed, keeping previous library", "error", err)
			}
		})
		if err != nil {
			return err
		}
	}
	if a.cfg.TriggerPath != "" {
		err = w.Watch(a.cfg.TriggerPath, func(string) {
			mappings, err := a.loadTriggers()
			if err != nil {
				a.log.Error("trigger reload failed, keeping previous mappings", "error", err)
				return
			}
			a.resolver.Replace(mappings)
			a.log.Info("trigger mappings reloaded", "mappings", len(mappings))
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Shutdown stops everything in dependency order. Safe to call more than
// once.
func (a *App) Shutdown() {
	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil && !errors.Is(err, reload.ErrClosed) {
			a.log.Warn("watcher close", "error", err)
		}
		a.watcher = nil
	}
	if a.manager != nil {
		a.manager.Close()
	}
	if a.exec != nil {
		a.exec.Close()
	}
	if a.scripts != nil {
		a.scripts.Close()
	}
}
