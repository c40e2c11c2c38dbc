// Package app provides the shared entry point of the cronsync binary.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/cronsync/internal/config"
	"github.com/flemzord/cronsync/internal/reload"
)

// RunParams configures the main application loop.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel sets the minimum log level. Defaults to slog.LevelInfo.
	LogLevel slog.Level

	// Stop, when non-nil, ends the loop like a shutdown signal.
	Stop <-chan struct{}
}

// Run loads configuration, starts all modules and the scheduler, and blocks
// until a shutdown signal is received. SIGHUP and file-change events reload
// the configuration: properties are swapped and jobs reconciled again.
func Run(params RunParams) error {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("app: create data directory: %w", err)
	}
	auditFile, err := os.OpenFile(filepath.Join(dataDir, "audit.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("app: open audit log: %w", err)
	}
	defer func() { _ = auditFile.Close() }()

	rt, err := Wire(cfg, WireParams{
		DataDir:     dataDir,
		LogLevel:    params.LogLevel,
		AuditOutput: auditFile,
	})
	if err != nil {
		return err
	}
	logger := rt.Logger
	logger.Info("cronsync starting",
		"version", params.Version,
		"commit", params.Commit,
		"config", cfgPath,
		"data_dir", dataDir,
	)

	handler := newReloadHandler(rt)
	if err := rt.App.Start(); err != nil {
		return err
	}

	return loop(rt, handler, cfgPath, params.Stop)
}

// newReloadHandler applies reloaded configurations to rt.
func newReloadHandler(rt *Runtime) *reload.Handler {
	return reload.NewHandler(reload.HandlerConfig{
		App:        rt.App,
		AppContext: rt.Context,
		Properties: rt.Resolver,
		Reconciler: rt.Reconciler,
		Roots:      rt.Catalog,
		Scheduler:  rt.Engine,
		Redactor:   rt.Redactor,
		Audit:      rt.Audit,
		Logger:     rt.Logger,
	})
}

// loop serves signals and config file changes until shutdown.
func loop(rt *Runtime, handler *reload.Handler, cfgPath string, stop <-chan struct{}) error {
	logger := rt.Logger

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher := reload.NewWatcher(reload.WatcherConfig{ConfigPath: cfgPath})
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	watcher.Start(watchCtx)
	defer watcher.Stop()

	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			rt.App.Stop()
			logger.Info("shutdown complete")
			return nil
		case <-stop:
			rt.App.Stop()
			logger.Info("shutdown complete")
			return nil
		case evt := <-watcher.Events():
			logger.Info("config file changed, reloading", "path", evt.ConfigPath)
			if err := handler.HandleReload(watchCtx, cfgPath); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/cronsync/cronsync.yaml, then
// ~/.config/cronsync/cronsync.yaml, then ./cronsync.yaml.
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "cronsync", "cronsync.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "cronsync", "cronsync.yaml"))
	}

	candidates = append(candidates, "cronsync.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where init writes a new configuration.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return filepath.Join(xdg, "cronsync", "cronsync.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "cronsync", "cronsync.yaml")
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/cronsync if set, otherwise ~/.local/share/cronsync.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "cronsync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "cronsync")
}

// Inspect loads, validates and wires the configuration at cfgPath without
// starting anything, calls fn, then unloads the modules. Commands that
// report on the scheduler (plan, jobs) use it.
func Inspect(cfgPath string, params WireParams, fn func(rt *Runtime) error) error {
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return err
		}
		cfgPath = resolved
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if params.DataDir == "" {
		params.DataDir = DefaultDataDir()
	}
	if params.LogOutput == nil {
		params.LogOutput = io.Discard
	}

	rt, err := Wire(cfg, params)
	if err != nil {
		return err
	}
	defer rt.App.Unload()
	return fn(rt)
}
