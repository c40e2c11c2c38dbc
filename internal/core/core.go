package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// stopGrace bounds the time all modules get to stop, together.
const stopGrace = 30 * time.Second

// App owns the loaded modules of one cronsync process and drives them
// through Start, Reload and Stop.
type App struct {
	ctx     *AppContext
	modules []loadedModule
	logger  *slog.Logger
}

type loadedModule struct {
	id      ModuleID
	module  Module
	running bool
}

// NewApp creates an App that loads modules through ctx.
func NewApp(ctx *AppContext) *App {
	return &App{
		ctx:    ctx,
		logger: ctx.Logger.With("component", "core"),
	}
}

// LoadModules loads ids in order. On the first failure every module loaded
// so far is stopped and forgotten.
func (a *App) LoadModules(ids []string) error {
	for _, id := range ids {
		mod, err := a.ctx.LoadModule(id)
		if err != nil {
			a.Unload()
			return fmt.Errorf("core: module %s: %w", id, err)
		}
		a.modules = append(a.modules, loadedModule{id: ModuleID(id), module: mod})
		a.logger.Debug("core: module loaded", "module", id)
	}
	return nil
}

// Module returns the loaded module with the given ID.
func (a *App) Module(id string) (Module, bool) {
	for _, lm := range a.modules {
		if string(lm.id) == id {
			return lm.module, true
		}
	}
	return nil, false
}

// AppendModule adds an already-built module to the lifecycle. It is started
// after every loaded module and stopped before them.
func (a *App) AppendModule(id ModuleID, mod Module) {
	a.modules = append(a.modules, loadedModule{id: id, module: mod})
}

// Start starts the modules in load order. When one fails, the ones before
// it are stopped in reverse order and the error is returned.
func (a *App) Start() error {
	for i := range a.modules {
		lm := &a.modules[i]
		if s, ok := lm.module.(Starter); ok {
			if err := s.Start(); err != nil {
				a.logger.Error("core: module failed to start", "module", string(lm.id), "error", err)
				a.stopFrom(i-1, false)
				return fmt.Errorf("core: starting module %s: %w", lm.id, err)
			}
			a.logger.Debug("core: module started", "module", string(lm.id))
		}
		// A module without Start still holds what Provision acquired.
		lm.running = true
	}
	a.logger.Info("core: modules started", "count", len(a.modules))
	return nil
}

// Stop stops the running modules in reverse order. Calling it twice is a
// no-op the second time.
func (a *App) Stop() {
	a.stopFrom(len(a.modules)-1, false)
}

// Unload stops every loaded module, running or not, and forgets them. One-shot
// commands use it to release modules they provisioned but never started.
func (a *App) Unload() {
	a.stopFrom(len(a.modules)-1, true)
	a.modules = nil
}

func (a *App) stopFrom(last int, all bool) {
	ctx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()

	for i := last; i >= 0; i-- {
		lm := &a.modules[i]
		if !lm.running && !all {
			continue
		}
		lm.running = false
		s, ok := lm.module.(Stopper)
		if !ok {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			a.logger.Error("core: module stop failed", "module", string(lm.id), "error", err)
			continue
		}
		a.logger.Debug("core: module stopped", "module", string(lm.id))
	}
}

// ReloadModules hands ctx to every module implementing Reloader and joins
// their errors. A failing module does not prevent the others from reloading.
func (a *App) ReloadModules(ctx *AppContext) error {
	var errs []error
	for _, lm := range a.modules {
		r, ok := lm.module.(Reloader)
		if !ok {
			continue
		}
		if err := r.Reload(ctx.ForModule(lm.id)); err != nil {
			a.logger.Error("core: module reload failed", "module", string(lm.id), "error", err)
			errs = append(errs, fmt.Errorf("core: reloading module %s: %w", lm.id, err))
			continue
		}
		a.logger.Info("core: module reloaded", "module", string(lm.id))
	}
	return errors.Join(errs...)
}
