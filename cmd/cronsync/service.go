package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/cronsync/pkg/app"
)

const serviceStopTimeout = 30 * time.Second

// program runs the scheduler under the system service manager.
type program struct {
	params app.RunParams
	stop   chan struct{}
	done   chan error
}

func (p *program) Start(_ service.Service) error {
	p.stop = make(chan struct{})
	p.done = make(chan error, 1)
	params := p.params
	params.Stop = p.stop
	go func() {
		err := app.Run(params)
		if err != nil {
			slog.Error("cronsync: run failed", "error", err)
		}
		p.done <- err
	}()
	return nil
}

func (p *program) Stop(_ service.Service) error {
	close(p.stop)
	select {
	case err := <-p.done:
		return err
	case <-time.After(serviceStopTimeout):
		return fmt.Errorf("cronsync: shutdown timed out after %s", serviceStopTimeout)
	}
}

func serviceCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage cronsync as a system service",
	}

	for _, action := range service.ControlAction {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the cronsync service", action),
			RunE: func(_ *cobra.Command, _ []string) error {
				svc, err := newService(flags)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service %s: %w", action, err)
				}
				fmt.Printf("Service %s: done\n", action)
				return nil
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run under the service manager (used by the installed unit)",
		RunE: func(_ *cobra.Command, _ []string) error {
			svc, err := newService(flags)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}

func newService(flags *globalFlags) (service.Service, error) {
	params := flags.runParams()
	if params.ConfigPath == "" {
		resolved, err := app.ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		params.ConfigPath = resolved
	}
	abs, err := filepath.Abs(params.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	params.ConfigPath = abs

	return service.New(&program{params: params}, &service.Config{
		Name:        "cronsync",
		DisplayName: "cronsync",
		Description: "Declarative job scheduler",
		Arguments:   serviceArguments(params),
	})
}

// serviceArguments is the command line of the installed unit.
func serviceArguments(params app.RunParams) []string {
	args := []string{"--config", params.ConfigPath}
	if params.DataDir != "" {
		args = append(args, "--data-dir", params.DataDir)
	}
	if params.LogLevel < slog.LevelInfo {
		args = append(args, "--debug")
	}
	return append(args, "service", "run")
}
