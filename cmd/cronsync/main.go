// Package main is the entry point for the cronsync CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flemzord/cronsync/internal/config"
	"github.com/flemzord/cronsync/internal/core"
	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/pkg/app"

	// Compiled modules.
	_ "github.com/flemzord/cronsync/internal/gateway"
	_ "github.com/flemzord/cronsync/internal/telemetry"
	_ "github.com/flemzord/cronsync/modules/jobs/heartbeat"
	_ "github.com/flemzord/cronsync/modules/jobs/maintenance"
	_ "github.com/flemzord/cronsync/modules/store/postgres"
	_ "github.com/flemzord/cronsync/modules/store/sqlite"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every command that loads a configuration.
type globalFlags struct {
	config  string
	dataDir string
	debug   bool
}

func (f *globalFlags) logLevel() slog.Level {
	if f.debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func (f *globalFlags) runParams() app.RunParams {
	return app.RunParams{
		ConfigPath: f.config,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    f.dataDir,
		LogLevel:   f.logLevel(),
	}
}

func (f *globalFlags) wireParams() app.WireParams {
	return app.WireParams{DataDir: f.dataDir, LogLevel: f.logLevel()}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "cronsync",
		Short:         "Declarative job scheduling with timed executions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Persistent data directory")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		versionCmd(),
		startCmd(flags),
		configCmd(),
		planCmd(flags),
		jobsCmd(flags),
		initCmd(),
		serviceCmd(flags),
		mcpCmd(flags),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version, compiled modules and registered jobs",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("cronsync %s (commit: %s, built: %s)\n", version, commit, date)

			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Println("\nNo compiled modules.")
			} else {
				fmt.Println("\nCompiled modules:")
				for _, mod := range mods {
					fmt.Printf("  %s\n", mod.ID)
				}
			}

			defs := job.DefaultRegistry.Definitions()
			if len(defs) == 0 {
				return
			}
			fmt.Println("\nRegistered jobs:")
			for _, def := range defs {
				fmt.Printf("  %s (%s)\n", def.Type, def.Package)
			}
		},
	}
}

func startCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Reconcile jobs and run the scheduler until interrupted",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run(flags.runParams())
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ids := config.Resolve(cfg)
			fmt.Printf("Configuration OK (%d modules, %d properties)\n", len(ids), len(cfg.Properties))
			for _, id := range ids {
				fmt.Printf("  %s\n", id)
			}
			if !cfg.Scheduler.IsEnabled() {
				fmt.Println("Scheduler is disabled.")
			}
			return nil
		},
	})
	return cmd
}
