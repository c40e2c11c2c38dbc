package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/cronsync/internal/core"
	"github.com/flemzord/cronsync/pkg/app"
)

const (
	storeMemory   = "memory"
	storeSQLite   = "sqlite"
	storePostgres = "postgres"
)

// initAnswers collects the choices made in the init form.
type initAnswers struct {
	Store        string
	DefaultGroup string
	Timezone     string
	Gateway      bool
	GatewayBind  string
	Heartbeat    bool
	HeartbeatURL string
	Tracing      bool
}

func initCmd() *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		RunE: func(_ *cobra.Command, _ []string) error {
			if output == "" {
				output = app.DefaultConfigPath()
			}
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			answers := initAnswers{
				Store:       storeSQLite,
				Timezone:    "UTC",
				GatewayBind: "127.0.0.1:8080",
			}
			if err := initForm(&answers).Run(); err != nil {
				return err
			}

			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("creating config directory: %w", err)
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Printf("Configuration written to %s\n", output)
			if answers.Store == storePostgres {
				fmt.Println("Set CRONSYNC_POSTGRES_DSN before starting cronsync.")
			}
			if answers.Gateway {
				fmt.Println("Set CRONSYNC_GATEWAY_TOKEN before starting cronsync.")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (defaults to the user config directory)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func initForm(a *initAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Job store").
				Description("Where jobs and triggers are persisted").
				Options(storeOptions()...).
				Value(&a.Store),
			huh.NewInput().
				Title("Default job group").
				Description("Leave empty to group jobs by Go package").
				Value(&a.DefaultGroup),
			huh.NewInput().
				Title("Scheduler timezone").
				Value(&a.Timezone).
				Validate(validateTimezone),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the HTTP gateway?").
				Description("Health, Prometheus metrics and the job API").
				Value(&a.Gateway),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Value(&a.GatewayBind).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("address is required")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return !a.Gateway }),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the heartbeat job?").
				Value(&a.Heartbeat),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Heartbeat URL").
				Value(&a.HeartbeatURL).
				Validate(validateHTTPURL),
		).WithHideFunc(func() bool { return !a.Heartbeat }),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Export traces over OTLP/HTTP?").
				Value(&a.Tracing),
		),
	)
}

// storeOptions offers the compiled store modules, then the in-memory store.
func storeOptions() []huh.Option[string] {
	labels := map[string]string{
		storeSQLite:   "SQLite file",
		storePostgres: "PostgreSQL (DSN from $CRONSYNC_POSTGRES_DSN)",
	}
	var opts []huh.Option[string]
	for _, info := range core.GetModulesByNamespace("store") {
		name := strings.TrimPrefix(string(info.ID), "store.")
		label, ok := labels[name]
		if !ok {
			continue
		}
		opts = append(opts, huh.NewOption(label, name))
	}
	return append(opts, huh.NewOption("In memory", storeMemory))
}

func validateTimezone(s string) error {
	if _, err := time.LoadLocation(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("unknown timezone %q", s)
	}
	return nil
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

// renderConfig produces the YAML document for a.
func renderConfig(a initAnswers) ([]byte, error) {
	scheduler := map[string]any{"enabled": true}
	if g := strings.TrimSpace(a.DefaultGroup); g != "" {
		scheduler["default_group"] = g
	}
	if tz := strings.TrimSpace(a.Timezone); tz != "" {
		scheduler["timezone"] = tz
	}

	modules := map[string]any{}
	switch a.Store {
	case storeSQLite:
		modules["store.sqlite"] = map[string]any{"wal": true}
	case storePostgres:
		modules["store.postgres"] = map[string]any{"dsn": "${CRONSYNC_POSTGRES_DSN}"}
	case storeMemory, "":
	default:
		return nil, fmt.Errorf("unknown store %q", a.Store)
	}
	if a.Gateway {
		modules["gateway.http"] = map[string]any{
			"bind": a.GatewayBind,
			"auth": map[string]any{"bearer_token": "${CRONSYNC_GATEWAY_TOKEN}"},
		}
	}
	if a.Tracing {
		modules["telemetry.tracing"] = map[string]any{"endpoint": "localhost:4318", "insecure": true}
	}

	properties := map[string]string{}
	if a.Heartbeat {
		properties["heartbeat.enabled"] = "true"
		properties["heartbeat.url"] = strings.TrimSpace(a.HeartbeatURL)
	}

	doc := map[string]any{
		"version":   "1",
		"scheduler": scheduler,
	}
	if len(properties) > 0 {
		doc["properties"] = properties
	}
	if len(modules) > 0 {
		doc["modules"] = modules
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}
