// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for cronsync.
package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Scheduler controls discovery and reconciliation of scheduled jobs.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Properties are the values placeholders in job schedules resolve
	// against, e.g. "${heartbeat.interval:PT1M}". Environment variables are
	// consulted when a key is missing.
	Properties map[string]string `yaml:"properties"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "store.sqlite").
	Modules map[string]yaml.Node `yaml:"modules"`
}

// SchedulerConfig configures the reconciler and the scheduler engine.
type SchedulerConfig struct {
	// Enabled turns the scheduler on. Defaults to true when omitted.
	Enabled *bool `yaml:"enabled"`

	// PackagesToScan restricts discovery to jobs registered under these
	// package paths. When empty, the main module path is used.
	PackagesToScan []string `yaml:"packages_to_scan"`

	// DefaultGroup is the group of jobs declaring none. It may contain
	// placeholders. When empty, a job's package path is its group.
	DefaultGroup string `yaml:"default_group"`

	// Timezone is the IANA zone cron expressions are evaluated in.
	// Defaults to the local zone.
	Timezone string `yaml:"timezone"`
}

// IsEnabled reports whether scheduling is on.
func (s SchedulerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Location loads the configured time zone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}
