package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/flemzord/cronsync/internal/core"
)

// storeNamespace is the module namespace of scheduler stores. At most one
// store module may be configured.
const storeNamespace = "store"

// Validate checks the structural validity of a Config.
// It verifies the version field, checks that all referenced module IDs
// exist in the registry, that at most one store module is configured and
// that the scheduler section is usable.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	var stores []string
	for id := range cfg.Modules {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
			continue
		}
		if core.ModuleID(id).Namespace() == storeNamespace {
			stores = append(stores, id)
		}
	}
	if len(stores) > 1 {
		slices.Sort(stores)
		errs = append(errs, fmt.Errorf("config: at most one store module may be configured, got %s", strings.Join(stores, ", ")))
	}

	errs = append(errs, validateScheduler(cfg.Scheduler)...)
	errs = append(errs, validateProperties(cfg.Properties)...)

	return errors.Join(errs...)
}

func validateScheduler(s SchedulerConfig) []error {
	var errs []error
	if _, err := s.Location(); err != nil {
		errs = append(errs, fmt.Errorf("config: scheduler.timezone: %w", err))
	}
	for i, pkg := range s.PackagesToScan {
		if strings.TrimSpace(pkg) == "" {
			errs = append(errs, fmt.Errorf("config: scheduler.packages_to_scan[%d]: package path is required", i))
		}
	}
	return errs
}

func validateProperties(props map[string]string) []error {
	var errs []error
	for key := range props {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, errors.New("config: properties: empty key"))
		}
	}
	return errs
}
