package config

import (
	"cmp"
	"slices"

	"github.com/flemzord/cronsync/internal/core"
)

// loadOrder ranks module namespaces. Stores load first so the modules after
// them can resolve the scheduler store while provisioning; telemetry loads
// before the modules it traces. Unlisted namespaces load last.
var loadOrder = map[string]int{
	"store":     0,
	"telemetry": 1,
}

// Resolve returns the configured module IDs in load order: by namespace
// rank, then by ID.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		return cmp.Or(
			cmp.Compare(rank(a), rank(b)),
			cmp.Compare(a, b),
		)
	})
	return ids
}

func rank(id string) int {
	if r, ok := loadOrder[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(loadOrder)
}
