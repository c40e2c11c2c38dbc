package core

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

var (
	modules   = make(map[string]ModuleInfo)
	modulesMu sync.RWMutex
)

// moduleIDPattern is "namespace.name", lower case.
var moduleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z][a-z0-9_]*$`)

// RegisterModule registers a module by reading its ModuleInfo. It panics on
// a malformed or duplicate ID, or a nil constructor. Intended to be called
// from init() functions.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	if !moduleIDPattern.MatchString(string(info.ID)) {
		panic(fmt.Sprintf("core: invalid module ID %q, want namespace.name", info.ID))
	}
	if info.New == nil {
		panic(fmt.Sprintf("core: module %s: New function must not be nil", info.ID))
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()

	id := string(info.ID)
	if _, exists := modules[id]; exists {
		panic(fmt.Sprintf("core: module already registered: %s", id))
	}
	modules[id] = info
}

// GetModule returns the ModuleInfo for the given ID, or false if not found.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	info, ok := modules[id]
	return info, ok
}

// GetModules returns all registered modules sorted by ID.
func GetModules() []ModuleInfo {
	return collect(func(string) bool { return true })
}

// GetModulesByNamespace returns the modules of one namespace, e.g. "store"
// matches "store.sqlite" and "store.postgres".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	prefix := namespace + "."
	return collect(func(id string) bool { return strings.HasPrefix(id, prefix) })
}

func collect(match func(id string) bool) []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()

	var result []ModuleInfo
	for id, info := range modules {
		if match(id) {
			result = append(result, info)
		}
	}
	slices.SortFunc(result, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	modules = make(map[string]ModuleInfo)
}
