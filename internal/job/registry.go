package job

import (
	"cmp"
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
)

// Definition registers a job type together with its scheduling declaration.
type Definition struct {
	// Type names the job. Defaults to the Go type name of the value returned by New.
	Type string

	// Package is the registering package path. Filled by Register when empty.
	Package string

	Schedule Descriptor

	// TrackExecutions persists an ExecutionRecord after every run.
	TrackExecutions bool

	// New returns a fresh job instance.
	New func() Job
}

// Registry holds job definitions keyed by type.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// DefaultRegistry receives the definitions registered from init functions.
var DefaultRegistry = NewRegistry()

// Register adds a definition to DefaultRegistry. It panics on an invalid or
// duplicate definition. Intended to be called from init() functions.
func Register(def Definition) {
	if def.Package == "" {
		def.Package = callerPackage(2)
	}
	if err := DefaultRegistry.Add(def); err != nil {
		panic(err.Error())
	}
}

// Add validates and stores a definition.
func (r *Registry) Add(def Definition) error {
	if def.New == nil {
		return fmt.Errorf("job: definition %q: New function must not be nil", def.Type)
	}
	if def.Type == "" {
		def.Type = typeName(def.New())
	}
	if def.Type == "" {
		return fmt.Errorf("job: cannot derive type name, set Definition.Type")
	}
	if def.Package == "" {
		def.Package = callerPackage(2)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Type]; exists {
		return fmt.Errorf("job: type already registered: %s", def.Type)
	}
	r.defs[def.Type] = def
	return nil
}

// Lookup returns the definition for a job type.
func (r *Registry) Lookup(jobType string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[jobType]
	return def, ok
}

// Definitions returns all definitions sorted by type.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	slices.SortFunc(out, func(a, b Definition) int {
		return cmp.Compare(a.Type, b.Type)
	})
	return out
}

// typeName returns the simple Go type name of v, pointer stripped.
func typeName(v any) string {
	if v == nil {
		return ""
	}
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// callerPackage returns the import path of the function skip frames up.
func callerPackage(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	return packageOf(fn.Name())
}

// packageOf extracts the package path from a fully qualified function name
// such as "github.com/acme/app/jobs.init.0".
func packageOf(funcName string) string {
	slash := strings.LastIndex(funcName, "/")
	dot := strings.Index(funcName[slash+1:], ".")
	if dot < 0 {
		return funcName
	}
	return funcName[:slash+1+dot]
}
