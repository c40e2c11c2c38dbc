package job

import (
	"runtime/debug"
	"slices"
	"strings"
	"sync"
)

// Catalog enumerates registered jobs below a set of root packages.
type Catalog struct {
	// Registry defaults to DefaultRegistry.
	Registry *Registry

	// Roots restricts discovery to jobs registered under these package paths.
	// When empty, the main module path is used. Change it with SetRoots once
	// the catalog is in use.
	Roots []string

	// MainModule returns the root used when Roots is empty. Defaults to the
	// main module path from the binary's build info.
	MainModule func() string

	mu sync.RWMutex
}

// SetRoots replaces the scan roots, e.g. after a configuration reload.
func (c *Catalog) SetRoots(roots []string) {
	c.mu.Lock()
	c.Roots = slices.Clone(roots)
	c.mu.Unlock()
}

// ListCandidateJobs returns the candidates registered below the catalog roots,
// sorted by type.
func (c *Catalog) ListCandidateJobs() ([]Candidate, error) {
	roots, err := c.roots()
	if err != nil {
		return nil, err
	}

	reg := c.Registry
	if reg == nil {
		reg = DefaultRegistry
	}

	var out []Candidate
	for _, def := range reg.Definitions() {
		if !underAny(def.Package, roots) {
			continue
		}
		out = append(out, Candidate{
			Type:            def.Type,
			Package:         def.Package,
			Descriptor:      def.Schedule,
			TrackExecutions: def.TrackExecutions,
		})
	}
	return out, nil
}

func (c *Catalog) roots() ([]string, error) {
	c.mu.RLock()
	configured := c.Roots
	c.mu.RUnlock()

	var roots []string
	for _, r := range configured {
		if r = strings.TrimSpace(r); r != "" {
			roots = append(roots, strings.TrimSuffix(r, "/"))
		}
	}
	if len(roots) > 0 {
		return roots, nil
	}

	mainModule := c.MainModule
	if mainModule == nil {
		mainModule = buildInfoMainModule
	}
	if root := mainModule(); root != "" {
		return []string{root}, nil
	}
	return nil, &DiscoveryError{Reason: "unable to determine root package for job scanning; set scheduler.packages_to_scan"}
}

func buildInfoMainModule() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return info.Main.Path
}

func underAny(pkg string, roots []string) bool {
	for _, root := range roots {
		if pkg == root || strings.HasPrefix(pkg, root+"/") {
			return true
		}
	}
	return false
}
