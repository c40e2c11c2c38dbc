// Package placeholder resolves ${key} tokens embedded in configuration strings
// against configured properties and the process environment.
package placeholder

import (
	"os"
	"regexp"
	"strings"
	"sync"
)

// pattern matches ${key} and ${key:default}. The default is everything after
// the first colon, so ${key:-} defaults to "-", the disabled cron sentinel.
var pattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.\-]*)(?::([^}]*))?\}`)

// Resolver substitutes placeholders. Lookup order for a key is: configured
// properties, the environment variable of the same name, then the
// environment variable in upper snake case (heartbeat.interval → HEARTBEAT_INTERVAL).
// Tokens that cannot be resolved and carry no default are left untouched.
// All methods are safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	props     map[string]string
	lookupEnv func(string) (string, bool)
}

// New creates a resolver over props. A nil map is treated as empty.
func New(props map[string]string) *Resolver {
	r := &Resolver{lookupEnv: os.LookupEnv}
	r.SetProperties(props)
	return r
}

// NewWithEnv creates a resolver with a custom environment lookup.
func NewWithEnv(props map[string]string, lookupEnv func(string) (string, bool)) *Resolver {
	r := New(props)
	if lookupEnv != nil {
		r.lookupEnv = lookupEnv
	}
	return r
}

// SetProperties replaces the property set, e.g. after a configuration reload.
func (r *Resolver) SetProperties(props map[string]string) {
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}
	r.mu.Lock()
	r.props = cp
	r.mu.Unlock()
}

// Resolve replaces every resolvable placeholder in raw. It has no side effects
// and resolving an already resolved string returns it unchanged.
func (r *Resolver) Resolve(raw string) string {
	if !strings.Contains(raw, "${") {
		return raw
	}
	return pattern.ReplaceAllStringFunc(raw, func(match string) string {
		subs := pattern.FindStringSubmatch(match)
		if val, ok := r.lookup(subs[1]); ok {
			return val
		}
		if strings.Contains(match, ":") {
			return subs[2]
		}
		return match
	})
}

func (r *Resolver) lookup(key string) (string, bool) {
	r.mu.RLock()
	val, ok := r.props[key]
	r.mu.RUnlock()
	if ok {
		return val, true
	}
	if val, ok := r.lookupEnv(key); ok {
		return val, true
	}
	return r.lookupEnv(envName(key))
}

// Unresolved returns the keys of placeholders still present in s.
func Unresolved(s string) []string {
	var keys []string
	for _, subs := range pattern.FindAllStringSubmatch(s, -1) {
		keys = append(keys, subs[1])
	}
	return keys
}

func envName(key string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}
