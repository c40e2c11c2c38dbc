package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules that accept YAML configuration.
// Configure receives the module's section of the modules map and is only
// called when that section exists.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that acquire resources or publish
// services (a store opening its database, a tracer provider). Services
// registered here are visible to every module loaded afterwards.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator checks a provisioned module. It must not have side effects.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules with background work such as listeners.
// Start runs after every module is loaded and before the scheduler starts.
type Starter interface {
	Start() error
}

// Stopper releases what Provision or Start acquired. Stop runs in reverse
// load order, after the scheduler has drained.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Reloader is implemented by modules that apply a new configuration without
// a restart.
type Reloader interface {
	Reload(ctx *AppContext) error
}
