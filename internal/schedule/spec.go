// Package schedule turns raw job descriptors into validated scheduling specs.
package schedule

import (
	"fmt"
	"time"
)

// Spec is the validated scheduling intent of a job. It is one of Cron,
// FixedDelay or Disabled.
type Spec interface {
	// Kind returns "cron", "fixed_delay" or "disabled".
	Kind() string
	String() string
	isSpec()
}

// Cron fires the job on a cron expression.
type Cron struct {
	Expression string
}

// FixedDelay fires the job every Period, starting InitialDelay after scheduling.
type FixedDelay struct {
	Period       time.Duration
	InitialDelay time.Duration
}

// Disabled excludes the job from the declared set.
type Disabled struct {
	Reason string
}

func (Cron) Kind() string       { return "cron" }
func (FixedDelay) Kind() string { return "fixed_delay" }
func (Disabled) Kind() string   { return "disabled" }

func (c Cron) String() string { return "cron(" + c.Expression + ")" }

func (f FixedDelay) String() string {
	return fmt.Sprintf("every %s after %s", f.Period, f.InitialDelay)
}

func (d Disabled) String() string { return "disabled: " + d.Reason }

func (Cron) isSpec()       {}
func (FixedDelay) isSpec() {}
func (Disabled) isSpec()   {}

// IsDisabled reports whether s excludes its job from scheduling.
func IsDisabled(s Spec) bool {
	_, ok := s.(Disabled)
	return ok
}
