package schedule

import (
	"errors"

	"github.com/flemzord/cronsync/internal/job"
)

// ErrConfiguration is matched by every ConfigurationError.
var ErrConfiguration = errors.New("schedule: invalid configuration")

// ConfigurationError reports an invalid or contradictory scheduling
// declaration. It aborts the reconciliation pass that produced it.
type ConfigurationError struct {
	// Identity is the job the declaration belongs to. It may be partial when
	// the identity itself could not be resolved.
	Identity job.Identity
	Reason   string
	Err      error
}

func (e *ConfigurationError) Error() string {
	msg := "schedule: invalid configuration"
	if e.Identity.Name != "" || e.Identity.Group != "" {
		msg += " for job " + e.Identity.String()
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConfiguration) match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
