package job

import "errors"

// ErrDiscovery is matched by every DiscoveryError.
var ErrDiscovery = errors.New("job: discovery failed")

// DiscoveryError reports that the set of candidate jobs could not be determined.
type DiscoveryError struct {
	Reason string
}

func (e *DiscoveryError) Error() string {
	return "job: discovery failed: " + e.Reason
}

// Is makes errors.Is(err, ErrDiscovery) match.
func (e *DiscoveryError) Is(target error) bool {
	return target == ErrDiscovery
}
