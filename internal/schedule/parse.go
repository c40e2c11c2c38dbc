package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/placeholder"
)

// Resolver substitutes ${...} placeholders in raw configuration strings.
type Resolver interface {
	Resolve(raw string) string
}

// Declaration is a fully resolved and validated job declaration.
type Declaration struct {
	Identity        job.Identity
	Spec            Spec
	Type            string
	TrackExecutions bool

	// InitialDelayIgnored is set when an initial delay was declared on a cron job.
	InitialDelayIgnored bool
}

// Parse resolves the candidate's descriptor and validates it into a
// Declaration. It never returns a partial declaration: on error the
// Declaration is the zero value and the error is a *ConfigurationError.
func Parse(c job.Candidate, defaultGroup string, r Resolver) (Declaration, error) {
	d := c.Descriptor
	name := strings.TrimSpace(r.Resolve(d.Name))
	group := strings.TrimSpace(r.Resolve(d.Group))
	if name == "" {
		name = c.Type
	}
	if group == "" {
		group = strings.TrimSpace(r.Resolve(defaultGroup))
	}
	if group == "" {
		group = c.Package
	}
	id := job.Identity{Name: name, Group: group}

	fail := func(reason string, err error) (Declaration, error) {
		return Declaration{}, &ConfigurationError{Identity: id, Reason: reason, Err: err}
	}

	if name == "" || group == "" {
		return fail("job name and group must not be empty", nil)
	}
	if msg := checkResolved("name", name); msg != "" {
		return fail(msg, nil)
	}
	if msg := checkResolved("group", group); msg != "" {
		return fail(msg, nil)
	}

	decl := Declaration{Identity: id, Type: c.Type, TrackExecutions: c.TrackExecutions}

	if enabled := strings.TrimSpace(r.Resolve(d.Enabled)); enabled != "" {
		if msg := checkResolved("enabled", enabled); msg != "" {
			return fail(msg, nil)
		}
		on, err := strconv.ParseBool(enabled)
		if err != nil {
			return fail("invalid enabled value "+strconv.Quote(enabled), err)
		}
		if !on {
			decl.Spec = Disabled{Reason: "enabled=false"}
			return decl, nil
		}
	}

	cronExpr := strings.TrimSpace(r.Resolve(d.Cron))
	fixedDelay := strings.TrimSpace(r.Resolve(d.FixedDelay))
	initialDelay := strings.TrimSpace(r.Resolve(d.InitialDelay))
	timeUnit := strings.TrimSpace(r.Resolve(d.TimeUnit))

	for _, f := range []struct{ field, val string }{
		{"cron", cronExpr},
		{"fixed delay", fixedDelay},
		{"initial delay", initialDelay},
		{"time unit", timeUnit},
	} {
		if msg := checkResolved(f.field, f.val); msg != "" {
			return fail(msg, nil)
		}
	}

	switch {
	case cronExpr != "" && fixedDelay != "":
		return fail("mutually exclusive schedule parameters: both cron and fixed delay are set", nil)

	case fixedDelay != "":
		unit, err := ParseTimeUnit(timeUnit)
		if err != nil {
			return fail("invalid time unit", err)
		}
		period, err := ParseDuration(fixedDelay, unit)
		if err != nil {
			return fail("invalid fixed delay", err)
		}
		if period <= 0 {
			return fail("fixed delay must be positive, got "+period.String(), nil)
		}
		var initial time.Duration
		if initialDelay != "" {
			initial, err = ParseDuration(initialDelay, unit)
			if err != nil {
				return fail("invalid initial delay", err)
			}
			if initial < 0 {
				initial = 0
			}
		}
		decl.Spec = FixedDelay{Period: period, InitialDelay: initial}
		return decl, nil

	case cronExpr == DisabledCron:
		decl.Spec = Disabled{Reason: "cron disabled"}
		return decl, nil

	case cronExpr != "":
		if _, err := ParseCron(cronExpr); err != nil {
			return fail("invalid cron expression "+strconv.Quote(cronExpr), err)
		}
		decl.Spec = Cron{Expression: cronExpr}
		decl.InitialDelayIgnored = initialDelay != ""
		return decl, nil

	default:
		return fail("no scheduling parameters provided", nil)
	}
}

// checkResolved returns a failure reason when val still holds a placeholder.
func checkResolved(field, val string) string {
	if keys := placeholder.Unresolved(val); len(keys) > 0 {
		return "unresolved placeholder ${" + keys[0] + "} in " + field
	}
	return ""
}
