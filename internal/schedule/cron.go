package schedule

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// DisabledCron is the cron value that disables a job.
const DisabledCron = "-"

// parser accepts 5 or 6 field expressions (leading seconds optional) and
// descriptors such as @hourly or @every 5m. "?" is accepted in the day fields.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron parses a cron expression into a robfig schedule.
func ParseCron(expr string) (sched cron.Schedule, err error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty cron expression")
	}
	// The robfig parser panics on some malformed TZ= prefixes.
	defer func() {
		if r := recover(); r != nil {
			sched = nil
			err = fmt.Errorf("malformed cron expression %q", expr)
		}
	}()
	return parser.Parse(expr)
}
