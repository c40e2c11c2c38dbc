package schedule

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/job/jobtest"
	"github.com/flemzord/cronsync/internal/placeholder"
)

func candidate(d job.Descriptor) job.Candidate {
	return job.Candidate{Type: "ReportJob", Package: "example.com/app/jobs", Descriptor: d}
}

func TestParse_Cron(t *testing.T) {
	t.Parallel()

	decl, err := Parse(candidate(job.Descriptor{Cron: "0 0 * * * ?"}), "", jobtest.MapResolver{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := job.Identity{Name: "ReportJob", Group: "example.com/app/jobs"}
	if decl.Identity != want {
		t.Errorf("identity = %v, want %v", decl.Identity, want)
	}
	c, ok := decl.Spec.(Cron)
	if !ok || c.Expression != "0 0 * * * ?" {
		t.Errorf("spec = %#v", decl.Spec)
	}
}

func TestParse_FixedDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		desc    job.Descriptor
		period  time.Duration
		initial time.Duration
	}{
		{name: "iso", desc: job.Descriptor{FixedDelay: "PT5S"}, period: 5 * time.Second},
		{name: "go duration", desc: job.Descriptor{FixedDelay: "1m30s", InitialDelay: "10s"}, period: 90 * time.Second, initial: 10 * time.Second},
		{name: "integer millis", desc: job.Descriptor{FixedDelay: "2500"}, period: 2500 * time.Millisecond},
		{name: "integer seconds", desc: job.Descriptor{FixedDelay: "3", InitialDelay: "1", TimeUnit: "SECONDS"}, period: 3 * time.Second, initial: time.Second},
		{name: "negative initial", desc: job.Descriptor{FixedDelay: "PT1M", InitialDelay: "-1"}, period: time.Minute},
		{name: "lower iso", desc: job.Descriptor{FixedDelay: "pt2h"}, period: 2 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			decl, err := Parse(candidate(tt.desc), "", jobtest.MapResolver{})
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			fd, ok := decl.Spec.(FixedDelay)
			if !ok {
				t.Fatalf("spec = %#v, want FixedDelay", decl.Spec)
			}
			if fd.Period != tt.period || fd.InitialDelay != tt.initial {
				t.Errorf("got period=%s initial=%s, want %s %s", fd.Period, fd.InitialDelay, tt.period, tt.initial)
			}
		})
	}
}

func TestParse_Disabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		desc job.Descriptor
	}{
		{name: "enabled false", desc: job.Descriptor{Cron: "0 0 * * * ?", Enabled: "false"}},
		{name: "enabled placeholder", desc: job.Descriptor{FixedDelay: "PT5S", Enabled: "${feature.on:false}"}},
		{name: "cron sentinel", desc: job.Descriptor{Cron: "-"}},
		{name: "cron sentinel via placeholder", desc: job.Descriptor{Cron: "${job.cron}"}},
		{name: "cron sentinel as default", desc: job.Descriptor{Cron: "${report.cron:-}"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			decl, err := Parse(candidate(tt.desc), "", jobtest.MapResolver{"job.cron": "-"})
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if !IsDisabled(decl.Spec) {
				t.Errorf("spec = %#v, want Disabled", decl.Spec)
			}
		})
	}
}

func TestParse_DefaultDisablesWithResolver(t *testing.T) {
	t.Parallel()

	r := placeholder.NewWithEnv(nil, func(string) (string, bool) { return "", false })
	decl, err := Parse(candidate(job.Descriptor{Cron: "${report.cron:-}"}), "", r)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !IsDisabled(decl.Spec) {
		t.Errorf("spec = %#v, want Disabled", decl.Spec)
	}
}

func TestParseDuration_Overflow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		unit time.Duration
	}{
		{raw: "9223372036854775807", unit: time.Millisecond},
		{raw: "-9223372036854775807", unit: time.Second},
		{raw: "200000", unit: 24 * time.Hour},
		{raw: "P400000D", unit: time.Millisecond},
		{raw: "P300Y", unit: time.Millisecond},
	}
	for _, tt := range tests {
		if d, err := ParseDuration(tt.raw, tt.unit); err == nil || !strings.Contains(err.Error(), "overflows") {
			t.Errorf("ParseDuration(%q, %s) = %s, %v; want overflow error", tt.raw, tt.unit, d, err)
		}
	}

	if d, err := ParseDuration("P100Y", time.Millisecond); err != nil || d <= 0 {
		t.Errorf("ParseDuration(P100Y) = %s, %v", d, err)
	}
}

func TestParse_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		desc   job.Descriptor
		reason string
	}{
		{name: "both", desc: job.Descriptor{Cron: "0 0 * * * ?", FixedDelay: "PT10S"}, reason: "mutually exclusive"},
		{name: "neither", desc: job.Descriptor{}, reason: "no scheduling parameters provided"},
		{name: "blank", desc: job.Descriptor{Cron: "  ", FixedDelay: ""}, reason: "no scheduling parameters provided"},
		{name: "bad cron", desc: job.Descriptor{Cron: "not a cron"}, reason: "invalid cron expression"},
		{name: "bad delay", desc: job.Descriptor{FixedDelay: "soon"}, reason: "invalid fixed delay"},
		{name: "zero delay", desc: job.Descriptor{FixedDelay: "0"}, reason: "must be positive"},
		{name: "negative delay", desc: job.Descriptor{FixedDelay: "-PT5S"}, reason: "must be positive"},
		{name: "bad initial", desc: job.Descriptor{FixedDelay: "PT5S", InitialDelay: "later"}, reason: "invalid initial delay"},
		{name: "delay overflow", desc: job.Descriptor{FixedDelay: "9223372036854775807"}, reason: "invalid fixed delay"},
		{name: "iso delay overflow", desc: job.Descriptor{FixedDelay: "P400000D"}, reason: "invalid fixed delay"},
		{name: "initial overflow", desc: job.Descriptor{FixedDelay: "PT5S", InitialDelay: "200000", TimeUnit: "days"}, reason: "invalid initial delay"},
		{name: "bad unit", desc: job.Descriptor{FixedDelay: "5", TimeUnit: "fortnights"}, reason: "invalid time unit"},
		{name: "bad enabled", desc: job.Descriptor{Cron: "@hourly", Enabled: "maybe"}, reason: "invalid enabled value"},
		{name: "unresolved cron", desc: job.Descriptor{Cron: "${missing.cron}"}, reason: "unresolved placeholder ${missing.cron}"},
		{name: "unresolved name", desc: job.Descriptor{Name: "${job.name}", Cron: "@daily"}, reason: "unresolved placeholder ${job.name}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			decl, err := Parse(candidate(tt.desc), "", jobtest.MapResolver{})
			if err == nil {
				t.Fatalf("expected error, got %#v", decl)
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatal("expected *ConfigurationError")
			}
			if !strings.Contains(ce.Reason, tt.reason) {
				t.Errorf("reason = %q, want it to contain %q", ce.Reason, tt.reason)
			}
			if decl != (Declaration{}) {
				t.Errorf("partial declaration returned: %#v", decl)
			}
		})
	}
}

func TestParse_ErrorNamesIdentity(t *testing.T) {
	t.Parallel()

	_, err := Parse(candidate(job.Descriptor{Name: "nightly", Group: "reports"}), "", jobtest.MapResolver{})
	if err == nil || !strings.Contains(err.Error(), "reports.nightly") {
		t.Fatalf("err = %v, want it to name reports.nightly", err)
	}
}

func TestParse_IdentityFallbacks(t *testing.T) {
	t.Parallel()

	r := jobtest.MapResolver{"job.name": "resolved", "default.group": "ops"}

	tests := []struct {
		name         string
		desc         job.Descriptor
		defaultGroup string
		want         job.Identity
	}{
		{
			name: "explicit",
			desc: job.Descriptor{Name: "n", Group: "g", Cron: "@hourly"},
			want: job.Identity{Name: "n", Group: "g"},
		},
		{
			name: "placeholders",
			desc: job.Descriptor{Name: "${job.name}", Group: "${job.group:batch}", Cron: "@hourly"},
			want: job.Identity{Name: "resolved", Group: "batch"},
		},
		{
			name:         "default group",
			desc:         job.Descriptor{Cron: "@hourly"},
			defaultGroup: "${default.group}",
			want:         job.Identity{Name: "ReportJob", Group: "ops"},
		},
		{
			name: "package group",
			desc: job.Descriptor{Name: "  ", Cron: "@hourly"},
			want: job.Identity{Name: "ReportJob", Group: "example.com/app/jobs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			decl, err := Parse(candidate(tt.desc), tt.defaultGroup, r)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if decl.Identity != tt.want {
				t.Errorf("identity = %v, want %v", decl.Identity, tt.want)
			}
		})
	}
}

func TestParse_InitialDelayIgnoredForCron(t *testing.T) {
	t.Parallel()

	decl, err := Parse(candidate(job.Descriptor{Cron: "*/5 * * * *", InitialDelay: "PT1M"}), "", jobtest.MapResolver{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !decl.InitialDelayIgnored {
		t.Error("expected InitialDelayIgnored")
	}
}

func TestParse_CarriesTypeAndTracking(t *testing.T) {
	t.Parallel()

	c := candidate(job.Descriptor{Cron: "@daily"})
	c.TrackExecutions = true
	decl, err := Parse(c, "", jobtest.MapResolver{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if decl.Type != "ReportJob" || !decl.TrackExecutions {
		t.Errorf("decl = %#v", decl)
	}
}

func TestParseCron(t *testing.T) {
	t.Parallel()

	valid := []string{"*/5 * * * *", "0 0 * * * ?", "0 30 3 * * *", "@hourly", "@every 5m", "CRON_TZ=UTC 0 0 * * *"}
	for _, expr := range valid {
		if _, err := ParseCron(expr); err != nil {
			t.Errorf("ParseCron(%q): %v", expr, err)
		}
	}

	invalid := []string{"", "invalid", "60 * * * *", "0 25 * * *", "TZ=Nowhere", "1 2 3 4 5 6 7"}
	for _, expr := range invalid {
		if _, err := ParseCron(expr); err == nil {
			t.Errorf("ParseCron(%q) succeeded, want error", expr)
		}
	}
}

func TestConfigurationError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("inner")
	err := &ConfigurationError{Identity: job.Identity{Name: "n", Group: "g"}, Reason: "bad", Err: inner}
	if !errors.Is(err, inner) {
		t.Error("expected errors.Is to reach the wrapped error")
	}
	if got := err.Error(); got != "schedule: invalid configuration for job g.n: bad: inner" {
		t.Errorf("Error() = %q", got)
	}
}
