package job

// Descriptor is the raw scheduling declaration of a job. Every field may
// contain ${...} placeholders and is resolved on each reconciliation pass.
type Descriptor struct {
	// Name overrides the job name. Defaults to the job type.
	Name string

	// Group overrides the job group. Defaults to the configured default group,
	// then to the registering package path.
	Group string

	// Cron is a 5 or 6 field cron expression. "-" disables the job.
	Cron string

	// FixedDelay is the repeat period: ISO-8601 ("PT10S"), Go duration ("10s"),
	// or an integer in TimeUnit.
	FixedDelay string

	// InitialDelay delays the first fire of a fixed-delay job.
	InitialDelay string

	// TimeUnit applies to integer FixedDelay/InitialDelay values.
	// Defaults to milliseconds.
	TimeUnit string

	// Enabled gates scheduling. Empty means enabled.
	Enabled string
}

// Candidate is a job declaration produced by discovery.
type Candidate struct {
	// Type is the registered job type, used as the default job name.
	Type string

	// Package is the import path of the package that registered the job.
	Package string

	Descriptor Descriptor

	// TrackExecutions enables execution record writeback.
	TrackExecutions bool
}
