package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/reconcile"
	"github.com/flemzord/cronsync/internal/schedule"
	"github.com/flemzord/cronsync/internal/scheduler"
	"github.com/flemzord/cronsync/pkg/app"
)

// jobStates reads persisted jobs.
type jobStates interface {
	Jobs(ctx context.Context) ([]scheduler.JobState, error)
	Job(ctx context.Context, id job.Identity) (scheduler.JobState, error)
}

// planner reports declarations and pending changes.
type planner interface {
	Plan(ctx context.Context) (reconcile.Report, error)
	Declarations() ([]schedule.Declaration, error)
}

// jobSummary is one entry of list_jobs.
type jobSummary struct {
	Identity        job.Identity         `json:"identity"`
	Type            string               `json:"type"`
	Schedule        string               `json:"schedule"`
	TrackExecutions bool                 `json:"track_executions"`
	Stored          bool                 `json:"stored"`
	LastRun         *job.ExecutionRecord `json:"last_run,omitempty"`
}

func mcpCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve read-only scheduler tools over MCP (stdio)",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Inspect(flags.config, flags.wireParams(), func(rt *app.Runtime) error {
				return server.ServeStdio(newMCPServer(rt.Engine, rt.Reconciler))
			})
		},
	}
}

func newMCPServer(states jobStates, p planner) *server.MCPServer {
	s := server.NewMCPServer("cronsync", version, server.WithToolCapabilities(false))
	t := &mcpTools{states: states, planner: p}

	s.AddTool(mcp.NewTool("list_jobs",
		mcp.WithDescription("List declared jobs with their resolved schedule and last execution"),
	), t.listJobs)
	s.AddTool(mcp.NewTool("get_job",
		mcp.WithDescription("Get the stored state of a job"),
		mcp.WithString("group", mcp.Required(), mcp.Description("Job group")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Job name")),
	), t.getJob)
	s.AddTool(mcp.NewTool("plan",
		mcp.WithDescription("Show what the next reconciliation would create, reschedule and delete"),
	), t.plan)
	return s
}

type mcpTools struct {
	states  jobStates
	planner planner
}

func (t *mcpTools) listJobs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decls, err := t.planner.Declarations()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stored, err := t.states.Jobs(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	byID := make(map[job.Identity]scheduler.JobState, len(stored))
	for _, st := range stored {
		byID[st.Detail.Identity] = st
	}

	out := make([]jobSummary, 0, len(decls))
	for _, d := range decls {
		sum := jobSummary{
			Identity:        d.Identity,
			Type:            d.Type,
			Schedule:        d.Spec.String(),
			TrackExecutions: d.TrackExecutions,
		}
		if st, ok := byID[d.Identity]; ok {
			sum.Stored = true
			sum.LastRun = st.Detail.Record
		}
		out = append(out, sum)
	}
	return jsonResult(out)
}

func (t *mcpTools) getJob(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	group, err := req.RequireString("group")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	st, err := t.states.Job(ctx, job.Identity{Name: name, Group: group})
	if errors.Is(err, scheduler.ErrJobNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("job %s.%s not found", group, name)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (t *mcpTools) plan(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := t.planner.Plan(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
