package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flemzord/cronsync/internal/job"
	"github.com/flemzord/cronsync/internal/reconcile"
	"github.com/flemzord/cronsync/internal/schedule"
	"github.com/flemzord/cronsync/pkg/app"
)

func planCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what the next reconciliation would change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Inspect(flags.config, flags.wireParams(), func(rt *app.Runtime) error {
				report, err := rt.Reconciler.Plan(cmd.Context())
				if err != nil {
					return err
				}
				printPlan(os.Stdout, report)
				return nil
			})
		},
	}
}

func jobsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List declared jobs with their resolved schedules",
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Inspect(flags.config, flags.wireParams(), func(rt *app.Runtime) error {
				decls, err := rt.Reconciler.Declarations()
				if err != nil {
					return err
				}
				printDeclarations(os.Stdout, decls)
				return nil
			})
		},
	}
}

func printPlan(w io.Writer, report reconcile.Report) {
	if len(report.Created)+len(report.Rescheduled)+len(report.Deleted)+len(report.Disabled) == 0 {
		fmt.Fprintln(w, "No jobs declared.")
		return
	}
	section := func(title, mark string, ids []job.Identity) {
		if len(ids) == 0 {
			return
		}
		fmt.Fprintf(w, "%s:\n", title)
		for _, id := range ids {
			fmt.Fprintf(w, "  %s %s\n", mark, id)
		}
	}
	section("Create", "+", report.Created)
	section("Reschedule", "~", report.Rescheduled)
	section("Delete", "-", report.Deleted)
	section("Disabled", " ", report.Disabled)
}

func printDeclarations(w io.Writer, decls []schedule.Declaration) {
	if len(decls) == 0 {
		fmt.Fprintln(w, "No jobs declared.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tNAME\tTYPE\tSCHEDULE\tTRACKED")
	for _, d := range decls {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", d.Identity.Group, d.Identity.Name, d.Type, d.Spec, d.TrackExecutions)
	}
	_ = tw.Flush()
}
