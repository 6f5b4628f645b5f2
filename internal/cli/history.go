package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/confinity/pkg/codec"
	"github.com/jdziat/confinity/pkg/core"
)

func (a *app) historyCommand() *cobra.Command {
	var filter core.InvocationFilter
	var status string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled invocations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter.Status = core.InvocationStatus(status)
			switch filter.Status {
			case "", core.StatusRunning, core.StatusSucceeded, core.StatusFailed:
			default:
				return core.Wrap(core.ErrConfiguration, "", fmt.Errorf("invalid --status %q", status))
			}

			journal, err := a.openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer journal.Close()

			invocations, err := journal.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTARGET\tSTATUS\tEXIT\tDURATION\tSTARTED")
			for _, inv := range invocations {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					inv.ID, inv.Target, inv.Status, inv.ExitCode,
					time.Duration(inv.DurationMs)*time.Millisecond,
					inv.StartedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	f := cmd.Flags()
	f.StringVar(&filter.Target, "target", "", "only this target")
	f.StringVar(&status, "status", "", "only this status (running, succeeded, failed)")
	f.IntVar(&filter.Limit, "limit", 50, "maximum rows")
	return cmd
}

func (a *app) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one journaled invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := a.openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer journal.Close()

			inv, err := journal.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			view := map[string]any{
				"id":        inv.ID,
				"target":    inv.Target,
				"runner":    inv.Runner,
				"status":    inv.Status,
				"exitCode":  inv.ExitCode,
				"duration":  (time.Duration(inv.DurationMs) * time.Millisecond).String(),
				"startedAt": inv.StartedAt.Format(time.RFC3339Nano),
			}
			if inv.CompletedAt != nil {
				view["completedAt"] = inv.CompletedAt.Format(time.RFC3339Nano)
			}
			if inv.TraceID != "" {
				view["traceId"] = inv.TraceID
			}
			if inv.Error != "" {
				view["error"] = inv.Error
			}
			if v, err := codec.Unmarshal(inv.Payload); err == nil {
				view["payload"] = v
			}
			if len(inv.Result) > 0 {
				if v, err := codec.Unmarshal(inv.Result); err == nil {
					view["result"] = v
				}
			}
			return writeJSON(a.stdout, view)
		},
	}
}
