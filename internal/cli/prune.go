package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/confinity/pkg/core"
	"github.com/jdziat/confinity/pkg/schedule"
)

func (a *app) pruneCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete finished invocations older than the retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			retention := a.cfg.Journal.Retention
			if cmd.Flags().Changed("older-than") {
				retention = olderThan
			}
			if retention < 0 {
				return core.Wrap(core.ErrConfiguration, "", fmt.Errorf("--older-than must not be negative"))
			}

			journal, err := a.openJournal(cmd.Context())
			if err != nil {
				return err
			}
			defer journal.Close()

			// A zero retention prunes every finished invocation.
			if retention == 0 {
				retention = time.Nanosecond
			}
			pruner, err := schedule.NewPruner(journal, retention, nil, schedule.WithLogger(a.logger))
			if err != nil {
				return err
			}
			n, err := pruner.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "pruned %d invocation(s)\n", n)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "retention override, e.g. 24h (default: journal.retention)")
	return cmd
}
