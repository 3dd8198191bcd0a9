package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List or run maintenance jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled maintenance jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := core.Scheduler.Jobs()
		if flagJSON {
			return writeJSON(cmd, names)
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job>... | all",
	Short: "Run maintenance jobs once, outside their schedule",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names := args
		if len(args) == 1 && args[0] == "all" {
			names = core.Scheduler.Jobs()
		}

		failed := 0
		for _, name := range names {
			if err := core.Scheduler.RunNow(cmd.Context(), name); err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%s: failed: %v\n", name, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d jobs failed", failed, len(names))
		}
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd, jobsRunCmd)
	rootCmd.AddCommand(jobsCmd)
}
