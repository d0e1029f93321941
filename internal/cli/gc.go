package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
)

var gcDryRun bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Reclaim vault debris left by crashes",
	Long: `Reclaim vault debris left by crashes.

Removes payload directories no backup record points at, stale snapshot
intents, abandoned atomic-write temp files, and expired lock files.
Backed-up data referenced by any record is never touched. Use --dry-run
to see the plan without deleting.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		plan, err := c.PlanSweep()
		if err != nil {
			fmtErr("plan sweep: %v", err)
			os.Exit(1)
		}

		if gcDryRun {
			if jsonOutput {
				outputJSON(plan)
				return
			}
			if plan.Total() == 0 {
				fmt.Println("Nothing to reclaim.")
				return
			}
			fmt.Printf("Would remove %d entries (~%s):\n", plan.Total(), formatBytes(plan.EstimatedBytes))
			for _, p := range plan.OrphanPayloads {
				fmt.Printf("  orphan payload: %s\n", color.Dim(p))
			}
			for _, p := range plan.StaleIntents {
				fmt.Printf("  stale intent:   %s\n", color.Dim(p))
			}
			for _, p := range plan.TempFiles {
				fmt.Printf("  temp file:      %s\n", color.Dim(p))
			}
			for _, p := range plan.ExpiredLocks {
				fmt.Printf("  expired lock:   %s\n", color.Dim(p))
			}
			return
		}

		result, err := c.Sweep(plan.PlanID)
		if err != nil {
			fmtErr("sweep: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
		} else {
			fmt.Printf("Removed %d entries, reclaimed %s.\n",
				result.Removed, formatBytes(result.BytesReclaimed))
		}
	},
}

func init() {
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "show what would be removed without removing")
	rootCmd.AddCommand(gcCmd)
}
