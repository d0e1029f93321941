package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/model"
)

var lockCmd = &cobra.Command{
	Use:   "lock <command>",
	Short: "Inspect and manage advisory resource locks",
	Long: `Inspect and manage advisory resource locks.

Acquisitions hold a lease-based advisory lock per resource. Expired leases
are taken over automatically; 'lock release' is the operator escape hatch
for a holder that crashed without releasing.`,
	DisableFlagsInUseLine: true,
}

var lockStatusCmd = &cobra.Command{
	Use:   "status <resource>",
	Short: "Show lock state for a resource",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		state, rec, err := c.LockStatus(args[0])
		if err != nil {
			fmtErr("lock status: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{"state": state, "record": rec})
			return
		}

		switch state {
		case model.LockStateFree:
			fmt.Printf("%s: %s\n", color.Resource(args[0]), color.Success("free"))
		case model.LockStateExpired:
			fmt.Printf("%s: %s (session %s, expired %s)\n",
				color.Resource(args[0]), color.Warning("expired"),
				rec.SessionID, rec.ExpiresAt.Format("15:04:05"))
		default:
			fmt.Printf("%s: %s (session %s, expires %s)\n",
				color.Resource(args[0]), color.Highlight("held"),
				rec.SessionID, rec.ExpiresAt.Format("15:04:05"))
		}
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release <resource>",
	Short: "Force-release a resource lock",
	Long: `Force-release a resource lock regardless of holder.

Only use this when the holding process is known to be dead; releasing a
live holder's lock allows concurrent mutation.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		if err := c.ForceUnlock(args[0]); err != nil {
			fmtErr("release lock: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{"resource": args[0], "released": true})
		} else {
			fmt.Printf("Released lock for %s\n", color.Resource(args[0]))
		}
	},
}

func init() {
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockReleaseCmd)
	rootCmd.AddCommand(lockCmd)
}
