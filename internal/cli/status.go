package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
)

var statusCmd = &cobra.Command{
	Use:   "status [resource]",
	Short: "Show resource serving state",
	Long: `Show resource serving state.

With no argument, lists every registered resource with its last recorded
state. With a resource name, shows the detailed status including the
recovery audit trail of the most recent acquisition.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		if len(args) == 1 {
			status, err := c.Status(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, formatResourceNotFoundError(c, args[0]))
				os.Exit(1)
			}
			if jsonOutput {
				outputJSON(status)
				return
			}
			printStatus(status)
			return
		}

		entries, err := c.Resources()
		if err != nil {
			fmtErr("list resources: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(entries)
			return
		}

		if len(entries) == 0 {
			fmt.Println("No resources registered.")
			return
		}
		fmt.Printf("Resources (%d):\n", len(entries))
		for _, e := range entries {
			state := "never acquired"
			if e.LastAcquiredAt != nil {
				state = fmt.Sprintf("%s at %s", e.Mode, e.ActivePath)
			}
			warn := ""
			if e.DataLossWarning {
				warn = " " + color.Warning("(data loss)")
			}
			fmt.Printf("  %s: %s%s\n", color.Resource(e.Descriptor.Name), state, warn)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
