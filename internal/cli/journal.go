package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
)

var journalCmd = &cobra.Command{
	Use:   "journal <command>",
	Short: "Inspect the recovery journal",
	Long: `Inspect the recovery journal.

Every acquisition, recovery attempt, backup operation, and repair is
appended to a hash-chained journal. The chain makes silent tampering or
truncation detectable.`,
	DisableFlagsInUseLine: true,
}

var journalShowCmd = &cobra.Command{
	Use:   "show [resource]",
	Short: "Show journal entries",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		resource := ""
		if len(args) == 1 {
			resource = args[0]
		}
		entries, err := c.Journal(resource)
		if err != nil {
			fmtErr("read journal: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(entries)
			return
		}

		if len(entries) == 0 {
			fmt.Println("Journal is empty.")
			return
		}
		for _, e := range entries {
			line := fmt.Sprintf("%s  %-18s %s",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.EventType, color.Resource(e.Resource))
			if e.BackupID != "" {
				line += "  " + color.BackupID(string(e.BackupID))
			}
			fmt.Println(line)
		}
	},
}

var journalVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the journal hash chain",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		if err := c.VerifyJournal(); err != nil {
			if jsonOutput {
				outputJSON(map[string]any{"valid": false, "error": err.Error()})
			} else {
				fmt.Printf("%s: %v\n", color.Error("journal chain broken"), err)
			}
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{"valid": true})
		} else {
			fmt.Println(color.Success("Journal chain verified."))
		}
	},
}

func init() {
	journalCmd.AddCommand(journalShowCmd)
	journalCmd.AddCommand(journalVerifyCmd)
	rootCmd.AddCommand(journalCmd)
}
