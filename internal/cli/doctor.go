package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
)

var doctorStrict bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check vault health",
	Long: `Check vault health.

Runs diagnostic checks over the vault: format version, registry
consistency, backup record checksums, payload presence, stale intents,
expired locks, and the journal hash chain. Use --strict to also re-hash
every backup payload.`,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		result, err := c.Doctor(doctorStrict)
		if err != nil {
			fmtErr("doctor: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
			if !result.Healthy {
				os.Exit(1)
			}
			return
		}

		if len(result.Findings) == 0 {
			fmt.Println(color.Success("Vault is healthy."))
			return
		}

		fmt.Printf("Findings (%d):\n", len(result.Findings))
		for _, f := range result.Findings {
			severity := f.Severity
			switch f.Severity {
			case "critical":
				severity = color.Error(severity)
			case "warning":
				severity = color.Warning(severity)
			default:
				severity = color.Dim(severity)
			}
			fmt.Printf("  [%s] %s: %s\n", severity, f.Category, f.Description)
		}

		if !result.Healthy {
			os.Exit(1)
		}
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "re-hash every backup payload")
	rootCmd.AddCommand(doctorCmd)
}
