package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/model"
)

var checkPath string

var checkCmd = &cobra.Command{
	Use:   "check <resource>",
	Short: "Run an integrity check on a resource",
	Long: `Run an integrity check on a resource.

Checks the structure appropriate for the resource kind: readability and
size for files, PRAGMA quick_check plus required tables for databases,
manifest completeness for bundles.

By default the first resolved candidate is checked; use --target to check
a specific path.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()
		desc := requireDescriptor(c, args[0])

		path := checkPath
		if path == "" {
			candidates, err := c.Resolve(cmd.Context(), desc)
			if err != nil {
				fmtErr("resolve %s: %v", args[0], err)
				os.Exit(1)
			}
			if len(candidates) == 0 {
				fmtErr("no candidate locations for %s", args[0])
				os.Exit(1)
			}
			path = candidates[0].Path
		}

		report := c.Check(cmd.Context(), path, desc.Kind, desc.BundleManifest)

		if jsonOutput {
			outputJSON(report)
		} else {
			state := string(report.State)
			switch report.State {
			case model.IntegrityHealthy:
				state = color.Success(state)
			case model.IntegrityRepairable:
				state = color.Warning(state)
			default:
				state = color.Error(state)
			}
			fmt.Printf("%s: %s\n", path, state)
			for _, d := range report.Details {
				fmt.Printf("  %s\n", color.Dim(d))
			}
		}

		if !report.Healthy() {
			os.Exit(1)
		}
	},
}

func init() {
	addDescriptorFlags(checkCmd)
	checkCmd.Flags().StringVar(&checkPath, "target", "", "check this path instead of the first candidate")
	rootCmd.AddCommand(checkCmd)
}
