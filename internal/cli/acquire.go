package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/model"
)

var acquireCmd = &cobra.Command{
	Use:   "acquire <resource>",
	Short: "Run the full acquisition pipeline for a resource",
	Long: `Run the full acquisition pipeline for a resource.

Resolves candidates, validates access, checks integrity, and recovers
through the fallback cascade when the preferred location fails:
alternate path, backup restore, clean recreate, ephemeral stand-in.

The acquisition outcome is recorded in the registry and journal, then the
handle is released. Use this to probe or repair a resource from the shell;
long-lived holds belong to the host application.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()
		desc := requireDescriptor(c, args[0])

		h, status, err := c.Acquire(cmd.Context(), desc)
		if err != nil {
			fmtErr("acquire %s: %v", args[0], err)
			os.Exit(1)
		}
		defer h.Close()

		if jsonOutput {
			outputJSON(status)
			return
		}
		printStatus(status)
	},
}

func printStatus(status *model.ResourceStatus) {
	mode := string(status.Mode)
	switch status.Mode {
	case model.OperatingPrimary:
		mode = color.Success(mode)
	case model.OperatingFallback:
		mode = color.Warning(mode)
	case model.OperatingEphemeral:
		mode = color.Error(mode)
	}
	fmt.Printf("%s: %s\n", color.Resource(status.Resource), mode)
	fmt.Printf("  Path: %s\n", status.Path)
	if status.DataLossWarning {
		fmt.Printf("  %s\n", color.Warning("Warning: prior data may have been lost"))
	}
	for _, attempt := range status.Attempts {
		outcome := string(attempt.Outcome)
		if attempt.Outcome == model.OutcomeSuccess {
			outcome = color.Success(outcome)
		} else if attempt.Outcome == model.OutcomeFailure {
			outcome = color.Error(outcome)
		}
		fmt.Printf("  Recovery: %s -> %s %s\n", attempt.Strategy, outcome, color.Dim(attempt.Detail))
	}
}

func init() {
	addDescriptorFlags(acquireCmd)
	rootCmd.AddCommand(acquireCmd)
}
