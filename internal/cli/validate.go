package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/model"
)

var validateCmd = &cobra.Command{
	Use:   "validate <resource>",
	Short: "Probe access to a resource's candidate locations",
	Long: `Probe access to a resource's candidate locations.

Runs the access validator over every resolved candidate: read, write, and
create probes with actual filesystem operations, not permission-bit
guesses. Reports whether each candidate satisfies the requested mode.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()
		desc := requireDescriptor(c, args[0])

		candidates, err := c.Resolve(cmd.Context(), desc)
		if err != nil {
			fmtErr("resolve %s: %v", args[0], err)
			os.Exit(1)
		}

		type probed struct {
			Candidate model.Candidate    `json:"candidate"`
			Result    model.AccessResult `json:"result"`
			Satisfies bool               `json:"satisfies"`
		}
		var results []probed
		anySatisfies := false
		for _, cand := range candidates {
			result, err := c.Validate(cmd.Context(), cand.Path, desc.Mode)
			if err != nil {
				fmtErr("validate %s: %v", cand.Path, err)
				os.Exit(1)
			}
			ok := result.Satisfies(desc.Mode)
			anySatisfies = anySatisfies || ok
			results = append(results, probed{Candidate: cand, Result: result, Satisfies: ok})
		}

		if jsonOutput {
			outputJSON(results)
		} else {
			fmt.Printf("Access for %s (mode %s):\n", color.Resource(desc.Name), desc.Mode)
			for _, p := range results {
				verdict := color.Error("unusable")
				if p.Satisfies {
					verdict = color.Success("ok")
				}
				fmt.Printf("  %d. %s: %s (read=%v write=%v create=%v)\n",
					p.Candidate.Rank+1, p.Candidate.Path, verdict,
					p.Result.CanRead, p.Result.CanWrite, p.Result.CanCreate)
				if p.Result.Detail != "" {
					fmt.Printf("     %s\n", color.Dim(p.Result.Detail))
				}
			}
		}

		if !anySatisfies {
			os.Exit(1)
		}
	},
}

func init() {
	addDescriptorFlags(validateCmd)
	rootCmd.AddCommand(validateCmd)
}
