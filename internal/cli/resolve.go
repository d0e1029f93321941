package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <resource>",
	Short: "Resolve candidate locations for a resource",
	Long: `Resolve candidate locations for a resource.

Expands the resource's candidate path templates ({home}, {appdata},
{tempdir}, ${ENV}) into the ordered list the acquisition pipeline would
try, highest priority first.

Use --path to resolve an ad-hoc descriptor instead of a registered one;
add --save to persist it to the registry.`,
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

		if jsonOutput {
			outputJSON(candidates)
			return
		}

		fmt.Printf("Candidates for %s (%d):\n", color.Resource(desc.Name), len(candidates))
		for _, cand := range candidates {
			note := ""
			if cand.CreationRequired {
				note = " " + color.Dim("(parent missing)")
			}
			fmt.Printf("  %d. %s [%s]%s\n", cand.Rank+1, cand.Path, cand.Origin, note)
		}
	},
}

func init() {
	addDescriptorFlags(resolveCmd)
	rootCmd.AddCommand(resolveCmd)
}
