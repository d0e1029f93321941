package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/haven"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a Haven vault",
	Long: `Initialize a Haven vault.

This creates the state directory with all metadata structures:
  - backups/, records/, intents/ for verified backups
  - journal/ for the hash-chained recovery journal
  - locks/ and registry/ for advisory locks and resource bookkeeping
  - format_version file (version 1)

Use --vault to select a directory; the default is the per-user state dir.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c, err := haven.OpenOrInit(haven.Options{VaultDir: vaultDir})
		if err != nil {
			fmtErr("failed to initialize vault: %v", err)
			os.Exit(1)
		}
		defer c.Close()

		if jsonOutput {
			outputJSON(map[string]any{
				"vault_dir": c.VaultDir(),
				"vault_id":  c.VaultID(),
			})
		} else {
			fmt.Printf("Initialized Haven vault in %s\n", color.Success(c.VaultDir()))
			fmt.Printf("  Vault ID: %s\n", color.Highlight(c.VaultID()))
		}
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
