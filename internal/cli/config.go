package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haven-project/haven/internal/vault"
	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage Haven configuration",
	Long: `Manage Haven configuration stored in <vault>/config.yaml.

Configuration covers the application name used for implicit candidate
paths, logging, retry and retention policies, lock leases, backup
compression, remedy languages, and webhook endpoints.`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()
		cfg := c.Config()

		if jsonOutput {
			outputJSON(cfg)
			return
		}

		fmt.Printf("# Haven configuration\n# Location: %s/config.yaml\n\n", c.VaultDir())
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmtErr("marshal config: %v", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file to <vault>/config.yaml.

Fails if the file already exists.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dir := vaultDir
		if dir == "" {
			var err error
			dir, err = vault.DefaultDir()
			if err != nil {
				fmtErr("%v", err)
				os.Exit(1)
			}
		}

		cfgPath := dir + "/config.yaml"
		if _, err := os.Stat(cfgPath); err == nil {
			fmtErr("config already exists at %s", cfgPath)
			os.Exit(1)
		}

		if err := config.Save(dir, config.Default()); err != nil {
			fmtErr("write config: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(map[string]any{"path": cfgPath})
		} else {
			fmt.Printf("Wrote default configuration to %s\n", color.Success(cfgPath))
		}
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
