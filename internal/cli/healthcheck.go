package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/model"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck [resource]",
	Short: "Re-validate registered resources",
	Long: `Re-validate registered resources.

Non-destructively probes every registered resource at its last known
location: access validation plus the kind-appropriate integrity check.
Exits non-zero when any resource is unhealthy.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		entries, err := c.Resources()
		if err != nil {
			fmtErr("list resources: %v", err)
			os.Exit(1)
		}
		if len(args) == 1 {
			entry, err := c.Resource(args[0])
			if err != nil {
				fmt.Fprintln(os.Stderr, formatResourceNotFoundError(c, args[0]))
				os.Exit(1)
			}
			entries = entries[:0]
			entries = append(entries, entry)
		}

		type checkResult struct {
			Resource string `json:"resource"`
			Path     string `json:"path,omitempty"`
			Healthy  bool   `json:"healthy"`
			Detail   string `json:"detail,omitempty"`
		}
		var results []checkResult
		healthy := true
		for _, e := range entries {
			r := checkResult{Resource: e.Descriptor.Name, Path: e.ActivePath, Healthy: true}
			switch {
			case e.LastAcquiredAt == nil:
				r.Detail = "never acquired"
			case e.Mode == model.OperatingEphemeral:
				r.Detail = "ephemeral stand-in"
			default:
				if _, err := os.Stat(e.ActivePath); err != nil {
					r.Healthy = false
					r.Detail = "active path missing"
					break
				}
				access, err := c.Validate(cmd.Context(), e.ActivePath, e.Descriptor.Mode)
				if err != nil || !access.Satisfies(e.Descriptor.Mode) {
					r.Healthy = false
					r.Detail = "access degraded"
					break
				}
				report := c.Check(cmd.Context(), e.ActivePath, e.Descriptor.Kind, e.Descriptor.BundleManifest)
				if !report.Healthy() {
					r.Healthy = false
					r.Detail = fmt.Sprintf("integrity %s", report.State)
				}
			}
			healthy = healthy && r.Healthy
			results = append(results, r)
		}

		if jsonOutput {
			outputJSON(results)
		} else {
			for _, r := range results {
				verdict := color.Success("healthy")
				if !r.Healthy {
					verdict = color.Error("unhealthy")
				}
				line := fmt.Sprintf("  %s: %s", color.Resource(r.Resource), verdict)
				if r.Detail != "" {
					line += " " + color.Dim("("+r.Detail+")")
				}
				fmt.Println(line)
			}
		}

		if !healthy {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}
