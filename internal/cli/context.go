package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/haven"
	"github.com/haven-project/haven/pkg/model"
)

// requireClient opens the vault selected by --vault (or the per-user
// default) and returns a client, or exits with error.
func requireClient() *haven.Client {
	c, err := haven.Open(haven.Options{VaultDir: vaultDir})
	if err != nil {
		fmt.Fprintln(os.Stderr, formatNoVaultError(err))
		os.Exit(1)
	}
	return c
}

// requireDescriptor loads the descriptor for a registered resource, or builds
// one from the descriptor flags when templates were given on the command line.
func requireDescriptor(c *haven.Client, name string) model.ResourceDescriptor {
	if len(descTemplates) > 0 {
		desc := model.ResourceDescriptor{
			Name:               name,
			Kind:               model.ResourceKind(descKind),
			CandidateTemplates: descTemplates,
			Mode:               model.AccessMode(descMode),
			BundleManifest:     descManifest,
		}
		if !desc.Kind.Valid() {
			fmtErr("invalid kind %q (must be file, database, or bundle)", descKind)
			os.Exit(1)
		}
		if !desc.Mode.Valid() {
			fmtErr("invalid mode %q (must be ro, rw, or create)", descMode)
			os.Exit(1)
		}
		if descSave {
			if err := c.Register(desc); err != nil {
				fmtErr("register resource: %v", err)
				os.Exit(1)
			}
		}
		return desc
	}

	entry, err := c.Resource(name)
	if err != nil {
		fmt.Fprintln(os.Stderr, formatResourceNotFoundError(c, name))
		os.Exit(1)
	}
	return entry.Descriptor
}

var (
	descKind      string
	descMode      string
	descTemplates []string
	descManifest  []string
	descSave      bool
)

// addDescriptorFlags attaches the ad-hoc descriptor flags shared by the
// pipeline commands (resolve, validate, check, acquire).
func addDescriptorFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&descKind, "kind", "file", "resource kind (file, database, bundle)")
	cmd.Flags().StringVar(&descMode, "mode", "rw", "access mode (ro, rw, create)")
	cmd.Flags().StringSliceVar(&descTemplates, "path", nil, "candidate path template, highest priority first (can be repeated)")
	cmd.Flags().StringSliceVar(&descManifest, "manifest", nil, "required bundle member (can be repeated)")
	cmd.Flags().BoolVar(&descSave, "save", false, "persist the descriptor to the resource registry")
}

// formatBytes renders a byte count in a human-readable unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func fmtErr(format string, args ...any) {
	prefix := "haven: "
	if color.Enabled() {
		prefix = color.Error("haven:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
