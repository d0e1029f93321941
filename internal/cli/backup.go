package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haven-project/haven/pkg/color"
	"github.com/haven-project/haven/pkg/model"
	"github.com/haven-project/haven/pkg/progress"
)

var backupCmd = &cobra.Command{
	Use:   "backup <command>",
	Short: "Manage verified resource backups",
	Long: `Manage verified resource backups.

Backups are point-in-time payload copies with hash-verified records.
Databases are snapshotted through SQLite's own engine (VACUUM INTO), not
by copying live files. Records are never pruned while unverified or while
still protecting an unconfirmed operation.`,
	DisableFlagsInUseLine: true,
}

var backupSource string

var backupCreateCmd = &cobra.Command{
	Use:   "create <resource>",
	Short: "Create a verified backup",
	Long: `Create a verified backup of a resource.

The payload is copied (or VACUUMed, for databases) into the vault, hashed,
and verified before the record is committed. By default the resource's
last known active path is snapshotted; use --source to override.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		source := backupSource
		desc := requireDescriptor(c, args[0])
		if source == "" {
			entry, err := c.Resource(args[0])
			if err != nil || entry.ActivePath == "" {
				fmtErr("no known path for %s; pass --source", args[0])
				os.Exit(1)
			}
			source = entry.ActivePath
		}

		rec, err := c.Snapshot(cmd.Context(), desc, source)
		if err != nil {
			fmtErr("create backup: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(rec)
		} else {
			fmt.Printf("Created backup %s (%s)\n",
				color.BackupID(string(rec.ID)), formatBytes(rec.SizeBytes))
		}
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list [resource]",
	Short: "List backups",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		resources := args
		if len(resources) == 0 {
			var err error
			resources, err = c.BackupResources()
			if err != nil {
				fmtErr("list backups: %v", err)
				os.Exit(1)
			}
		}

		all := make(map[string][]model.BackupRecord, len(resources))
		for _, resource := range resources {
			recs, err := c.Backups(resource)
			if err != nil {
				fmtErr("list backups for %s: %v", resource, err)
				os.Exit(1)
			}
			all[resource] = recs
		}

		if jsonOutput {
			outputJSON(all)
			return
		}

		if len(all) == 0 {
			fmt.Println("No backups.")
			return
		}
		for _, resource := range resources {
			fmt.Printf("%s:\n", color.Resource(resource))
			for _, rec := range all[resource] {
				flags := ""
				if rec.Verification != model.VerificationVerified {
					flags += " " + color.Warning(string(rec.Verification))
				}
				if !rec.Released {
					flags += " " + color.Dim("protecting")
				}
				fmt.Printf("  %s  %s  %s%s\n",
					color.BackupID(string(rec.ID)),
					rec.CreatedAt.Format("2006-01-02 15:04:05"),
					formatBytes(rec.SizeBytes), flags)
			}
		}
	},
}

var backupVerifyCmd = &cobra.Command{
	Use:   "verify <resource> [backup-id]",
	Short: "Re-verify backup payloads against recorded hashes",
	Long: `Re-verify backup payloads against recorded hashes.

With a backup ID, verifies that one backup. Without, verifies every backup
of the resource. Verification state is persisted back to the record.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()
		resource := args[0]

		var ids []model.BackupID
		if len(args) == 2 {
			ids = append(ids, model.BackupID(args[1]))
		} else {
			recs, err := c.Backups(resource)
			if err != nil {
				fmtErr("list backups for %s: %v", resource, err)
				os.Exit(1)
			}
			for _, rec := range recs {
				ids = append(ids, rec.ID)
			}
		}

		bar := progress.NewTerminal("verify", len(ids), !jsonOutput && len(ids) > 1)
		cb := bar.Callback()

		type verdict struct {
			ID    model.BackupID `json:"backup_id"`
			State string         `json:"state"`
			Error string         `json:"error,omitempty"`
		}
		var results []verdict
		failed := 0
		for i, id := range ids {
			rec, err := c.VerifyBackup(cmd.Context(), resource, id)
			v := verdict{ID: id}
			if err != nil {
				v.State = string(model.VerificationFailed)
				v.Error = err.Error()
				failed++
			} else {
				v.State = string(rec.Verification)
			}
			results = append(results, v)
			cb("verify", i+1, len(ids), id.ShortID())
		}
		bar.Done("")

		if jsonOutput {
			outputJSON(results)
		} else {
			for _, v := range results {
				state := color.Success(v.State)
				if v.Error != "" {
					state = color.Error(v.State) + " " + color.Dim(v.Error)
				}
				fmt.Printf("  %s: %s\n", color.BackupID(string(v.ID)), state)
			}
		}

		if failed > 0 {
			os.Exit(1)
		}
	},
}

var restoreTarget string

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <resource> [backup-id]",
	Short: "Restore a backup",
	Long: `Restore a backup.

Verifies the payload against its recorded hash, materializes it at a
temporary location, then swaps it into place atomically. Without a backup
ID the newest verified backup is restored. Use --to to restore somewhere
other than the original source path.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		var id model.BackupID
		if len(args) == 2 {
			id = model.BackupID(args[1])
		}

		rec, err := c.Restore(cmd.Context(), args[0], id, restoreTarget)
		if err != nil {
			fmtErr("restore: %v", err)
			os.Exit(1)
		}

		target := restoreTarget
		if target == "" {
			target = rec.SourcePath
		}
		if jsonOutput {
			outputJSON(map[string]any{"backup_id": rec.ID, "target": target})
		} else {
			fmt.Printf("Restored %s to %s\n", color.BackupID(string(rec.ID)), color.Success(target))
		}
	},
}

var pruneDryRun bool

var backupPruneCmd = &cobra.Command{
	Use:   "prune [resource]",
	Short: "Apply the retention policy",
	Long: `Apply the retention policy.

Deletes backups beyond the keep-last count or older than the maximum age.
Unverified backups and backups still protecting an unconfirmed operation
are never deleted. Without a resource, prunes everything.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		if pruneDryRun {
			if len(args) == 0 {
				fmtErr("--dry-run requires a resource")
				os.Exit(1)
			}
			plan, err := c.PrunePlan(args[0])
			if err != nil {
				fmtErr("prune plan: %v", err)
				os.Exit(1)
			}
			if jsonOutput {
				outputJSON(plan)
				return
			}
			fmt.Printf("Would delete %d backup(s), keep %d.\n", len(plan.ToDelete), plan.Kept)
			for _, id := range plan.ToDelete {
				fmt.Printf("  %s\n", color.BackupID(string(id)))
			}
			for _, reason := range plan.Skipped {
				fmt.Printf("  %s\n", color.Dim("kept: "+reason))
			}
			return
		}

		if len(args) == 1 {
			result, err := c.Prune(cmd.Context(), args[0])
			if err != nil {
				fmtErr("prune: %v", err)
				os.Exit(1)
			}
			if jsonOutput {
				outputJSON(result)
				return
			}
			fmt.Printf("Deleted %d backup(s), reclaimed %s.\n",
				len(result.Deleted), formatBytes(result.BytesReclaimed))
			return
		}

		results, err := c.PruneAll(cmd.Context())
		if err != nil {
			fmtErr("prune: %v", err)
			os.Exit(1)
		}
		if jsonOutput {
			outputJSON(results)
			return
		}
		deleted, reclaimed := 0, int64(0)
		for _, r := range results {
			deleted += len(r.Deleted)
			reclaimed += r.BytesReclaimed
		}
		fmt.Printf("Deleted %d backup(s) across %d resource(s), reclaimed %s.\n",
			deleted, len(results), formatBytes(reclaimed))
	},
}

var backupStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vault-wide backup statistics",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		stats, err := c.BackupStats()
		if err != nil {
			fmtErr("stats: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(stats)
			return
		}

		fmt.Printf("Backups: %d (%s)\n", stats.TotalCount, formatBytes(stats.TotalBytes))
		if stats.OldestAt != nil {
			fmt.Printf("  Oldest: %s\n", stats.OldestAt.Format("2006-01-02 15:04:05"))
		}
		if stats.NewestAt != nil {
			fmt.Printf("  Newest: %s\n", stats.NewestAt.Format("2006-01-02 15:04:05"))
		}
		if stats.Unverified > 0 {
			fmt.Printf("  %s\n", color.Warning(fmt.Sprintf("Unverified: %d", stats.Unverified)))
		}
		if stats.Unreleased > 0 {
			fmt.Printf("  Protecting: %d\n", stats.Unreleased)
		}
		for resource, count := range stats.PerResource {
			fmt.Printf("  %s: %d\n", color.Resource(resource), count)
		}
	},
}

var diffLivePath string

var backupDiffCmd = &cobra.Command{
	Use:   "diff <resource> <from-id> [to-id]",
	Short: "Compare two backups, or a backup against live content",
	Long: `Compare two backups, or a backup against live content.

Backup IDs may be unique prefixes. With --live, compares <from-id> against
the current content at the given path instead of a second backup.`,
	Args: cobra.RangeArgs(2, 3),
	Run: func(cmd *cobra.Command, args []string) {
		c := requireClient()
		defer c.Close()

		var err error
		var result interface {
			FormatHuman() string
		}
		switch {
		case diffLivePath != "":
			result, err = c.DiffLive(args[0], model.BackupID(args[1]), diffLivePath)
		case len(args) == 3:
			result, err = c.Diff(args[0], model.BackupID(args[1]), model.BackupID(args[2]))
		default:
			fmtErr("need a second backup ID or --live <path>")
			os.Exit(1)
		}
		if err != nil {
			fmtErr("diff: %v", err)
			os.Exit(1)
		}

		if jsonOutput {
			outputJSON(result)
		} else {
			fmt.Print(result.FormatHuman())
		}
	},
}

func init() {
	addDescriptorFlags(backupCreateCmd)
	backupCreateCmd.Flags().StringVar(&backupSource, "source", "", "snapshot this path instead of the last active path")
	backupRestoreCmd.Flags().StringVar(&restoreTarget, "to", "", "restore to this path instead of the original source")
	backupPruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "show what would be deleted without deleting")
	backupDiffCmd.Flags().StringVar(&diffLivePath, "live", "", "compare against live content at this path")

	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupVerifyCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupCmd.AddCommand(backupPruneCmd)
	backupCmd.AddCommand(backupStatsCmd)
	backupCmd.AddCommand(backupDiffCmd)
	rootCmd.AddCommand(backupCmd)
}
