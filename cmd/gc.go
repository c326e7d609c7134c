package cmd

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	gcDryRun    bool
	gcRetention int
)

func resetGCState() {
	gcDryRun = false
	gcRetention = -1
}

func init() {
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "report what would be removed without deleting anything")
	gcCmd.Flags().IntVar(&gcRetention, "keep", -1, "manifests to keep per device, 0 keeps all (default: from config)")
}

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Prune old manifests and delete unreferenced chunks",
	Long: `Removes manifests beyond the retention limit, then deletes every chunk that
no remaining manifest references.

gc refuses to run if any published manifest cannot be decrypted, since the
chunks it references cannot be told apart from garbage.

Do not run gc while another device is pushing to the same store.

Examples:
  rimu gc --dry-run
  rimu gc --keep 10`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting gc command")

		opts, wipe, err := repoOptions()
		if err != nil {
			return reportf("%v", err)
		}
		defer wipe()

		spinner, cleanup := startSpinner("Collecting garbage...")
		defer cleanup()

		result, err := workflows.GC(context.Background(), workflows.GCOptions{
			RepoOptions: opts,
			DryRun:      gcDryRun,
			Retention:   gcRetention,
		})
		if err != nil {
			return fail(spinner, err)
		}

		removed, scanned := 0, 0
		if result.Chunks != nil {
			removed, scanned = len(result.Chunks.Removed), result.Chunks.Scanned
		}
		if gcDryRun {
			spinner.FinalMSG = ui.Warning.Sprint("[dry-run]") +
				" Would prune " + ui.Count(len(result.PrunedManifests), "manifest") + fmt.Sprintf(" and remove %d of %s\n", removed, ui.Count(scanned, "chunk")) +
				ui.Info.Sprint("No changes made.") + " Run without " + ui.Flag.Sprint("--dry-run") + " to execute."
			return nil
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") +
			" Pruned " + ui.Count(len(result.PrunedManifests), "manifest") + fmt.Sprintf(" and removed %d of %s", removed, ui.Count(scanned, "chunk"))
		return nil
	},
}
