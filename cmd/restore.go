package cmd

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/utils"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	restoreFrom      string
	restoreTarget    string
	restoreOverwrite bool
)

func resetRestoreState() {
	restoreFrom = ""
	restoreTarget = ""
	restoreOverwrite = false
}

func init() {
	restoreCmd.Flags().StringVar(&restoreFrom, "from", "", "manifest storage key to restore from (see rimu history)")
	restoreCmd.Flags().StringVarP(&restoreTarget, "target", "t", "", "directory to write files below (default: repository root)")
	restoreCmd.Flags().BoolVar(&restoreOverwrite, "overwrite", false, "replace files that already exist")
}

var restoreCmd = &cobra.Command{
	Use:   "restore [paths...]",
	Short: "Write files from a manifest back to disk",
	Long: `Restores files from the last pushed or pulled manifest, or from any
published manifest with --from. Every chunk is authenticated before it is
written.

Existing files are skipped unless --overwrite is set.

Examples:
  # Bring back a deleted file
  rimu restore notes/todo.md

  # Recover an old version into a scratch directory
  rimu restore --from manifests/<device>/00000000000000000003 --target /tmp/old notes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting restore command")

		opts, wipe, err := repoOptions()
		if err != nil {
			return reportf("%v", err)
		}
		defer wipe()

		spinner, cleanup := startSpinner("Restoring files...")
		defer cleanup()

		result, err := workflows.Restore(context.Background(), workflows.RestoreOptions{
			RepoOptions: opts,
			Paths:       args,
			From:        restoreFrom,
			Target:      restoreTarget,
			Overwrite:   restoreOverwrite,
		})
		if err != nil {
			return fail(spinner, err)
		}

		msg := ui.Success.Sprint("✓") + fmt.Sprintf(" Restored %s, %s from manifest ", ui.Count(len(result.Restored), "file"), ui.Bytes(result.Bytes)) +
			ui.Highlight.Sprint(shortID(result.ManifestID))
		if len(result.Restored) > 0 {
			msg += utils.FormatPaths(result.Restored)
		}
		if len(result.Skipped) > 0 {
			msg += "\n" + ui.Warning.Sprint("⚠") + " Skipped " + ui.Count(len(result.Skipped), "existing file") + ":" + utils.FormatPaths(result.Skipped) +
				ui.Info.Sprint("→") + " Use " + ui.Flag.Sprint("--overwrite") + " to replace them"
		}
		spinner.FinalMSG = msg
		return nil
	},
}
