package cmd

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/spf13/cobra"
)

var pushForce bool

func resetPushState() {
	pushForce = false
}

func init() {
	pushCmd.Flags().BoolVarP(&pushForce, "force", "f", false, "publish a manifest even when nothing changed")
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Publish local changes as a signed manifest",
	Long: `Splits every changed file into chunks, stores the ones the store does not
already have and publishes a signed manifest of this device's tree.

Files unchanged since the last push or pull are not read again.

Examples:
  rimu push
  rimu push --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting push command")

		opts, wipe, err := repoOptions()
		if err != nil {
			return reportf("%v", err)
		}
		defer wipe()

		spinner, cleanup := startSpinner("Pushing changes...")
		defer cleanup()

		result, err := workflows.Push(context.Background(), workflows.PushOptions{RepoOptions: opts, Force: pushForce})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = formatPushResult(result)
		return nil
	},
}

func formatPushResult(result *workflows.PushResult) string {
	if result.Unchanged {
		return ui.Success.Sprint("✓") + " Nothing to push, working tree matches manifest " + ui.Highlight.Sprint(shortID(result.ManifestID))
	}
	return ui.Success.Sprint("✓") + " Published manifest " + ui.Highlight.Sprint(shortID(result.ManifestID)) + "\n" +
		fmt.Sprintf("  %s, %d rechunked\n", ui.Count(result.Files, "file"), result.FilesChunked) +
		fmt.Sprintf("  %s stored, %d deduplicated (%s saved)",
			ui.Count(int(result.Stats.Stored), "chunk"), result.Stats.Deduped, ui.Bytes(result.Stats.BytesSaved))
}

// shortID trims a manifest ID for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
