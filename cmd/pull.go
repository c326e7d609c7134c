package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/utils"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/spf13/cobra"
)

var pullDryRun bool

func resetPullState() {
	pullDryRun = false
}

func init() {
	pullCmd.Flags().BoolVar(&pullDryRun, "dry-run", false, "show what would change without touching the working tree")
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Merge every trusted device's latest manifest",
	Long: `Verifies the newest manifest of every enrolled device, merges them and
writes the result to the working tree.

Manifests that fail authentication or are signed by a revoked device are
reported and ignored. Files you changed since the last push or pull are never
overwritten. Concurrent edits are kept side by side as conflict copies.

Examples:
  rimu pull
  rimu pull --dry-run`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting pull command")

		opts, wipe, err := repoOptions()
		if err != nil {
			return reportf("%v", err)
		}
		defer wipe()

		spinner, cleanup := startSpinner("Pulling changes...")
		defer cleanup()

		result, err := workflows.Pull(context.Background(), workflows.PullOptions{RepoOptions: opts, DryRun: pullDryRun})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = formatPullResult(result, pullDryRun)
		return nil
	},
}

func formatPullResult(result *workflows.PullResult, dryRun bool) string {
	var b strings.Builder

	if dryRun {
		b.WriteString(ui.Warning.Sprint("[dry-run]") + " Would merge ")
	} else {
		b.WriteString(ui.Success.Sprint("✓") + " Merged ")
	}
	fmt.Fprintf(&b, "%s into %s\n", ui.Count(result.Merged, "manifest"), ui.Highlight.Sprint(shortID(result.ManifestID)))

	if len(result.Written) > 0 {
		fmt.Fprintf(&b, "  Wrote %s:%s", ui.Count(len(result.Written), "file"), utils.FormatPaths(result.Written))
	}
	if len(result.Removed) > 0 {
		fmt.Fprintf(&b, "  Removed %s:%s", ui.Count(len(result.Removed), "file"), utils.FormatPaths(result.Removed))
	}
	if len(result.Written) == 0 && len(result.Removed) == 0 && len(result.Failed) == 0 {
		b.WriteString("  Working tree is up to date\n")
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(&b, "%s Skipped %s with unpushed changes:%s", ui.Warning.Sprint("⚠"), ui.Count(len(result.Skipped), "file"), utils.FormatPaths(result.Skipped))
	}
	for _, f := range result.Failed {
		fmt.Fprintf(&b, "%s Could not update %s: %v\n", ui.Error.Sprint("✗"), ui.Path.Sprint(f.Path), f.Err)
	}
	for _, c := range result.Conflicts {
		fmt.Fprintf(&b, "%s Conflict on %s, %d versions kept\n", ui.Conflict.Sprint("!"), ui.Path.Sprint(c.Path), len(c.Variants))
	}
	for _, err := range result.Rejected {
		fmt.Fprintf(&b, "%s Rejected: %v\n", ui.Error.Sprint("✗"), err)
	}
	if len(result.Conflicts) > 0 {
		b.WriteString(ui.Info.Sprint("→") + " Keep the copy you want, delete the others, then run " + ui.Code.Sprint("rimu push") + "\n")
	}
	if dryRun {
		b.WriteString(ui.Info.Sprint("No changes made.") + " Run without " + ui.Flag.Sprint("--dry-run") + " to apply.")
	}
	return b.String()
}
