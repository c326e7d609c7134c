package cmd

import (
	"context"

	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/spf13/cobra"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push local changes, then pull everyone else's",
	Long: `Runs push followed by pull with a single unlock of the key hierarchy.

Examples:
  rimu sync
  RIMU_PASSPHRASE=... rimu sync`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting sync command")

		opts, wipe, err := repoOptions()
		if err != nil {
			return reportf("%v", err)
		}
		defer wipe()

		spinner, cleanup := startSpinner("Syncing...")
		defer cleanup()

		result, err := workflows.Sync(context.Background(), workflows.SyncOptions{RepoOptions: opts})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = formatPushResult(result.Push) + "\n" + formatPullResult(result.Pull, false)
		return nil
	},
}
