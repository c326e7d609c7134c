package cmd

import (
	"fmt"

	logger "github.com/PolarWolf314/rimu/internal/logging"
	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	verbose         bool
	debug           bool
	repoRoot        string
	passphraseStdin bool
	Logger          logger.Logger

	// RootCmd is the top-level rimu command.
	RootCmd = &cobra.Command{
		Use:   "rimu",
		Short: "Encrypted, deduplicating file sync between your devices",
		Long: `Rimu keeps a directory in sync across devices through untrusted storage.

Files are split into content-defined chunks, sealed with keys derived from a
single passphrase and published as signed manifests. Every device verifies
what it pulls against a tree of enrolled device identities.

Examples:
  # Turn the current directory into a repository
  rimu init --name laptop

  # Publish local changes and merge everyone else's
  rimu sync

  # See what changed since the last sync
  rimu status

The passphrase is read from RIMU_PASSPHRASE, from stdin with
--passphrase-stdin, or prompted for on the terminal.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			Logger = logger.Logger{
				Verbose: verbose,
				Debug:   debug,
			}
			Logger.Debugf("Initializing rimu with verbose=%t, debug=%t", verbose, debug)
		},
		Run: func(cmd *cobra.Command, args []string) {
			banner := figure.NewColorFigure("Rimu", "alligator2", "green", true)
			banner.Print()
			fmt.Println()
			_ = cmd.Help()
		},
	}
)

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	RootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug output")
	RootCmd.PersistentFlags().StringVarP(&repoRoot, "repo", "C", "", "repository root (default: nearest .rimu above the working directory)")
	RootCmd.PersistentFlags().BoolVar(&passphraseStdin, "passphrase-stdin", false, "read the passphrase from stdin")

	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(pushCmd)
	RootCmd.AddCommand(pullCmd)
	RootCmd.AddCommand(syncCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(restoreCmd)
	RootCmd.AddCommand(historyCmd)
	RootCmd.AddCommand(logCmd)
	RootCmd.AddCommand(gcCmd)
	RootCmd.AddCommand(doctorCmd)
	RootCmd.AddCommand(deviceCmd)
	RootCmd.AddCommand(configCmd)
}

// GetRootCmd returns the RootCmd for testing.
func GetRootCmd() *cobra.Command {
	return RootCmd
}

// ResetGlobalState resets all command global variables to their default values for testing.
func ResetGlobalState() {
	verbose = false
	debug = false
	repoRoot = ""
	passphraseStdin = false
	Logger = logger.Logger{}
	resetInitState()
	resetPushState()
	resetPullState()
	resetStatusState()
	resetRestoreState()
	resetHistoryState()
	resetLogState()
	resetGCState()
	resetDoctorState()
	resetDeviceState()
	resetConfigState()
	resetCobraFlagState(RootCmd)
}

// resetCobraFlagState clears the Changed bit on every flag so that one test's
// arguments do not leak into the next.
func resetCobraFlagState(c *cobra.Command) {
	reset := func(flag *pflag.Flag) { flag.Changed = false }
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetCobraFlagState(sub)
	}
}
