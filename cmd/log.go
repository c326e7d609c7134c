package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/PolarWolf314/rimu/internal/audit"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	logLimit     int
	logReverse   bool
	logDevice    string
	logOperation string
	logSince     string
	logUntil     string
	logOneline   bool
	logJSON      bool
)

func init() {
	logCmd.Flags().IntVarP(&logLimit, "number", "n", 0, "limit number of entries shown")
	logCmd.Flags().BoolVar(&logReverse, "reverse", false, "show most recent entries first")
	logCmd.Flags().StringVar(&logDevice, "device", "", "filter by device name")
	logCmd.Flags().StringVar(&logOperation, "operation", "", "filter by operation type (comma-separated)")
	logCmd.Flags().StringVar(&logSince, "since", "", "show entries after date (YYYY-MM-DD)")
	logCmd.Flags().StringVar(&logUntil, "until", "", "show entries before date (YYYY-MM-DD)")
	logCmd.Flags().BoolVar(&logOneline, "oneline", false, "compact one-line format")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "output as JSON array")
}

func resetLogState() {
	logLimit = 0
	logReverse = false
	logDevice = ""
	logOperation = ""
	logSince = ""
	logUntil = ""
	logOneline = false
	logJSON = false
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the local operation journal",
	Long: `Displays the journal of operations run on this device.

Examples:
  # Everything, oldest first
  rimu log

  # The last ten pushes and pulls
  rimu log --operation push,pull --reverse -n 10

  # Operations in January
  rimu log --since 2026-01-01 --until 2026-01-31`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting log command")

		spinner, cleanup := startSpinner("Loading journal...")
		defer cleanup()

		result, err := workflows.Log(context.Background(), workflows.LogOptions{
			Root:       repoRoot,
			Limit:      logLimit,
			Reverse:    logReverse,
			Device:     logDevice,
			Operations: logOperation,
			Since:      logSince,
			Until:      logUntil,
		})
		if err != nil {
			if errors.Is(err, kerrors.ErrInvalidDateFormat) {
				spinner.FinalMSG = ui.Error.Sprint("✗") + " " + err.Error()
				return ErrReported
			}
			return fail(spinner, err)
		}

		Logger.Debugf("Parsed %d entries, %d after filtering", result.TotalEntriesBeforeFilter, len(result.Entries))

		spinner.FinalMSG = ""
		if len(result.Entries) == 0 {
			if result.TotalEntriesBeforeFilter == 0 {
				fmt.Println("No journal entries found.")
			} else {
				fmt.Println("No journal entries found matching the filters.")
			}
			return nil
		}

		switch {
		case logJSON:
			return printJSON(result.Entries)
		case logOneline:
			outputLogOneline(result.Entries)
		default:
			outputLogDefault(result.Entries)
		}
		return nil
	},
}

func outputLogOneline(entries []audit.Entry) {
	for _, e := range entries {
		date := workflows.FormatDateTime(e.Timestamp)
		if len(date) > 10 {
			date = date[:10]
		}
		fmt.Printf("%s %s %s %s\n", date, e.Device, e.Operation, workflows.FormatDetails(e))
	}
}

func outputLogDefault(entries []audit.Entry) {
	for _, e := range entries {
		fmt.Printf("%-19s  %-20s  %-8s  %s\n", workflows.FormatDateTime(e.Timestamp), e.Device, e.Operation, workflows.FormatDetails(e))
	}
}
