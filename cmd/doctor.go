package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

var (
	doctorJSONOutput bool
	doctorLocal      bool
	doctorDeep       bool
	doctorExitFunc   = os.Exit
)

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSONOutput, "json", false, "output in JSON format")
	doctorCmd.Flags().BoolVar(&doctorLocal, "local", false, "only run checks that need no passphrase")
	doctorCmd.Flags().BoolVar(&doctorDeep, "deep", false, "download and authenticate every chunk of the last manifest")
}

func resetDoctorState() {
	doctorJSONOutput = false
	doctorLocal = false
	doctorDeep = false
	doctorExitFunc = os.Exit
}

// SetDoctorExitFunc sets the exit function for testing purposes.
func SetDoctorExitFunc(f func(int)) {
	doctorExitFunc = f
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on the repository",
	Long: `Runs a series of health checks on the repository and reports issues.

Without a passphrase (or with --local) it checks:
  - Configuration validity
  - Keyring presence and permissions

With a passphrase it also checks:
  - The local keyring matches the one in the store
  - This device is enrolled and not revoked
  - Every published manifest opens and verifies
  - Every chunk of the last manifest is stored (--deep authenticates them)

Exit codes:
  0 - All checks passed
  1 - Warnings found (non-critical issues)
  2 - Errors found (critical issues)

Use --json for machine-readable output.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	Logger.Infof("Starting doctor command")

	opts := workflows.DoctorOptions{
		RepoOptions: workflows.RepoOptions{Root: repoRoot, Logger: Logger},
		Deep:        doctorDeep,
	}
	if !doctorLocal {
		pass, err := readPassphrase(false)
		if err != nil {
			Logger.Warnf("Running local checks only: %v", err)
		} else {
			defer memguard.WipeBytes(pass)
			opts.Passphrase = pass
		}
	}

	spinner, cleanup := startSpinner("Running health checks...")
	defer cleanup()

	result, err := workflows.Doctor(context.Background(), opts)
	if err != nil {
		spinner.FinalMSG = ui.Error.Sprint("✗") + " Failed to run health checks: " + err.Error()
		return ErrReported
	}

	for _, check := range result.Checks {
		Logger.Debugf("Check %s: status=%s, message=%s", check.Name, check.Status.String(), check.Message)
	}

	spinner.FinalMSG = ""
	if doctorJSONOutput {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		// Stop the spinner before printing so the report is not interleaved with it.
		spinner.Stop()
		printDoctorResults(result)
		switch {
		case result.Summary.Errors > 0:
			spinner.FinalMSG = ui.Error.Sprint("✗") + " Health checks completed with errors"
		case result.Summary.Warnings > 0:
			spinner.FinalMSG = ui.Warning.Sprint("⚠") + " Health checks completed with warnings"
		default:
			spinner.FinalMSG = ui.Success.Sprint("✓") + " Health checks completed"
		}
	}

	if result.Summary.Errors > 0 {
		cleanup()
		doctorExitFunc(2)
	} else if result.Summary.Warnings > 0 {
		cleanup()
		doctorExitFunc(1)
	}
	return nil
}

func printDoctorResults(result *workflows.DoctorResult) {
	fmt.Println("Running health checks...")
	fmt.Println()

	for _, check := range result.Checks {
		var statusIcon string
		switch check.Status {
		case workflows.CheckPass:
			statusIcon = ui.Success.Sprint("✓")
		case workflows.CheckWarning:
			statusIcon = ui.Warning.Sprint("⚠")
		case workflows.CheckError:
			statusIcon = ui.Error.Sprint("✗")
		}
		fmt.Printf("%s %-12s %s\n", statusIcon, check.Name, check.Message)
	}

	fmt.Println()
	fmt.Printf("Summary: %d passed", result.Summary.Passed)
	if result.Summary.Warnings > 0 {
		fmt.Printf(", %s", ui.Warning.Sprint(ui.Count(result.Summary.Warnings, "warning")))
	}
	if result.Summary.Errors > 0 {
		fmt.Printf(", %s", ui.Error.Sprint(ui.Count(result.Summary.Errors, "error")))
	}
	fmt.Println()

	if len(result.Suggestions) > 0 {
		fmt.Println()
		fmt.Println("Suggestions:")
		for _, suggestion := range result.Suggestions {
			fmt.Printf("  %s %s\n", ui.Info.Sprint("→"), suggestion)
		}
	}
}
