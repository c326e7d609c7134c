package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	statusAll        bool
	statusJSONOutput bool
)

func resetStatusState() {
	statusAll = false
	statusJSONOutput = false
}

func init() {
	statusCmd.Flags().BoolVarP(&statusAll, "all", "a", false, "list synced files too")
	statusCmd.Flags().BoolVar(&statusJSONOutput, "json", false, "output in JSON format")
}

// statusJSON is the machine-readable form of a status result.
type statusJSON struct {
	Root         string           `json:"root"`
	Device       string           `json:"device"`
	DeviceID     string           `json:"device_id"`
	LastManifest string           `json:"last_manifest,omitempty"`
	Files        []statusFileJSON `json:"files"`
	Summary      statusSumJSON    `json:"summary"`
	Published    map[string]int   `json:"published"`
}

type statusFileJSON struct {
	Path       string `json:"path"`
	Status     string `json:"status"`
	ConflictOf string `json:"conflict_of,omitempty"`
}

type statusSumJSON struct {
	Synced    int `json:"synced"`
	Modified  int `json:"modified"`
	Added     int `json:"added"`
	Deleted   int `json:"deleted"`
	Conflicts int `json:"conflicts"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show changes since the last push or pull",
	Long: `Compares the working tree with the manifest of the last push or pull.

Does not need the passphrase.

Status values:
  modified  - changed on disk since the last push or pull
  added     - not in the last manifest
  deleted   - in the last manifest but missing on disk
  conflict  - one copy of a file edited on two devices at once

Use --json for machine-readable output.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting status command")

		spinner, cleanup := startSpinner("Checking status...")
		defer cleanup()

		result, err := workflows.Status(context.Background(), workflows.StatusOptions{
			Root:   repoRoot,
			All:    statusAll || statusJSONOutput,
			Logger: Logger,
		})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = ""
		if statusJSONOutput {
			return printJSON(toStatusJSON(result))
		}
		printStatus(result)
		return nil
	},
}

func toStatusJSON(result *workflows.StatusResult) statusJSON {
	out := statusJSON{
		Root:         result.Root,
		Device:       result.Config.Device.Name,
		DeviceID:     result.Config.Device.ID,
		LastManifest: result.LastManifest,
		Files:        []statusFileJSON{},
		Summary: statusSumJSON{
			Synced:    result.Summary.Synced,
			Modified:  result.Summary.Modified,
			Added:     result.Summary.Added,
			Deleted:   result.Summary.Deleted,
			Conflicts: result.Summary.Conflicts,
		},
		Published: result.Published,
	}
	for _, f := range result.Files {
		out.Files = append(out.Files, statusFileJSON{Path: f.Path, Status: string(f.Status), ConflictOf: f.ConflictOf})
	}
	return out
}

func printStatus(result *workflows.StatusResult) {
	fmt.Printf("Device %s in %s\n", ui.Highlight.Sprint(result.Config.Device.Name), ui.Path.Sprint(result.Root))
	if result.LastManifest == "" {
		fmt.Println(ui.Muted.Sprint("nothing pushed or pulled yet"))
	} else {
		fmt.Printf("Last manifest %s\n", ui.Highlight.Sprint(shortID(result.LastManifest)))
	}
	fmt.Println()

	if len(result.Files) == 0 {
		fmt.Println(ui.Success.Sprint("✓") + " Working tree is clean")
	}
	for _, f := range result.Files {
		switch f.Status {
		case workflows.StatusModified:
			fmt.Printf("  %s  %s\n", ui.Warning.Sprint("modified"), ui.Path.Sprint(f.Path))
		case workflows.StatusAdded:
			fmt.Printf("  %s     %s\n", ui.Success.Sprint("added"), ui.Path.Sprint(f.Path))
		case workflows.StatusDeleted:
			fmt.Printf("  %s   %s\n", ui.Error.Sprint("deleted"), ui.Path.Sprint(f.Path))
		case workflows.StatusConflict:
			fmt.Printf("  %s  %s %s\n", ui.Conflict.Sprint("conflict"), ui.Path.Sprint(f.Path), ui.Muted.Sprint("of "+f.ConflictOf))
		default:
			fmt.Printf("  %s    %s\n", ui.Muted.Sprint("synced"), f.Path)
		}
	}

	s := result.Summary
	fmt.Println()
	fmt.Printf("Summary: %d synced, %d modified, %d added, %d deleted", s.Synced, s.Modified, s.Added, s.Deleted)
	if s.Conflicts > 0 {
		fmt.Printf(", %s", ui.Error.Sprint(ui.Count(s.Conflicts, "conflict")))
	}
	fmt.Println()

	if len(result.Published) > 0 {
		devices := make([]string, 0, len(result.Published))
		for id := range result.Published {
			devices = append(devices, id)
		}
		sort.Strings(devices)
		fmt.Println()
		fmt.Println("Published manifests:")
		for _, id := range devices {
			marker := ""
			if id == result.Config.Device.ID {
				marker = " " + ui.Muted.Sprint("this device")
			}
			fmt.Printf("  %s  %d%s\n", id, result.Published[id], marker)
		}
	}

	if s.Modified+s.Added+s.Deleted > 0 {
		fmt.Println()
		fmt.Println(ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("rimu push") + " to publish these changes")
	}
}
