package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	historyDevice string
	historyJSON   bool
)

func resetHistoryState() {
	historyDevice = ""
	historyJSON = false
}

func init() {
	historyCmd.Flags().StringVar(&historyDevice, "device", "", "only list manifests published by this device ID")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output in JSON format")
}

type historyEntryJSON struct {
	Key       string     `json:"key"`
	Device    string     `json:"device"`
	Seq       uint64     `json:"seq"`
	ID        string     `json:"id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Files     int        `json:"files"`
	Error     string     `json:"error,omitempty"`
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List every published manifest",
	Long: `Lists every manifest in the store, verified against the device trust tree.

Manifests that fail to open or verify are listed with the reason. Pass a
storage key to rimu restore --from to recover files from any of them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting history command")

		opts, wipe, err := repoOptions()
		if err != nil {
			return reportf("%v", err)
		}
		defer wipe()

		spinner, cleanup := startSpinner("Loading history...")
		defer cleanup()

		entries, err := workflows.History(context.Background(), workflows.HistoryOptions{RepoOptions: opts, Device: historyDevice})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = ""
		spinner.Stop()
		if historyJSON {
			out := make([]historyEntryJSON, 0, len(entries))
			for _, h := range entries {
				j := historyEntryJSON{Key: h.Key, Device: h.Device, Seq: h.Seq, ID: h.ID, Files: h.Files}
				if h.Err != nil {
					j.Error = h.Err.Error()
				} else {
					created := h.CreatedAt
					j.CreatedAt = &created
				}
				out = append(out, j)
			}
			return printJSON(out)
		}

		if len(entries) == 0 {
			fmt.Println("No manifests published yet.")
			return nil
		}
		for _, h := range entries {
			if h.Err != nil {
				fmt.Printf("%s %s  %v\n", ui.Error.Sprint("✗"), h.Key, h.Err)
				continue
			}
			fmt.Printf("%s %s  %s  %s  %s\n", ui.Success.Sprint("✓"), h.Key,
				h.CreatedAt.Local().Format("2006-01-02 15:04:05"), ui.Highlight.Sprint(shortID(h.ID)), ui.Count(h.Files, "file"))
		}
		return nil
	},
}
