package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PolarWolf314/rimu/internal/configs"
	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/utils"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/spf13/cobra"
)

var (
	enrollIndex  int64
	revokeReason string
	revokeAt     string
	revokeYes    bool
	devicesJSON  bool
)

func resetDeviceState() {
	enrollIndex = -1
	revokeReason = ""
	revokeAt = ""
	revokeYes = false
	devicesJSON = false
}

func init() {
	deviceEnrollCmd.Flags().Int64Var(&enrollIndex, "index", -1, "pin the derivation index (default: lowest free)")

	deviceRevokeCmd.Flags().StringVar(&revokeReason, "reason", "", "why the device is revoked, recorded in the revocation")
	deviceRevokeCmd.Flags().StringVar(&revokeAt, "at", "", "effective time, RFC 3339 or YYYY-MM-DD (default: now)")
	deviceRevokeCmd.Flags().BoolVarP(&revokeYes, "yes", "y", false, "skip the confirmation prompt")

	deviceListCmd.Flags().BoolVar(&devicesJSON, "json", false, "output in JSON format")

	deviceCmd.AddCommand(deviceEnrollCmd)
	deviceCmd.AddCommand(deviceRevokeCmd)
	deviceCmd.AddCommand(deviceListCmd)
}

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage enrolled devices",
	Long: `Devices are identities derived from your passphrase and enrolled below
your user root. Only manifests signed by an enrolled, unrevoked device are
merged on pull.`,
}

var deviceEnrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a new device ahead of time",
	Long: `Derives the identity of a new device and publishes its enrollment.

rimu init enrolls the device it runs on, so this is only needed to reserve an
index. Run rimu init --device-index <index> on the new device afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting device enroll command")

		opts, wipe, err := repoOptions()
		if err != nil {
			return reportf("%v", err)
		}
		defer wipe()

		spinner, cleanup := startSpinner("Enrolling device...")
		defer cleanup()

		enroll := workflows.EnrollOptions{RepoOptions: opts, Name: args[0]}
		if enrollIndex >= 0 {
			if enrollIndex > configs.MaxDeviceIndex {
				return fail(spinner, fmt.Errorf("device index %d is out of range", enrollIndex))
			}
			index := uint32(enrollIndex)
			enroll.Index = &index
		}

		device, err := workflows.Enroll(context.Background(), enroll)
		if err != nil {
			return fail(spinner, err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Enrolled " + ui.Highlight.Sprint(device.Name) + " at " + device.Path + " " +
			ui.Fingerprint.Sprint(device.Fingerprint)
		return nil
	},
}

var deviceRevokeCmd = &cobra.Command{
	Use:   "revoke <name|fingerprint|path>",
	Short: "Revoke a device permanently",
	Long: `Publishes a revocation signed by the user root. Manifests the device
creates at or after the effective time are rejected by every other device.

Revocation cannot be undone. Enroll the device again at a new index instead.

Examples:
  rimu device revoke old-laptop --reason "stolen"
  rimu device revoke "m/7411'/0'/2'" --at 2026-03-01 --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting device revoke command")

		at, err := parseRevokeTime(revokeAt)
		if err != nil {
			return reportf("%v", err)
		}

		if !revokeYes {
			if !utils.IsTerminal() {
				return reportf("refusing to revoke without confirmation, pass --yes")
			}
			fmt.Printf("Revoke %s? This cannot be undone. [y/N]: ", ui.Highlight.Sprint(args[0]))
			reader := bufio.NewReader(os.Stdin)
			response, err := reader.ReadString('\n')
			if err != nil {
				return reportf("Failed to read response: %v", err)
			}
			response = strings.TrimSpace(strings.ToLower(response))
			if response != "y" && response != "yes" {
				fmt.Println(ui.Warning.Sprint("⚠") + " Revocation cancelled")
				return nil
			}
		}

		opts, wipe, err := repoOptions()
		if err != nil {
			return reportf("%v", err)
		}
		defer wipe()

		spinner, cleanup := startSpinner("Revoking device...")
		defer cleanup()

		device, err := workflows.Revoke(context.Background(), workflows.RevokeOptions{
			RepoOptions: opts,
			Target:      args[0],
			Reason:      revokeReason,
			At:          at,
		})
		if err != nil {
			return fail(spinner, err)
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " Revoked " + ui.Highlight.Sprint(device.Name) + " " + ui.Fingerprint.Sprint(device.Fingerprint) +
			" as of " + device.RevokedAt.Local().Format(time.RFC3339)
		return nil
	},
}

func parseRevokeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at %q: use RFC 3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

type deviceJSON struct {
	Name        string     `json:"name"`
	Fingerprint string     `json:"fingerprint"`
	Path        string     `json:"path"`
	Anchor      bool       `json:"anchor,omitempty"`
	Current     bool       `json:"current,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the device trust tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting device list command")

		opts, wipe, err := repoOptions()
		if err != nil {
			return reportf("%v", err)
		}
		defer wipe()

		spinner, cleanup := startSpinner("Loading devices...")
		defer cleanup()

		devices, err := workflows.Devices(context.Background(), workflows.DevicesOptions{RepoOptions: opts})
		if err != nil {
			return fail(spinner, err)
		}

		spinner.FinalMSG = ""
		spinner.Stop()
		if devicesJSON {
			out := make([]deviceJSON, 0, len(devices))
			for _, d := range devices {
				out = append(out, deviceJSON{d.Name, d.Fingerprint, d.Path, d.Anchor, d.Current, d.RevokedAt})
			}
			return printJSON(out)
		}

		for _, d := range devices {
			name := d.Name
			if d.Anchor {
				name = "user root"
			}
			line := fmt.Sprintf("%-24s %-20s %s", d.Path, name, ui.Fingerprint.Sprint(d.Fingerprint))
			switch {
			case d.RevokedAt != nil:
				fmt.Printf("%s %s %s\n", ui.Error.Sprint("✗"), line, ui.Muted.Sprint("revoked "+d.RevokedAt.Local().Format("2006-01-02")))
			case d.Current:
				fmt.Printf("%s %s %s\n", ui.Success.Sprint("✓"), line, ui.Muted.Sprint("this device"))
			default:
				fmt.Printf("%s %s\n", ui.Success.Sprint("✓"), line)
			}
		}
		return nil
	},
}
