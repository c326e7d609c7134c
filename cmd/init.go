package cmd

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/rimu/internal/configs"
	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
)

var (
	initDeviceName  string
	initDeviceIndex int64
	initUserIndex   uint32
	initBackend     string
	initStoragePath string
	initCipher      string
	initNoDedup     bool
)

func resetInitState() {
	initDeviceName = ""
	initDeviceIndex = -1
	initUserIndex = 0
	initBackend = ""
	initStoragePath = ""
	initCipher = ""
	initNoDedup = false
}

func init() {
	initCmd.Flags().StringVarP(&initDeviceName, "name", "n", "", "name of this device (default: derived from the hostname)")
	initCmd.Flags().Int64Var(&initDeviceIndex, "device-index", -1, "pin the derivation index of this device (default: lowest free)")
	initCmd.Flags().Uint32Var(&initUserIndex, "user-index", 0, "user root index below the purpose node")
	initCmd.Flags().StringVar(&initBackend, "backend", "", "storage backend: fs or sqlite (default: fs)")
	initCmd.Flags().StringVar(&initStoragePath, "store", "", "storage location, relative to the repository root (default: .rimu/store)")
	initCmd.Flags().StringVar(&initCipher, "cipher", "", "envelope format: xchacha20poly1305 or aes256gcm")
	initCmd.Flags().BoolVar(&initNoDedup, "no-dedup", false, "seal every chunk with a random nonce instead of deduplicating")
}

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Create a repository and enroll this device",
	Long: `Turns a directory into a rimu repository and enrolls this device.

If the store already holds a keyring, for example a shared folder another
device initialized, this device joins that user and must use the same
passphrase. Otherwise a new keyring is created in the store.

Examples:
  # Start a new repository in the current directory
  rimu init --name laptop

  # Join a store another device already uses
  rimu init ~/notes --store /mnt/shared/rimu --name desktop

  # Keep chunks in a single SQLite file
  rimu init --backend sqlite --store .rimu/store.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting init command")

		root := repoRoot
		if len(args) == 1 {
			root = args[0]
		}

		pass, err := readPassphrase(true)
		if err != nil {
			return reportf("%v", err)
		}
		defer memguard.WipeBytes(pass)

		spinner, cleanup := startSpinner("Initializing repository...")
		defer cleanup()

		opts := workflows.InitOptions{
			Root:        root,
			DeviceName:  initDeviceName,
			UserIndex:   initUserIndex,
			Backend:     initBackend,
			StoragePath: initStoragePath,
			Cipher:      initCipher,
			NoDedup:     initNoDedup,
			Passphrase:  pass,
			Logger:      Logger,
		}
		if initDeviceIndex >= 0 {
			if initDeviceIndex > configs.MaxDeviceIndex {
				return fail(spinner, fmt.Errorf("device index %d is out of range", initDeviceIndex))
			}
			index := uint32(initDeviceIndex)
			opts.DeviceIndex = &index
		}

		result, err := workflows.Init(context.Background(), opts)
		if err != nil {
			return fail(spinner, err)
		}

		verb := "Created"
		if result.Joined {
			verb = "Joined"
		}
		spinner.FinalMSG = ui.Success.Sprint("✓") + " " + verb + " repository at " + ui.Path.Sprint(result.Root) + "\n" +
			fmt.Sprintf("  Device %s enrolled at index %d %s\n", ui.Highlight.Sprint(result.DeviceName), result.DeviceIndex, ui.Fingerprint.Sprint(result.Fingerprint)) +
			ui.Info.Sprint("→") + " Run " + ui.Code.Sprint("rimu push") + " to publish the files in this directory"
		return nil
	},
}
