package cmd

import (
	"fmt"

	"github.com/PolarWolf314/rimu/internal/configs"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/utils"
	"github.com/spf13/cobra"
)

var configShowJSON bool

func init() {
	configShowCmd.Flags().BoolVar(&configShowJSON, "json", false, "output in JSON format")
	configCmd.AddCommand(configShowCmd)
}

func resetConfigState() {
	configShowJSON = false
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect repository configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the repository configuration",
	Long: `Displays .rimu/config.toml for the current repository.

Examples:
  rimu config show
  rimu config show --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		Logger.Infof("Starting config show command")

		root := repoRoot
		if root == "" {
			found, err := utils.FindRepoRoot(configs.DirName)
			if err != nil {
				return reportf("Failed to search for repository: %v", err)
			}
			root = found
		}
		if root == "" {
			fmt.Println(formatError(kerrors.ErrNotInitialized))
			return ErrReported
		}

		Logger.Debugf("Loading config from %s", configs.ConfigPath(root))
		config, err := configs.LoadConfig(root)
		if err != nil {
			fmt.Println(formatError(err))
			return ErrReported
		}

		if configShowJSON {
			return printJSON(config)
		}
		printConfig(root, config)
		return nil
	},
}

func printConfig(root string, c *configs.Config) {
	fmt.Println(ui.Info.Sprint("Repository Configuration") + " (" + ui.Path.Sprint(configs.ConfigPath(root)) + "):")
	fmt.Println()
	fmt.Printf("  %-14s %s\n", "Device:", ui.Highlight.Sprint(c.Device.Name))
	fmt.Printf("  %-14s %s\n", "Device ID:", c.Device.ID)
	fmt.Printf("  %-14s m/7411'/%d'/%d'\n", "Path:", c.Device.UserIndex, c.Device.Index)
	fmt.Printf("  %-14s %s\n", "Created:", c.Device.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Println()
	fmt.Printf("  %-14s %s at %s\n", "Storage:", c.Storage.Backend, ui.Path.Sprint(c.StoragePath(root)))
	fmt.Printf("  %-14s %s\n", "Cipher:", c.Cipher.Format)
	fmt.Printf("  %-14s %s to %s, average %s\n", "Chunks:",
		ui.Bytes(int64(c.Chunking.MinSize)), ui.Bytes(int64(c.Chunking.MaxSize)), ui.Bytes(int64(1)<<c.Chunking.AverageBits))
	fmt.Printf("  %-14s %t\n", "Dedup:", c.Sync.Dedup)
	retention := "all"
	if c.Sync.Retention > 0 {
		retention = fmt.Sprintf("%d per device", c.Sync.Retention)
	}
	fmt.Printf("  %-14s %s\n", "Retention:", retention)
	fmt.Printf("  %-14s time=%d memory=%s threads=%d\n", "KDF:", c.KDF.Time, ui.Bytes(int64(c.KDF.MemoryKiB)*1024), c.KDF.Threads)
}
