package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/PolarWolf314/rimu/cmd"
	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/awnumar/memguard"
)

func main() {
	// Wipe key material held in guarded buffers on Ctrl-C.
	memguard.CatchInterrupt()
	defer memguard.Purge()

	if err := cmd.RootCmd.Execute(); err != nil {
		if !errors.Is(err, cmd.ErrReported) {
			fmt.Fprintln(os.Stderr, ui.Error.Sprint("✗")+" "+err.Error())
		}
		memguard.Purge()
		os.Exit(1)
	}
}
