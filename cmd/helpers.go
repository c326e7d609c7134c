package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/ui"
	"github.com/PolarWolf314/rimu/internal/utils"
	"github.com/PolarWolf314/rimu/internal/workflows"
	"github.com/awnumar/memguard"
	"github.com/briandowns/spinner"
)

// PassphraseEnv names the environment variable read before prompting.
const PassphraseEnv = "RIMU_PASSPHRASE"

// startSpinner creates and starts a spinner with the given message when not in verbose or debug mode.
// Returns the spinner and a function that should be deferred to clean up.
//
// spinner.FinalMSG values do not need trailing newlines. The cleanup function
// calls ui.EnsureNewline() on the final message before printing it.
func startSpinner(message string) (*spinner.Spinner, func()) {
	Logger.Debugf("Starting spinner with message: %s", message)
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message

	if err := s.Color("cyan"); err != nil {
		Logger.Warnf("Failed to set spinner color: %v", err)
	}

	quiet := !verbose && !debug
	if quiet {
		s.Start()
		log.SetOutput(io.Discard)
	} else {
		Logger.Infof("Running in verbose or debug mode: %s", message)
	}

	cleanup := func() {
		if quiet {
			log.SetOutput(os.Stdout)
		}

		finalMsg := ""
		if s.FinalMSG != "" {
			finalMsg = ui.EnsureNewline(s.FinalMSG)
			s.FinalMSG = ""
		}

		if quiet {
			s.Stop()
		}

		if finalMsg != "" {
			fmt.Print(finalMsg)
		}
	}

	return s, cleanup
}

// readPassphrase resolves the passphrase from RIMU_PASSPHRASE, stdin when
// --passphrase-stdin is set, or a terminal prompt. With confirm set a
// prompted passphrase must be typed twice.
//
// The caller wipes the returned slice with memguard.WipeBytes.
func readPassphrase(confirm bool) ([]byte, error) {
	if env, ok := os.LookupEnv(PassphraseEnv); ok && env != "" {
		Logger.Debugf("Using passphrase from %s", PassphraseEnv)
		return []byte(env), nil
	}

	if passphraseStdin {
		Logger.Debugf("Reading passphrase from stdin")
		data, err := utils.ReadStdin()
		if err != nil {
			return nil, fmt.Errorf("reading passphrase from stdin: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: empty passphrase on stdin", kerrors.ErrAuthentication)
		}
		return data, nil
	}

	pass, err := utils.ReadPassphrase("Passphrase: ")
	if err != nil {
		return nil, fmt.Errorf("%w (set %s or use --passphrase-stdin)", err, PassphraseEnv)
	}
	if len(pass) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", kerrors.ErrAuthentication)
	}
	if !confirm {
		return pass, nil
	}

	again, err := utils.ReadPassphrase("Confirm passphrase: ")
	if err != nil {
		memguard.WipeBytes(pass)
		return nil, err
	}
	defer memguard.WipeBytes(again)
	if !bytes.Equal(pass, again) {
		memguard.WipeBytes(pass)
		return nil, fmt.Errorf("passphrases do not match")
	}
	return pass, nil
}

// repoOptions reads the passphrase and builds the options every unlocking
// workflow takes. The returned func wipes the passphrase.
func repoOptions() (workflows.RepoOptions, func(), error) {
	pass, err := readPassphrase(false)
	if err != nil {
		return workflows.RepoOptions{}, func() {}, err
	}
	opts := workflows.RepoOptions{
		Root:       repoRoot,
		Passphrase: pass,
		Logger:     Logger,
	}
	return opts, func() { memguard.WipeBytes(pass) }, nil
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// formatError maps workflow errors to the message and hint shown in the
// spinner's final line.
func formatError(err error) string {
	var hint string
	switch {
	case errors.Is(err, kerrors.ErrNotInitialized):
		hint = "Run " + ui.Code.Sprint("rimu init") + " first"
	case errors.Is(err, kerrors.ErrAlreadyInitialized):
		hint = "This directory already has a " + ui.Path.Sprint(".rimu") + " folder"
	case errors.Is(err, kerrors.ErrAuthentication):
		hint = "Check the passphrase"
	case errors.Is(err, kerrors.ErrKeyDerivation):
		hint = "The keyring's work factor is below the accepted floor"
	case errors.Is(err, kerrors.ErrTrust):
		hint = "This device is not trusted. Run " + ui.Code.Sprint("rimu device list") + " on an enrolled device"
	case errors.Is(err, kerrors.ErrUnreadableHistory):
		hint = "Run " + ui.Code.Sprint("rimu history") + " to find manifests that fail to open"
	case errors.Is(err, kerrors.ErrInvalidDeviceName):
		hint = "Device names may contain letters, digits, dashes and underscores"
	}

	msg := ui.Error.Sprint("✗") + " " + err.Error()
	if hint != "" {
		msg += "\n" + ui.Info.Sprint("→") + " " + hint
	}
	return msg
}

// ErrReported is returned by commands that already printed their failure, so
// main only sets the exit code.
var ErrReported = errors.New("command failed")

// fail records err as the spinner's final message and returns ErrReported.
func fail(s *spinner.Spinner, err error) error {
	Logger.Debugf("Command failed: %v", err)
	s.FinalMSG = formatError(err)
	return ErrReported
}

// reportf logs a failure that happened before any spinner started and
// returns ErrReported.
func reportf(msg string, args ...any) error {
	Logger.Errorf(msg, args...)
	return ErrReported
}
