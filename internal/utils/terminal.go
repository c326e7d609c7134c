package utils

import (
	"fmt"
	"os"
	"runtime"

	"golang.org/x/term"
)

// ReadPassphrase prompts for a passphrase without echoing it. The prompt goes
// to stderr. When stdin is not a terminal, for example because a file is piped
// in, the controlling terminal is used instead.
func ReadPassphrase(prompt string) ([]byte, error) {
	if IsTerminal() {
		return readHidden(os.Stdin, prompt)
	}

	tty, err := os.Open(ttyPath())
	if err != nil {
		return nil, fmt.Errorf("cannot read passphrase: stdin is not a terminal and %s is unavailable", ttyPath())
	}
	defer tty.Close()
	return readHidden(tty, prompt)
}

func readHidden(f *os.File, prompt string) ([]byte, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("cannot read passphrase: %s is not a terminal", f.Name())
	}

	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read passphrase: %w", err)
	}
	return passphrase, nil
}

// IsTerminal returns true if stdin is a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func ttyPath() string {
	if runtime.GOOS == "windows" {
		return "CON"
	}
	return "/dev/tty"
}
