package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

const testPassphrase = "correct-horse-battery"

// captureOutput captures stdout and stderr during function execution.
func captureOutput(fn func() error) (string, string, error) {
	originalStdout := os.Stdout
	originalStderr := os.Stderr

	stdoutReader, stdoutWriter, _ := os.Pipe()
	stderrReader, stderrWriter, _ := os.Pipe()

	os.Stdout = stdoutWriter
	os.Stderr = stderrWriter

	stdoutChan := make(chan string, 1)
	stderrChan := make(chan string, 1)
	collect := func(r io.Reader, out chan<- string) {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		out <- buf.String()
	}
	go collect(stdoutReader, stdoutChan)
	go collect(stderrReader, stderrChan)

	err := fn()

	stdoutWriter.Close()
	stderrWriter.Close()

	os.Stdout = originalStdout
	os.Stderr = originalStderr

	return <-stdoutChan, <-stderrChan, err
}

// runCLI executes the root command with args after resetting all command state.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	ResetGlobalState()
	SetDoctorExitFunc(func(int) {})
	RootCmd.SetArgs(args)
	return captureOutput(RootCmd.Execute)
}

// setupCLI prepares an environment with a passphrase and plain output.
func setupCLI(t *testing.T) string {
	t.Helper()
	t.Setenv(PassphraseEnv, testPassphrase)
	t.Setenv("NO_COLOR", "1")
	t.Cleanup(ResetGlobalState)
	return t.TempDir()
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

// initRepo runs rimu init in dir and fails the test on error.
func initRepo(t *testing.T, dir string) {
	t.Helper()
	stdout, stderr, err := runCLI(t, "init", dir, "--name", "laptop")
	if err != nil {
		t.Fatalf("init failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}
}
