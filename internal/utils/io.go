package utils

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// maxSecretLine bounds how much ReadSecretLine buffers.
const maxSecretLine = 4096

// ReadStdin reads a secret from piped stdin with ReadSecretLine.
// Returns an error if stdin is a terminal.
func ReadStdin() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat stdin: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return nil, fmt.Errorf("no data provided on stdin (hint: pipe your passphrase to this command)")
	}
	return ReadSecretLine(os.Stdin)
}

// ReadSecretLine returns the first line of r without its line ending. Anything
// after the first newline is left unread.
func ReadSecretLine(r io.Reader) ([]byte, error) {
	br := bufio.NewReaderSize(r, maxSecretLine)
	line, err := br.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, fmt.Errorf("secret on stdin is longer than %d bytes", maxSecretLine)
	case err != nil && !errors.Is(err, io.EOF):
		return nil, fmt.Errorf("failed to read from stdin: %w", err)
	}

	secret := bytes.Clone(bytes.TrimRight(line, "\r\n"))
	// line aliases the reader's buffer, which still holds the secret.
	clear(line)
	if len(secret) == 0 {
		return nil, fmt.Errorf("stdin is empty")
	}
	return secret, nil
}
