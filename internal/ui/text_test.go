package ui

import (
	"strings"
	"testing"

	"github.com/fatih/color"
)

// forceColor enables color output for one test.
func forceColor(t *testing.T) {
	t.Helper()
	original := color.NoColor
	color.NoColor = false
	t.Cleanup(func() { color.NoColor = original })
}

func TestFormattersWithoutColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	tests := []struct {
		name      string
		formatter Formatter
		input     string
		want      string
	}{
		{"Code", Code, "rimu init", "`rimu init`"},
		{"Path", Path, "/notes/todo.md", "/notes/todo.md"},
		{"Flag", Flag, "--dry-run", "--dry-run"},
		{"Success", Success, "✓", "✓"},
		{"Error", Error, "✗", "✗"},
		{"Warning", Warning, "⚠", "⚠"},
		{"Info", Info, "→", "→"},
		{"Highlight", Highlight, "laptop", "'laptop'"},
		{"Muted", Muted, "this device", "(this device)"},
		{"Fingerprint", Fingerprint, "9f2c1a0b7d3e4f55", "[9f2c1a0b7d3e4f55]"},
		{"Conflict", Conflict, "/notes.md.conflict-ab12", "!/notes.md.conflict-ab12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.formatter.Sprint(tt.input); got != tt.want {
				t.Errorf("Sprint(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormattersWithColor(t *testing.T) {
	forceColor(t)

	got := Highlight.Sprintf("device %s", "laptop")
	if strings.Contains(got, "'") {
		t.Errorf("plain-text markers should not appear with color, got %q", got)
	}
	if !strings.Contains(got, "\x1b[") || !strings.Contains(got, "device laptop") {
		t.Errorf("expected colored text, got %q", got)
	}
}

func TestNoColorEnvWins(t *testing.T) {
	forceColor(t)
	t.Setenv("NO_COLOR", "")

	if !noColor() {
		t.Error("NO_COLOR set to any value should disable color")
	}
	if got := Code.Sprint("rimu", " ", "pull"); got != "`rimu pull`" {
		t.Errorf("Sprint with several args = %q", got)
	}
}

func TestEnsureNewline(t *testing.T) {
	for in, want := range map[string]string{"": "\n", "done": "done\n", "done\n": "done\n"} {
		if got := EnsureNewline(in); got != want {
			t.Errorf("EnsureNewline(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{4 * 1024 * 1024, "4.0 MiB"},
		{3 * 1024 * 1024 * 1024, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := Bytes(tt.n); got != tt.want {
			t.Errorf("Bytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestCount(t *testing.T) {
	if got := Count(1, "file"); got != "1 file" {
		t.Errorf("Count(1) = %q", got)
	}
	if got := Count(0, "chunk"); got != "0 chunks" {
		t.Errorf("Count(0) = %q", got)
	}
	if got := Count(12, "manifest"); got != "12 manifests" {
		t.Errorf("Count(12) = %q", got)
	}
}
