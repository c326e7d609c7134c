package ui

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
)

// Formatter renders one kind of CLI content. With color it applies its
// attributes; without color it wraps the text in its plain-text markers.
type Formatter struct {
	color       *color.Color
	open, close string
}

func style(open, close string, attrs ...color.Attribute) Formatter {
	return Formatter{color: color.New(attrs...), open: open, close: close}
}

func (f Formatter) render(text string) string {
	if noColor() {
		return f.open + text + f.close
	}
	return f.color.Sprint(text)
}

// Sprint formats the arguments like fmt.Sprint.
func (f Formatter) Sprint(a ...any) string {
	return f.render(fmt.Sprint(a...))
}

// Sprintf formats according to a format specifier like fmt.Sprintf.
func (f Formatter) Sprintf(format string, a ...any) string {
	return f.render(fmt.Sprintf(format, a...))
}

// noColor honors NO_COLOR (https://no-color.org/) and fatih/color's own
// terminal detection.
func noColor() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return true
	}
	return color.NoColor
}

var (
	// Code marks commands to run. `backticks` without color.
	Code = style("`", "`", color.FgYellow)

	// Path marks file and directory paths.
	Path = style("", "", color.FgYellow)

	// Flag marks command-line flags.
	Flag = style("", "", color.FgYellow)

	Success = style("", "", color.FgGreen)
	Error   = style("", "", color.FgRed)
	Warning = style("", "", color.FgYellow)

	// Info marks hints and the → arrow.
	Info = style("", "", color.FgCyan)

	// Highlight marks user values such as device names and manifest IDs.
	// 'single quotes' without color.
	Highlight = style("'", "'", color.FgCyan)

	// Muted marks secondary text. (parentheses) without color.
	Muted = style("(", ")", color.FgHiBlack)

	// Fingerprint marks identity fingerprints. [brackets] without color.
	Fingerprint = style("[", "]", color.FgMagenta)

	// Conflict marks conflict copies. A leading ! without color.
	Conflict = style("!", "", color.FgRed, color.Bold)
)

// EnsureNewline returns s with a trailing newline.
func EnsureNewline(s string) string {
	if len(s) == 0 || s[len(s)-1] != '\n' {
		return s + "\n"
	}
	return s
}

// Bytes renders n with binary units: 1536 is "1.5 KiB".
func Bytes(n int64) string {
	const unit = 1024
	if n < unit {
		return strconv.FormatInt(n, 10) + " B"
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Count renders n with noun, adding an s unless n is 1.
func Count(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
