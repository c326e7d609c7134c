package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PolarWolf314/rimu/internal/ui"
)

// maxListedPaths caps how many paths FormatPaths prints.
const maxListedPaths = 20

var deviceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// FormatPaths renders paths as an indented list starting on a new line. Long
// lists end with a count of the paths left out.
func FormatPaths(paths []string) string {
	var b strings.Builder
	b.WriteString("\n")
	for i, p := range paths {
		if i == maxListedPaths {
			b.WriteString(ui.Muted.Sprintf("    ... and %d more", len(paths)-maxListedPaths))
			b.WriteString("\n")
			break
		}
		fmt.Fprintf(&b, "    - %s\n", ui.Path.Sprint(p))
	}
	return b.String()
}

// IsValidDeviceName reports whether name starts with a letter or digit and
// contains only letters, digits, hyphens and underscores.
func IsValidDeviceName(name string) bool {
	return deviceNamePattern.MatchString(name)
}
