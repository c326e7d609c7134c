package utils

import (
	"os"
	"os/user"
	"regexp"
	"strconv"
	"strings"
)

var (
	unsafeNameChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	repeatedHyphens = regexp.MustCompile(`-{2,}`)
)

// hostLabel returns the hostname, falling back to the username and then to
// "device" when neither is available.
func hostLabel() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		// Drop the domain part of fully qualified names.
		label, _, _ := strings.Cut(hostname, ".")
		return label
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "device"
}

// SanitizeDeviceName turns free text into a name accepted by IsValidDeviceName.
// Whitespace becomes hyphens, other unsupported characters are dropped and an
// empty result becomes "device".
func SanitizeDeviceName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "-")
	name = unsafeNameChars.ReplaceAllString(name, "")
	name = repeatedHyphens.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-_")
	if name == "" {
		return "device"
	}
	return name
}

// UniqueDeviceName returns base, or base with the lowest numeric suffix from
// 2 upward that no name in taken uses. Comparison ignores case.
func UniqueDeviceName(base string, taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, name := range taken {
		used[strings.ToLower(name)] = true
	}
	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		name = base + "-" + strconv.Itoa(n)
	}
	return name
}

// GenerateDeviceName derives a device name from the host that differs from
// every name in taken.
func GenerateDeviceName(taken []string) string {
	return UniqueDeviceName(SanitizeDeviceName(hostLabel()), taken)
}
