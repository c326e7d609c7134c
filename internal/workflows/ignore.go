package workflows

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/bmatcuk/doublestar/v4"
)

// IgnoreFile lists glob patterns, one per line, for files push and status
// leave untracked. Blank lines and lines starting with # are skipped.
//
// A pattern without a slash matches a name at any depth. A trailing slash
// matches everything below a directory. ** spans directories.
const IgnoreFile = ".rimuignore"

// ignoreRules matches manifest paths against .rimuignore patterns.
type ignoreRules struct {
	patterns []string
}

// loadIgnore reads root/.rimuignore. A missing file yields no rules.
func loadIgnore(root string) (*ignoreRules, error) {
	data, err := os.ReadFile(filepath.Join(root, IgnoreFile))
	if os.IsNotExist(err) {
		return &ignoreRules{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", IgnoreFile, err)
	}
	return parseIgnore(data)
}

func parseIgnore(data []byte) (*ignoreRules, error) {
	rules := &ignoreRules{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		p := strings.TrimSpace(scanner.Text())
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		p = normalizePattern(p)
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: %s line %d: bad pattern %q", kerrors.ErrInvalidConfig, IgnoreFile, line, scanner.Text())
		}
		rules.patterns = append(rules.patterns, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// normalizePattern rewrites p into a pattern matched against manifest paths
// without the leading slash.
func normalizePattern(p string) string {
	if strings.HasSuffix(p, "/") {
		p += "**"
	}
	if strings.HasPrefix(p, "/") {
		return strings.TrimPrefix(p, "/")
	}
	if !strings.Contains(strings.TrimSuffix(p, "/**"), "/") {
		return "**/" + p
	}
	return p
}

// Ignored reports whether the manifest path p matches any pattern.
func (r *ignoreRules) Ignored(p string) bool {
	if r == nil {
		return false
	}
	name := strings.TrimPrefix(p, "/")
	for _, pattern := range r.patterns {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
