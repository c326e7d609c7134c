package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PolarWolf314/rimu/internal/audit"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
)

const journalTimeFormat = "2006-01-02T15:04:05.000000Z"

// LogOptions configures the log workflow.
type LogOptions struct {
	// Root is the repository root. Empty means the nearest .rimu above the
	// working directory.
	Root string

	// Limit is the maximum number of entries to return. 0 means no limit.
	Limit int

	// Reverse orders entries from most recent to oldest when true.
	Reverse bool

	// Device filters entries by device name.
	Device string

	// Operations filters entries by operation types (comma-separated).
	Operations string

	// Since filters entries after this date (YYYY-MM-DD format).
	Since string

	// Until filters entries before this date (YYYY-MM-DD format).
	Until string
}

// LogResult contains the outcome of a log operation.
type LogResult struct {
	Entries []audit.Entry

	// TotalEntriesBeforeFilter is the count of entries before filtering.
	TotalEntriesBeforeFilter int
}

// Log reads and filters the repository journal.
//
// Returns ErrNotInitialized if there is no repository.
// Returns ErrInvalidDateFormat if a date filter is malformed.
func Log(ctx context.Context, opts LogOptions) (*LogResult, error) {
	root, err := resolveRoot(opts.Root)
	if err != nil {
		return nil, err
	}

	entries, err := audit.ReadEntries(root)
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	result := &LogResult{TotalEntriesBeforeFilter: len(entries)}
	filtered := entries

	if opts.Device != "" {
		filtered = filterEntries(filtered, func(e audit.Entry) bool {
			return strings.EqualFold(e.Device, opts.Device)
		})
	}

	if opts.Operations != "" {
		ops := make(map[string]bool)
		for _, op := range strings.Split(opts.Operations, ",") {
			ops[strings.ToLower(strings.TrimSpace(op))] = true
		}
		filtered = filterEntries(filtered, func(e audit.Entry) bool {
			return ops[strings.ToLower(e.Operation)]
		})
	}

	if opts.Since != "" {
		since, err := time.Parse("2006-01-02", opts.Since)
		if err != nil {
			return nil, fmt.Errorf("%w: --since date format invalid, use YYYY-MM-DD", kerrors.ErrInvalidDateFormat)
		}
		filtered = filterEntries(filtered, func(e audit.Entry) bool {
			t, ok := entryTime(e)
			return ok && !t.Before(since)
		})
	}

	if opts.Until != "" {
		until, err := time.Parse("2006-01-02", opts.Until)
		if err != nil {
			return nil, fmt.Errorf("%w: --until date format invalid, use YYYY-MM-DD", kerrors.ErrInvalidDateFormat)
		}
		// Include the entire day.
		until = until.Add(24*time.Hour - time.Nanosecond)
		filtered = filterEntries(filtered, func(e audit.Entry) bool {
			t, ok := entryTime(e)
			return ok && !t.After(until)
		})
	}

	if opts.Reverse {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}

	if opts.Limit > 0 && len(filtered) > opts.Limit {
		if opts.Reverse {
			// When reversed, limit takes first N (most recent).
			filtered = filtered[:opts.Limit]
		} else {
			filtered = filtered[len(filtered)-opts.Limit:]
		}
	}

	result.Entries = filtered
	return result, nil
}

func filterEntries(entries []audit.Entry, keep func(audit.Entry) bool) []audit.Entry {
	var out []audit.Entry
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func entryTime(e audit.Entry) (time.Time, bool) {
	t, err := time.Parse(journalTimeFormat, e.Timestamp)
	if err != nil {
		t, err = time.Parse(time.RFC3339, e.Timestamp)
	}
	return t, err == nil
}

// FormatDateTime formats a journal timestamp as YYYY-MM-DD HH:MM:SS.
func FormatDateTime(ts string) string {
	t, ok := entryTime(audit.Entry{Timestamp: ts})
	if !ok {
		if len(ts) >= 19 {
			return ts[:19]
		}
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

// FormatDetails summarizes the operation-specific fields of e.
func FormatDetails(e audit.Entry) string {
	switch e.Operation {
	case "push":
		return fmt.Sprintf("%d files, %d chunks stored, %d deduplicated", e.FilesCount, e.ChunksStored, e.ChunksDeduped)
	case "pull":
		if len(e.Conflicts) > 0 {
			return fmt.Sprintf("%d files changed, conflicts: %s", e.FilesCount, strings.Join(e.Conflicts, ", "))
		}
		return fmt.Sprintf("%d files changed", e.FilesCount)
	case "restore":
		if len(e.Files) > 3 {
			return fmt.Sprintf("%d files", len(e.Files))
		}
		return strings.Join(e.Files, ", ")
	case "init", "enroll":
		return fmt.Sprintf("%s %s", e.Target, e.TargetPath)
	case "revoke":
		if e.Reason != "" {
			return fmt.Sprintf("%s %s (%s)", e.Target, e.TargetPath, e.Reason)
		}
		return fmt.Sprintf("%s %s", e.Target, e.TargetPath)
	case "gc":
		if e.DryRun {
			return fmt.Sprintf("%d chunks unreferenced (dry run)", e.RemovedCount)
		}
		return fmt.Sprintf("%d chunks removed", e.RemovedCount)
	}
	return ""
}
