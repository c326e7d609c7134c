package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PolarWolf314/rimu/internal/configs"
)

func newRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".rimu"), 0700); err != nil {
		t.Fatalf("Failed to create .rimu dir: %v", err)
	}
	return root
}

func TestLog_CreatesFile(t *testing.T) {
	root := newRepo(t)

	Log(root, Entry{Device: "laptop", Operation: "push", FilesCount: 3})

	if _, err := os.Stat(filepath.Join(root, ".rimu", "journal.jsonl")); os.IsNotExist(err) {
		t.Fatalf("Journal file was not created")
	}
}

func TestLog_AppendsEntries(t *testing.T) {
	root := newRepo(t)

	Log(root, Entry{Device: "laptop", Operation: "push"})
	Log(root, Entry{Device: "laptop", Operation: "pull"})
	Log(root, Entry{Device: "desktop", Operation: "gc", RemovedCount: 4})

	entries, err := ReadEntries(root)
	if err != nil {
		t.Fatalf("ReadEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[2].Operation != "gc" || entries[2].RemovedCount != 4 {
		t.Errorf("unexpected last entry %+v", entries[2])
	}
}

func TestLog_TimestampFormat(t *testing.T) {
	root := newRepo(t)
	Log(root, Entry{Operation: "push"})

	entries, err := ReadEntries(root)
	if err != nil || len(entries) != 1 {
		t.Fatalf("ReadEntries: %v (%d entries)", err, len(entries))
	}

	ts := entries[0].Timestamp
	if !strings.HasSuffix(ts, "Z") {
		t.Errorf("Timestamp should be UTC, got %s", ts)
	}
	if _, err := time.Parse("2006-01-02T15:04:05.000000Z", ts); err != nil {
		t.Errorf("Timestamp %q does not parse: %v", ts, err)
	}
}

func TestLog_OmitsEmptyFields(t *testing.T) {
	root := newRepo(t)
	Log(root, Entry{Device: "laptop", Operation: "pull"})

	data, err := os.ReadFile(LogPath(root))
	if err != nil {
		t.Fatal(err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("journal line is not valid JSON: %v", err)
	}
	for _, field := range []string{"manifest", "conflicts", "target", "reason", "dry_run"} {
		if _, ok := raw[field]; ok {
			t.Errorf("Empty %s field should be omitted", field)
		}
	}
}

func TestLog_NoRoot(t *testing.T) {
	// Should silently do nothing.
	Log("", Entry{Operation: "push"})
}

func TestLogWithDevice(t *testing.T) {
	config := configs.DefaultConfig("laptop")
	entry := LogWithDevice("enroll", config)
	if entry.Device != "laptop" || entry.DeviceID != config.Device.ID || entry.Operation != "enroll" {
		t.Errorf("unexpected entry %+v", entry)
	}

	if entry := LogWithDevice("push", nil); entry.Device != "" {
		t.Errorf("nil config should leave device empty, got %+v", entry)
	}
}

func TestParseEntries_SkipsMalformedLines(t *testing.T) {
	data := []byte(`{"ts":"2026-01-15T10:30:00.123456Z","device":"laptop","op":"push"}
this is not valid json
{"ts":"2026-01-15T10:35:00.456789Z","device":"desktop","op":"pull"}
`)

	entries, err := ParseEntries(data)
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 valid entries, got %d", len(entries))
	}
	if entries[1].Device != "desktop" {
		t.Errorf("Expected second device desktop, got %s", entries[1].Device)
	}
}

func TestParseEntries_EmptyData(t *testing.T) {
	entries, err := ParseEntries([]byte{})
	if err != nil {
		t.Fatalf("ParseEntries failed: %v", err)
	}
	if entries != nil {
		t.Errorf("Expected nil entries for empty data, got %v", entries)
	}
}

func TestLogPath(t *testing.T) {
	if got := LogPath("/test/repo"); got != filepath.Join("/test/repo", ".rimu", "journal.jsonl") {
		t.Errorf("unexpected path %s", got)
	}
	if got := LogPath(""); got != "" {
		t.Errorf("Expected empty path without a repository, got %s", got)
	}
}
