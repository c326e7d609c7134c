package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/PolarWolf314/rimu/internal/configs"
)

// Entry is one line of the repository journal.
type Entry struct {
	Timestamp string `json:"ts"`        // RFC3339 with microseconds.
	Device    string `json:"device"`    // Name of the device performing the action.
	DeviceID  string `json:"device_id"` // UUID of the device performing the action.
	Operation string `json:"op"`

	// Optional fields depending on operation.
	Manifest      string   `json:"manifest,omitempty"`       // For push/pull.
	Files         []string `json:"files,omitempty"`          // For restore.
	FilesCount    int      `json:"files_count,omitempty"`    // For push/pull.
	ChunksStored  int      `json:"chunks_stored,omitempty"`  // For push.
	ChunksDeduped int      `json:"chunks_deduped,omitempty"` // For push.
	Bytes         int64    `json:"bytes,omitempty"`          // For push/restore.
	Conflicts     []string `json:"conflicts,omitempty"`      // For pull.
	Target        string   `json:"target,omitempty"`         // Fingerprint, for enroll/revoke.
	TargetPath    string   `json:"target_path,omitempty"`    // Derivation path, for enroll/revoke.
	Reason        string   `json:"reason,omitempty"`         // For revoke.
	RemovedCount  int      `json:"removed_count,omitempty"`  // For gc.
	DryRun        bool     `json:"dry_run,omitempty"`        // For gc.
}

// Log appends an entry to the journal of the repository at root.
// Logging is best-effort: failures are swallowed so that an operation never
// fails because its journal line could not be written.
func Log(root string, entry Entry) {
	if root == "" {
		return
	}

	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	// #nosec G302 -- the journal holds no secret material.
	f, err := os.OpenFile(LogPath(root), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_, _ = f.Write(append(data, '\n'))
}

// LogWithDevice returns an entry with the device fields populated from config.
func LogWithDevice(op string, config *configs.Config) Entry {
	entry := Entry{Operation: op}
	if config == nil {
		return entry
	}
	entry.Device = config.Device.Name
	entry.DeviceID = config.Device.ID
	return entry
}

// LogPath returns the path to the journal of the repository at root.
// Returns empty string if root is empty.
func LogPath(root string) string {
	if root == "" {
		return ""
	}
	return configs.SettingsFor(root).JournalPath
}

// ReadEntries reads all entries from the journal of the repository at root.
// Returns an empty slice if the journal doesn't exist.
func ReadEntries(root string) ([]Entry, error) {
	logPath := LogPath(root)
	if logPath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseEntries(data)
}

// ParseEntries parses JSON Lines data into journal entries.
// Malformed lines are skipped so a torn final write does not hide history.
func ParseEntries(data []byte) ([]Entry, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}
