package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/PolarWolf314/rimu/internal/chunks"
	"github.com/PolarWolf314/rimu/internal/configs"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/identity"
	"github.com/PolarWolf314/rimu/internal/keys"
)

// CheckStatus represents the result status of a health check.
type CheckStatus int

const (
	// CheckPass means the check passed.
	CheckPass CheckStatus = iota
	// CheckWarning means the check found a non-critical issue.
	CheckWarning
	// CheckError means the check found a critical issue.
	CheckError
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarning:
		return "warning"
	case CheckError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler for CheckStatus.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// CheckResult holds the result of a single health check.
type CheckResult struct {
	Name       string      `json:"name"`
	Status     CheckStatus `json:"status"`
	Message    string      `json:"message"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// DoctorResult holds the complete result of the doctor workflow.
type DoctorResult struct {
	Checks      []CheckResult `json:"checks"`
	Summary     DoctorSummary `json:"summary"`
	Suggestions []string      `json:"suggestions,omitempty"`
}

// DoctorSummary holds counts of checks by status.
type DoctorSummary struct {
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Errors   int `json:"errors"`
}

// DoctorOptions configures the doctor workflow.
type DoctorOptions struct {
	RepoOptions

	// Deep downloads and authenticates every chunk the last manifest
	// references instead of only checking that it exists.
	Deep bool
}

// Doctor runs health checks on the repository.
//
// Without a passphrase only the local checks run. With one it also checks
// the keyring against the store, this device's standing in the trust tree,
// every published manifest and the chunks of the last manifest.
func Doctor(ctx context.Context, opts DoctorOptions) (*DoctorResult, error) {
	var results []CheckResult
	add := func(c CheckResult) { results = append(results, c) }

	root, err := resolveRoot(opts.Root)
	if err == nil {
		if _, statErr := os.Stat(configs.SettingsFor(root).RimuPath); statErr != nil {
			err = kerrors.ErrNotInitialized
		}
	}
	if err != nil {
		add(CheckResult{
			Name:       "Repository",
			Status:     CheckError,
			Message:    "No rimu repository found",
			Suggestion: "Run 'rimu init' to initialize a repository",
		})
		return summarize(results), nil
	}
	settings := configs.SettingsFor(root)

	add(checkConfig(root))
	add(checkKeyringFile(settings))

	if len(opts.Passphrase) > 0 && results[0].Status == CheckPass {
		r, err := openRepo(ctx, opts.RepoOptions)
		if err != nil {
			add(CheckResult{
				Name:       "Unlock",
				Status:     CheckError,
				Message:    fmt.Sprintf("Could not unlock the repository: %v", err),
				Suggestion: "Check the passphrase and the storage location in .rimu/config.toml",
			})
			return summarize(results), nil
		}
		defer r.Close()

		add(CheckResult{Name: "Unlock", Status: CheckPass, Message: "Passphrase unlocks the keyring"})
		add(r.checkSharedKeyring(ctx))
		add(r.checkEnrollment(ctx))
		add(r.checkManifests(ctx))
		add(r.checkChunks(ctx, opts.Deep))
	}

	return summarize(results), nil
}

func summarize(results []CheckResult) *DoctorResult {
	out := &DoctorResult{Checks: results}
	seen := make(map[string]bool)
	for _, r := range results {
		switch r.Status {
		case CheckPass:
			out.Summary.Passed++
		case CheckWarning:
			out.Summary.Warnings++
		case CheckError:
			out.Summary.Errors++
		}
		if r.Suggestion != "" && r.Status != CheckPass && !seen[r.Suggestion] {
			out.Suggestions = append(out.Suggestions, r.Suggestion)
			seen[r.Suggestion] = true
		}
	}
	return out
}

func checkConfig(root string) CheckResult {
	if _, err := configs.LoadConfig(root); err != nil {
		return CheckResult{
			Name:       "Configuration",
			Status:     CheckError,
			Message:    fmt.Sprintf("Failed to load config: %v", err),
			Suggestion: "Check .rimu/config.toml for syntax errors or out-of-range values",
		}
	}
	return CheckResult{Name: "Configuration", Status: CheckPass, Message: "config.toml is valid"}
}

func checkKeyringFile(settings *configs.RepoSettings) CheckResult {
	info, err := os.Stat(settings.KeyringPath)
	if err != nil {
		return CheckResult{
			Name:       "Keyring",
			Status:     CheckError,
			Message:    "keyring.toml not found",
			Suggestion: "Re-run 'rimu init' against the same store to restore the keyring",
		}
	}
	if info.Mode().Perm()&0077 != 0 {
		return CheckResult{
			Name:       "Keyring",
			Status:     CheckWarning,
			Message:    fmt.Sprintf("keyring.toml has permissions %o", info.Mode().Perm()),
			Suggestion: "Run 'chmod 600 .rimu/keyring.toml'",
		}
	}
	return CheckResult{Name: "Keyring", Status: CheckPass, Message: "keyring.toml is present and private"}
}

func (r *repo) checkSharedKeyring(ctx context.Context) CheckResult {
	const name = "Shared keyring"
	data, err := r.backend.Get(ctx, sharedKeyringKey)
	if err != nil {
		return CheckResult{Name: name, Status: CheckWarning, Message: fmt.Sprintf("Store has no keyring: %v", err),
			Suggestion: "Other devices cannot join until the keyring is in the store"}
	}
	shared, err := keys.ParseKeyring(data)
	if err != nil {
		return CheckResult{Name: name, Status: CheckError, Message: err.Error()}
	}
	local, err := keys.LoadKeyring(r.settings.KeyringPath)
	if err != nil {
		return CheckResult{Name: name, Status: CheckError, Message: err.Error()}
	}
	if shared.Salt != local.Salt {
		return CheckResult{Name: name, Status: CheckError,
			Message:    "The store's keyring has a different salt than this device",
			Suggestion: "This device was initialized against another store; re-initialize it"}
	}
	return CheckResult{Name: name, Status: CheckPass, Message: "Store keyring matches this device"}
}

func (r *repo) checkEnrollment(ctx context.Context) CheckResult {
	const name = "Device trust"
	tree, err := r.trust(ctx)
	if err != nil {
		return CheckResult{Name: name, Status: CheckError, Message: err.Error()}
	}
	if err := tree.CheckSigner(r.device.PublicKey(), time.Now()); err != nil {
		return CheckResult{Name: name, Status: CheckError,
			Message:    fmt.Sprintf("Device %s is not trusted: %v", identity.Fingerprint(r.device.PublicKey()), err),
			Suggestion: "Enroll this device with 'rimu device enroll' from a trusted device"}
	}
	return CheckResult{Name: name, Status: CheckPass, Message: "This device is enrolled and not revoked"}
}

func (r *repo) checkManifests(ctx context.Context) CheckResult {
	const name = "Manifests"
	tree, err := r.trust(ctx)
	if err != nil {
		return CheckResult{Name: name, Status: CheckError, Message: err.Error()}
	}
	published, err := r.publisher.Fetch(ctx)
	if err != nil {
		return CheckResult{Name: name, Status: CheckError, Message: err.Error()}
	}
	var bad int
	for _, pub := range published {
		if _, err := openPublished(pub, tree); err != nil {
			bad++
			r.log.Debugf("manifest check: %v", err)
		}
	}
	if bad > 0 {
		return CheckResult{Name: name, Status: CheckWarning,
			Message:    fmt.Sprintf("%d of %d manifests failed verification", bad, len(published)),
			Suggestion: "Run 'rimu history' to see which manifests are rejected"}
	}
	return CheckResult{Name: name, Status: CheckPass, Message: fmt.Sprintf("All %d manifests verify", len(published))}
}

func (r *repo) checkChunks(ctx context.Context, deep bool) CheckResult {
	const name = "Chunks"
	base, err := loadBase(r.settings)
	if err != nil {
		return CheckResult{Name: name, Status: CheckError, Message: err.Error()}
	}
	if base == nil {
		return CheckResult{Name: name, Status: CheckPass, Message: "Nothing pushed or pulled yet"}
	}

	seen := make(map[chunks.ID]bool)
	var checked, missing, corrupt int
	for _, e := range base.Entries {
		for _, ref := range e.Chunks {
			if seen[ref.ID] {
				continue
			}
			seen[ref.ID] = true
			checked++

			var err error
			if deep {
				_, err = r.store.Get(ctx, ref)
			} else {
				var ok bool
				ok, err = r.store.Has(ctx, ref)
				if err == nil && !ok {
					err = kerrors.ErrNotFound
				}
			}
			switch {
			case err == nil:
			case errors.Is(err, kerrors.ErrNotFound):
				missing++
			default:
				corrupt++
			}
		}
	}

	if missing+corrupt > 0 {
		return CheckResult{Name: name, Status: CheckError,
			Message:    fmt.Sprintf("%d of %d chunks missing, %d failed authentication", missing, checked, corrupt),
			Suggestion: "Push from a device that still has the files to store the chunks again"}
	}
	return CheckResult{Name: name, Status: CheckPass, Message: fmt.Sprintf("All %d chunks of the last manifest are present", checked)}
}
