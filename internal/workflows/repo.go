package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/PolarWolf314/rimu/internal/backend"
	"github.com/PolarWolf314/rimu/internal/chunks"
	"github.com/PolarWolf314/rimu/internal/configs"
	"github.com/PolarWolf314/rimu/internal/envelope"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/identity"
	"github.com/PolarWolf314/rimu/internal/keys"
	logger "github.com/PolarWolf314/rimu/internal/logging"
	"github.com/PolarWolf314/rimu/internal/manifest"
)

// sharedKeyringKey is where the keyring lives in the backend so that every
// device of a user derives the same root from the same passphrase.
const sharedKeyringKey = "keyring.toml"

// RepoOptions are the fields every workflow that unlocks the repository needs.
type RepoOptions struct {
	// Root is the repository root. Empty means the nearest .rimu above the
	// working directory.
	Root string

	// Passphrase unlocks the key hierarchy. The caller owns and wipes it.
	Passphrase []byte

	// Floor is the minimum accepted work factor. Zero means keys.MinParams.
	Floor keys.Params

	Logger logger.Logger
}

func (o RepoOptions) floor() keys.Params {
	if o.Floor == (keys.Params{}) {
		return keys.MinParams
	}
	return o.Floor
}

// repo is an unlocked repository. Close wipes every key it holds.
type repo struct {
	root     string
	settings *configs.RepoSettings
	config   *configs.Config
	log      logger.Logger

	session   *keys.Session
	backend   backend.Backend
	cipher    envelope.Cipher
	store     *chunks.Store
	publisher *manifest.Publisher

	ids    *identity.Manager
	user   *identity.Identity
	device *identity.Identity
}

// resolveRoot returns opts.Root or the repository above the working directory.
func resolveRoot(root string) (string, error) {
	if root != "" {
		return root, nil
	}
	if err := configs.InitRepoSettings(); err != nil {
		return "", fmt.Errorf("initializing repository settings: %w", err)
	}
	if configs.RepoRimuSettings.RepoPath == "" {
		return "", kerrors.ErrNotInitialized
	}
	return configs.RepoRimuSettings.RepoPath, nil
}

// loadRepo reads the config of the repository without unlocking it.
func loadRepo(root string) (string, *configs.Config, error) {
	root, err := resolveRoot(root)
	if err != nil {
		return "", nil, err
	}
	config, err := configs.LoadConfig(root)
	if err != nil {
		return "", nil, err
	}
	return root, config, nil
}

// openRepo unlocks the repository with the passphrase in opts.
func openRepo(ctx context.Context, opts RepoOptions) (*repo, error) {
	root, config, err := loadRepo(opts.Root)
	if err != nil {
		return nil, err
	}
	settings := configs.SettingsFor(root)

	kr, err := keys.LoadKeyring(settings.KeyringPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, kerrors.ErrNotInitialized
		}
		return nil, err
	}
	rootKey, err := kr.Unlock(ctx, opts.Passphrase, opts.floor())
	if err != nil {
		return nil, err
	}

	r := &repo{
		root:     root,
		settings: settings,
		config:   config,
		log:      opts.Logger,
		session:  keys.NewSession(rootKey),
	}
	if err := r.wire(); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.deriveDevice(); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// wire builds the store, publisher and identities from an open session.
func (r *repo) wire() error {
	b, err := openBackend(r.root, r.config, r.log)
	if err != nil {
		return err
	}
	r.backend = b

	format, err := envelope.ParseFormat(r.config.Cipher.Format)
	if err != nil {
		return err
	}
	r.cipher, err = envelope.New(format)
	if err != nil {
		return err
	}

	r.store, err = chunks.NewStore(chunks.Options{
		Backend: r.backend,
		Session: r.session,
		Cipher:  r.cipher,
		Split: chunks.SplitOptions{
			MinSize:     r.config.Chunking.MinSize,
			MaxSize:     r.config.Chunking.MaxSize,
			AverageBits: r.config.Chunking.AverageBits,
		},
		Parallelism: r.config.Sync.Parallelism,
		Logger:      r.log,
	})
	if err != nil {
		return err
	}

	r.publisher = &manifest.Publisher{
		Backend: r.backend,
		Session: r.session,
		Cipher:  r.cipher,
		Logger:  r.log,
	}

	r.ids, err = identity.NewManager(r.session)
	if err != nil {
		return err
	}
	r.user, err = r.ids.UserIdentity(r.config.Device.UserIndex)
	return err
}

// deriveDevice derives this device's signing identity from the configured index.
func (r *repo) deriveDevice() error {
	if r.device != nil {
		r.device.Destroy()
	}
	var err error
	r.device, err = r.ids.DeriveDeviceIdentity(r.user, r.config.Device.Index)
	return err
}

func openBackend(root string, config *configs.Config, log logger.Logger) (backend.Backend, error) {
	b, err := backend.Open(config.Storage.Backend, config.StoragePath(root))
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", config.Storage.Backend, err)
	}
	return backend.WithRetry(b, log), nil
}

// trust rebuilds the identity tree anchored at the user root.
func (r *repo) trust(ctx context.Context) (*identity.Tree, error) {
	tree, problems, err := identity.LoadTree(ctx, r.backend, []*identity.Identity{r.user}, r.log)
	if err != nil {
		return nil, fmt.Errorf("loading identity tree: %w", err)
	}
	for _, p := range problems {
		r.log.Debugf("identity document skipped: %v", p)
	}
	return tree, nil
}

func (r *repo) Close() {
	if r.device != nil {
		r.device.Destroy()
	}
	if r.user != nil {
		r.user.Destroy()
	}
	if r.backend != nil {
		if err := r.backend.Close(); err != nil {
			r.log.Debugf("closing backend: %v", err)
		}
	}
	r.session.Close()
}
