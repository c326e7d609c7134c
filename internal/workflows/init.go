package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PolarWolf314/rimu/internal/audit"
	"github.com/PolarWolf314/rimu/internal/configs"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/identity"
	"github.com/PolarWolf314/rimu/internal/keys"
	logger "github.com/PolarWolf314/rimu/internal/logging"
	"github.com/PolarWolf314/rimu/internal/utils"
)

// InitOptions configures the init workflow.
type InitOptions struct {
	// Root is the directory to initialize. Empty means the working directory.
	Root string

	// DeviceName names this device. Empty means a name derived from the hostname.
	DeviceName string

	// DeviceIndex pins the derivation index of this device. Nil picks the
	// lowest index not yet enrolled.
	DeviceIndex *uint32

	// UserIndex selects the user root below the purpose node.
	UserIndex uint32

	// Backend and StoragePath override the default local store.
	Backend     string
	StoragePath string

	// Cipher overrides the default envelope format.
	Cipher string

	// NoDedup seals every chunk with a random nonce.
	NoDedup bool

	// Passphrase derives the root key. The caller owns and wipes it.
	Passphrase []byte

	// KDF is the work factor for a new keyring. Zero means keys.DefaultParams.
	// Ignored when joining a store that already has a keyring.
	KDF keys.Params

	// Floor is the minimum accepted work factor. Zero means keys.MinParams.
	Floor keys.Params

	Logger logger.Logger
}

// InitResult contains the outcome of an init operation.
type InitResult struct {
	Root        string
	DeviceName  string
	DeviceID    string
	DeviceIndex uint32
	Fingerprint string

	// Joined is true when the store already had a keyring, so this device
	// joined an existing user instead of creating one.
	Joined bool
}

// Init turns a directory into a rimu repository and enrolls this device.
//
// If the configured store already holds a keyring the passphrase must unlock
// it and the device joins the existing user. Otherwise a new keyring is
// created and shared through the store.
//
// Returns ErrAlreadyInitialized if the directory already has a .rimu config.
// Returns ErrAuthentication if the passphrase does not unlock an existing keyring.
func Init(ctx context.Context, opts InitOptions) (*InitResult, error) {
	root := opts.Root
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	settings := configs.SettingsFor(root)

	if _, err := os.Stat(settings.ConfigPath); err == nil {
		return nil, kerrors.ErrAlreadyInitialized
	}

	config, err := initConfig(opts)
	if err != nil {
		return nil, err
	}

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			os.RemoveAll(settings.RimuPath)
		}
	}()
	if err := os.MkdirAll(settings.StatePath, 0700); err != nil {
		return nil, fmt.Errorf("creating %s: %w", configs.DirName, err)
	}

	repoOpts := RepoOptions{Root: root, Passphrase: opts.Passphrase, Floor: opts.Floor, Logger: opts.Logger}
	kdf := opts.KDF
	if kdf == (keys.Params{}) {
		kdf = keys.DefaultParams
	}
	kr, rootKey, joined, err := sharedKeyring(ctx, root, config, kdf, repoOpts)
	if err != nil {
		return nil, err
	}
	config.KDF = configs.KDF{Time: kr.KDF.Time, MemoryKiB: kr.KDF.MemoryKiB, Threads: kr.KDF.Threads}
	if err := keys.SaveKeyring(settings.KeyringPath, kr); err != nil {
		rootKey.Destroy()
		return nil, err
	}

	r := &repo{root: root, settings: settings, config: config, log: opts.Logger, session: keys.NewSession(rootKey)}
	defer r.Close()
	if err := r.wire(); err != nil {
		return nil, err
	}

	tree, err := r.trust(ctx)
	if err != nil {
		return nil, err
	}
	index, err := pickDeviceIndex(tree, config.Device.UserIndex, opts.DeviceIndex)
	if err != nil {
		return nil, err
	}
	config.Device.Index = index
	if opts.DeviceName == "" {
		var taken []string
		for _, n := range tree.Nodes() {
			taken = append(taken, n.Name)
		}
		config.Device.Name = utils.GenerateDeviceName(taken)
	}
	if err := r.deriveDevice(); err != nil {
		return nil, err
	}

	enrollment, err := identity.Enroll(r.user, r.device, config.Device.Name, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := identity.PublishEnrollment(ctx, r.backend, enrollment); err != nil {
		return nil, fmt.Errorf("publishing enrollment: %w", err)
	}

	if err := configs.SaveConfig(root, config); err != nil {
		return nil, err
	}
	cleanupNeeded = false

	entry := audit.LogWithDevice("init", config)
	entry.Target = r.device.Fingerprint()
	entry.TargetPath = r.device.Path().String()
	audit.Log(root, entry)

	return &InitResult{
		Root:        root,
		DeviceName:  config.Device.Name,
		DeviceID:    config.Device.ID,
		DeviceIndex: index,
		Fingerprint: r.device.Fingerprint(),
		Joined:      joined,
	}, nil
}

func initConfig(opts InitOptions) (*configs.Config, error) {
	name := opts.DeviceName
	if name == "" {
		name = utils.GenerateDeviceName(nil)
	}
	if !utils.IsValidDeviceName(name) {
		return nil, fmt.Errorf("%w: %q", kerrors.ErrInvalidDeviceName, name)
	}

	config := configs.DefaultConfig(name)
	config.Device.UserIndex = opts.UserIndex
	if opts.Backend != "" {
		config.Storage.Backend = opts.Backend
	}
	if opts.StoragePath != "" {
		config.Storage.Path = opts.StoragePath
	}
	if opts.Cipher != "" {
		config.Cipher.Format = opts.Cipher
	}
	if opts.NoDedup {
		config.Sync.Dedup = false
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// sharedKeyring unlocks the keyring stored in the backend, or creates and
// stores one if there is none.
func sharedKeyring(ctx context.Context, root string, config *configs.Config, kdf keys.Params, opts RepoOptions) (*keys.Keyring, *keys.RootSecret, bool, error) {
	b, err := openBackend(root, config, opts.Logger)
	if err != nil {
		return nil, nil, false, err
	}
	defer b.Close()

	data, err := b.Get(ctx, sharedKeyringKey)
	switch {
	case err == nil:
		kr, err := keys.ParseKeyring(data)
		if err != nil {
			return nil, nil, false, err
		}
		rootKey, err := kr.Unlock(ctx, opts.Passphrase, opts.floor())
		if err != nil {
			return nil, nil, false, err
		}
		return kr, rootKey, true, nil
	case !errors.Is(err, kerrors.ErrNotFound):
		return nil, nil, false, fmt.Errorf("reading shared keyring: %w", err)
	}

	kr, rootKey, err := keys.CreateKeyring(ctx, opts.Passphrase, kdf, opts.floor())
	if err != nil {
		return nil, nil, false, err
	}
	data, err = keys.MarshalKeyring(kr)
	if err == nil {
		err = b.Put(ctx, sharedKeyringKey, data)
	}
	if err != nil {
		rootKey.Destroy()
		return nil, nil, false, fmt.Errorf("sharing keyring: %w", err)
	}
	return kr, rootKey, false, nil
}

// pickDeviceIndex returns want if it is free, or the lowest free index.
func pickDeviceIndex(tree *identity.Tree, user uint32, want *uint32) (uint32, error) {
	taken := make(map[uint32]bool)
	for _, n := range tree.Nodes() {
		if len(n.Path) == 3 && n.Path[0] == identity.Purpose && n.Path[1] == user {
			taken[n.Path[2]] = true
		}
	}
	if want != nil {
		if taken[*want] {
			return 0, fmt.Errorf("%w: %d", kerrors.ErrDeviceIndexTaken, *want)
		}
		return *want, nil
	}
	var i uint32
	for taken[i] {
		i++
	}
	return i, nil
}
