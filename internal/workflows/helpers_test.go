package workflows

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PolarWolf314/rimu/internal/keys"
	logger "github.com/PolarWolf314/rimu/internal/logging"

	"github.com/stretchr/testify/require"
)

const testPassphrase = "correct horse battery staple"

func loggerForTest() logger.Logger {
	return logger.Logger{Out: io.Discard, Err: io.Discard}
}

// device is one checkout sharing a store with other checkouts.
type device struct {
	t    *testing.T
	root string
	name string
}

func (d device) opts() RepoOptions {
	return RepoOptions{
		Root:       d.root,
		Passphrase: []byte(testPassphrase),
		Floor:      keys.TestParams,
		Logger:     loggerForTest(),
	}
}

// newStore returns a directory to share between devices.
func newStore(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "store")
}

func initDevice(t *testing.T, store, name string) device {
	t.Helper()
	d := device{t: t, root: t.TempDir(), name: name}
	_, err := Init(context.Background(), InitOptions{
		Root:        d.root,
		DeviceName:  name,
		StoragePath: store,
		Passphrase:  []byte(testPassphrase),
		KDF:         keys.TestParams,
		Floor:       keys.TestParams,
		Logger:      loggerForTest(),
	})
	require.NoError(t, err)
	return d
}

var clock atomic.Int64

// write creates rel with content and a modification time no other write shares.
func (d device) write(rel, content string) {
	d.t.Helper()
	path := filepath.Join(d.root, filepath.FromSlash(rel))
	require.NoError(d.t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(d.t, os.WriteFile(path, []byte(content), 0600))
	bump := time.Now().Add(time.Duration(clock.Add(1)) * time.Second)
	require.NoError(d.t, os.Chtimes(path, bump, bump))
}

func (d device) read(rel string) string {
	d.t.Helper()
	data, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(rel)))
	require.NoError(d.t, err)
	return string(data)
}

func (d device) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(d.root, filepath.FromSlash(rel)))
	return err == nil
}

func (d device) remove(rel string) {
	d.t.Helper()
	require.NoError(d.t, os.Remove(filepath.Join(d.root, filepath.FromSlash(rel))))
}

func (d device) push() *PushResult {
	d.t.Helper()
	res, err := Push(context.Background(), PushOptions{RepoOptions: d.opts()})
	require.NoError(d.t, err)
	return res
}

func (d device) pull() *PullResult {
	d.t.Helper()
	res, err := Pull(context.Background(), PullOptions{RepoOptions: d.opts()})
	require.NoError(d.t, err)
	return res
}
