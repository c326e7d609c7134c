package chunks

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/PolarWolf314/rimu/internal/backend"
	"github.com/PolarWolf314/rimu/internal/envelope"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/keys"
	logger "github.com/PolarWolf314/rimu/internal/logging"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// tokenSize is the length of the random key context of a private chunk.
const tokenSize = 32

// Options configures a Store.
type Options struct {
	Backend backend.Backend
	Session *keys.Session
	Cipher  envelope.Cipher
	Split   SplitOptions

	// Parallelism bounds concurrent chunk operations in PutFile and ReadFile.
	// Zero means 4.
	Parallelism int

	Logger logger.Logger
}

// Stats counts what a Store did since it was created.
type Stats struct {
	Stored     int64
	Deduped    int64
	BytesIn    int64
	BytesSaved int64
}

// Store is a content-addressed chunk store. It is safe for concurrent use.
type Store struct {
	backend  backend.Backend
	session  *keys.Session
	cipher   envelope.Cipher
	splitter *Splitter
	workers  int
	log      logger.Logger

	flight singleflight.Group

	mu      sync.Mutex
	known   map[ID]struct{}
	written map[ID]struct{}

	stored, deduped, bytesIn, bytesSaved atomic.Int64
}

// NewStore returns a Store writing to opts.Backend with keys from opts.Session.
func NewStore(opts Options) (*Store, error) {
	if opts.Backend == nil || opts.Session == nil {
		return nil, fmt.Errorf("chunk store needs a backend and a key session")
	}
	if opts.Split == (SplitOptions{}) {
		opts.Split = DefaultSplitOptions
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 4
	}

	splitter, err := NewSplitter(opts.Session.Root(), opts.Split)
	if err != nil {
		return nil, err
	}

	return &Store{
		backend:  opts.Backend,
		session:  opts.Session,
		cipher:   opts.Cipher,
		splitter: splitter,
		workers:  opts.Parallelism,
		log:      opts.Logger,
		known:    make(map[ID]struct{}),
		written:  make(map[ID]struct{}),
	}, nil
}

// Hash returns the content ID of data. It is keyed, so IDs from different
// users never coincide and cannot be confirmed without the key.
func (s *Store) Hash(data []byte) (ID, error) {
	var id ID

	k, err := s.session.Key(keys.LabelContentID)
	if err != nil {
		return id, err
	}
	h, err := blake3.NewKeyed(k.Bytes())
	if err != nil {
		return id, fmt.Errorf("%w: %v", kerrors.ErrKeyDerivation, err)
	}
	_, _ = h.Write(data)
	h.Sum(id[:0])
	return id, nil
}

// Put stores data and returns its reference. Identical data is encrypted
// and uploaded at most once, including under concurrent callers.
func (s *Store) Put(ctx context.Context, data []byte) (Ref, error) {
	id, err := s.Hash(data)
	if err != nil {
		return Ref{}, err
	}
	ref := Ref{ID: id}
	s.bytesIn.Add(int64(len(data)))

	if s.isKnown(id) {
		s.dedup(len(data))
		return ref, nil
	}

	_, err, shared := s.flight.Do(id.String(), func() (any, error) {
		if s.isKnown(id) {
			return nil, nil
		}
		return nil, s.store(ctx, id, data)
	})
	if err != nil {
		return Ref{}, &kerrors.ChunkError{ID: id.String(), Err: err}
	}
	if shared {
		s.dedup(len(data))
	}
	return ref, nil
}

func (s *Store) store(ctx context.Context, id ID, data []byte) error {
	exists, err := s.backend.Has(ctx, id.Key())
	if err != nil {
		return err
	}
	if exists {
		s.log.Debugf("chunk %s already stored", id.Short())
		s.markKnown(id, false)
		s.dedup(len(data))
		return nil
	}

	key, err := s.chunkKey(id)
	if err != nil {
		return err
	}
	defer key.Destroy()

	env, err := s.cipher.Seal(key, data, id[:])
	if err != nil {
		return err
	}
	blob, err := env.MarshalBinary()
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, id.Key(), blob); err != nil {
		return err
	}

	s.log.Debugf("stored chunk %s (%d bytes)", id.Short(), len(data))
	s.markKnown(id, true)
	s.stored.Add(1)
	return nil
}

// PutPrivate stores data without deduplication. The envelope uses a random
// nonce and a per-chunk random key context, and its address is the hash of
// the envelope, so storing the same data twice yields unrelated objects.
func (s *Store) PutPrivate(ctx context.Context, data []byte) (Ref, error) {
	token := make([]byte, tokenSize)
	if _, err := rand.Read(token); err != nil {
		return Ref{}, fmt.Errorf("generating chunk token: %w", err)
	}

	key, err := s.privateKey(token)
	if err != nil {
		return Ref{}, err
	}
	defer key.Destroy()

	env, err := s.cipher.SealRandom(key, data, token)
	if err != nil {
		return Ref{}, err
	}
	blob, err := env.MarshalBinary()
	if err != nil {
		return Ref{}, err
	}

	id := ID(blake3.Sum256(blob))
	if err := s.backend.Put(ctx, id.Key(), blob); err != nil {
		return Ref{}, &kerrors.ChunkError{ID: id.String(), Err: err}
	}

	s.bytesIn.Add(int64(len(data)))
	s.markKnown(id, true)
	s.stored.Add(1)
	return Ref{ID: id, Private: true}, nil
}

// Get returns the plaintext of ref. Missing chunks match ErrNotFound; any
// tampering matches ErrAuthentication. No plaintext is returned on failure.
func (s *Store) Get(ctx context.Context, ref Ref) ([]byte, error) {
	blob, err := s.backend.Get(ctx, ref.ID.Key())
	if err != nil {
		return nil, &kerrors.ChunkError{ID: ref.ID.String(), Err: err}
	}

	var plaintext []byte
	if ref.Private {
		plaintext, err = s.openPrivate(ref.ID, blob)
	} else {
		plaintext, err = s.open(ref.ID, blob)
	}
	if err != nil {
		return nil, &kerrors.ChunkError{ID: ref.ID.String(), Err: err}
	}
	return plaintext, nil
}

func (s *Store) open(id ID, blob []byte) ([]byte, error) {
	env, err := envelope.Parse(blob)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(env.AssociatedData, id[:]) {
		return nil, fmt.Errorf("%w: envelope bound to a different chunk", kerrors.ErrAuthentication)
	}

	key, err := s.chunkKey(id)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	plaintext, err := s.cipher.Open(key, env)
	if err != nil {
		return nil, err
	}

	got, err := s.Hash(plaintext)
	if err != nil {
		return nil, err
	}
	if got != id {
		keys.WipeBytes(plaintext)
		return nil, fmt.Errorf("%w: content hash mismatch", kerrors.ErrAuthentication)
	}
	return plaintext, nil
}

func (s *Store) openPrivate(id ID, blob []byte) ([]byte, error) {
	if ID(blake3.Sum256(blob)) != id {
		return nil, fmt.Errorf("%w: envelope hash mismatch", kerrors.ErrAuthentication)
	}
	env, err := envelope.Parse(blob)
	if err != nil {
		return nil, err
	}
	if len(env.AssociatedData) != tokenSize {
		return nil, fmt.Errorf("%w: malformed private chunk", kerrors.ErrAuthentication)
	}

	key, err := s.privateKey(env.AssociatedData)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()

	return s.cipher.Open(key, env)
}

// Has reports whether ref is present in the backend.
func (s *Store) Has(ctx context.Context, ref Ref) (bool, error) {
	if s.isKnown(ref.ID) {
		return true, nil
	}
	return s.backend.Has(ctx, ref.ID.Key())
}

// Split cuts data into content-defined chunks.
func (s *Store) Split(data []byte) ([][]byte, error) {
	return s.splitter.SplitBytes(data)
}

// PutFile splits r and stores every chunk. It returns the ordered chunk
// references and the total size. Chunks are encrypted and uploaded in
// parallel; the order of the result follows the order in r.
func (s *Store) PutFile(ctx context.Context, r io.Reader, private bool) ([]Ref, int64, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	var (
		mu   sync.Mutex
		refs []Ref
		size int64
	)

	err := s.splitter.Split(r, func(chunk []byte) error {
		if err := gctx.Err(); err != nil {
			return err
		}

		data := append([]byte(nil), chunk...)
		mu.Lock()
		idx := len(refs)
		refs = append(refs, Ref{})
		size += int64(len(data))
		mu.Unlock()

		g.Go(func() error {
			var (
				ref Ref
				err error
			)
			if private {
				ref, err = s.PutPrivate(gctx, data)
			} else {
				ref, err = s.Put(gctx, data)
			}
			if err != nil {
				return err
			}
			mu.Lock()
			refs[idx] = ref
			mu.Unlock()
			return nil
		})
		return nil
	})
	if werr := g.Wait(); werr != nil {
		return nil, 0, werr
	}
	if err != nil {
		return nil, 0, err
	}
	return refs, size, nil
}

// ReadFile fetches refs in parallel and writes the plaintext to w in order.
// Nothing is written unless every chunk verifies.
func (s *Store) ReadFile(ctx context.Context, refs []Ref, w io.Writer) (int64, error) {
	parts := make([][]byte, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, ref := range refs {
		g.Go(func() error {
			data, err := s.Get(gctx, ref)
			if err != nil {
				return err
			}
			parts[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var n int64
	for _, p := range parts {
		written, err := w.Write(p)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// List returns the IDs of every chunk in the backend.
func (s *Store) List(ctx context.Context) ([]ID, error) {
	keys, err := s.backend.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}

	ids := make([]ID, 0, len(keys))
	for _, k := range keys {
		id, err := IDFromKey(k)
		if err != nil {
			s.log.Warnf("skipping foreign object %s", k)
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() Stats {
	return Stats{
		Stored:     s.stored.Load(),
		Deduped:    s.deduped.Load(),
		BytesIn:    s.bytesIn.Load(),
		BytesSaved: s.bytesSaved.Load(),
	}
}

func (s *Store) chunkKey(id ID) (*keys.DerivedKey, error) {
	master, err := s.session.Key(keys.LabelChunkEncryption)
	if err != nil {
		return nil, err
	}
	return keys.Derive(master, keys.LabelChunkEncryption, id[:])
}

func (s *Store) privateKey(token []byte) (*keys.DerivedKey, error) {
	master, err := s.session.Key(keys.LabelChunkPrivate)
	if err != nil {
		return nil, err
	}
	return keys.Derive(master, keys.LabelChunkPrivate, token)
}

func (s *Store) isKnown(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.known[id]
	return ok
}

func (s *Store) markKnown(id ID, written bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known[id] = struct{}{}
	if written {
		s.written[id] = struct{}{}
	}
}

func (s *Store) forget(id ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.known, id)
}

func (s *Store) writtenThisSession(id ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.written[id]
	return ok
}

func (s *Store) dedup(n int) {
	s.deduped.Add(1)
	s.bytesSaved.Add(int64(n))
}

// IsMissing reports whether err means a chunk is absent rather than corrupt.
func IsMissing(err error) bool {
	return errors.Is(err, kerrors.ErrNotFound)
}
