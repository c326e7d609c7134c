package keys

import (
	"sync"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
)

// Session owns a RootSecret and the master keys derived from it for the
// lifetime of one sync run. Close wipes everything it owns.
type Session struct {
	mu     sync.Mutex
	root   *RootSecret
	master map[Label]*DerivedKey
	closed bool
}

// NewSession takes ownership of root.
func NewSession(root *RootSecret) *Session {
	return &Session{
		root:   root,
		master: make(map[Label]*DerivedKey),
	}
}

// Key returns the master key for label, deriving it on first use.
// The returned key is owned by the session and must not be destroyed by the caller.
func (s *Session) Key(label Label) (*DerivedKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, kerrors.ErrKeyWiped
	}
	if k, ok := s.master[label]; ok {
		return k, nil
	}

	k, err := Derive(s.root, label, nil)
	if err != nil {
		return nil, err
	}
	s.master[label] = k
	return k, nil
}

// Root returns the session's root secret.
func (s *Session) Root() *RootSecret {
	return s.root
}

// Close wipes the root and every master key. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for label, k := range s.master {
		k.Destroy()
		delete(s.master, label)
	}
	s.root.Destroy()
	s.closed = true
}
