package backend

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process backend, used for tests and dry runs.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	puts  map[string]int

	// FailNext, when non-nil, is consulted before every operation. A non-nil
	// return value is reported instead of performing the operation.
	FailNext func(op, key string) error
}

func NewMemory() *Memory {
	return &Memory{
		blobs: make(map[string][]byte),
		puts:  make(map[string]int),
	}
}

func (m *Memory) fail(op, key string) error {
	m.mu.RLock()
	f := m.FailNext
	m.mu.RUnlock()
	if f == nil {
		return nil
	}
	return f(op, key)
}

func (m *Memory) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := m.fail("put", key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = append([]byte(nil), data...)
	m.puts[key]++
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := m.fail("get", key); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, notFound(key)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Has(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	if err := m.fail("has", key); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok, nil
}

func (m *Memory) List(ctx context.Context, prefix string) ([]string, error) {
	if err := m.fail("list", prefix); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.blobs {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := m.fail("delete", key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

func (m *Memory) Close() error { return nil }

// PutCount returns how many times key was written.
func (m *Memory) PutCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts[key]
}

// Set overwrites a stored value directly, bypassing counters. Tests use it
// to simulate tampering by the storage provider.
func (m *Memory) Set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = data
}
