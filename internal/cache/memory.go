package cache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MemoryStore is an in-memory Store substitute for tests. Payloads are
// materialized under a private directory so Get can still hand out paths.
type MemoryStore struct {
	dir     string
	entries map[string]string
	metas   map[string]Metadata
}

// NewMemoryStore creates a fake store rooted at dir (typically t.TempDir()).
func NewMemoryStore(dir string) *MemoryStore {
	return &MemoryStore{
		dir:     dir,
		entries: make(map[string]string),
		metas:   make(map[string]Metadata),
	}
}

// DeriveKey normalizes a URL into a stable cache key.
func (s *MemoryStore) DeriveKey(rawURL string) string {
	return DeriveKey(rawURL)
}

// Get returns the payload path for the key when present.
func (s *MemoryStore) Get(key string) (string, bool) {
	path, ok := s.entries[key]

	return path, ok
}

// Put stores the payload under the key.
func (s *MemoryStore) Put(key string, payload io.Reader, meta Metadata) error {
	path := filepath.Join(s.dir, fmt.Sprintf("mem-%d", len(s.entries)))

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	size, err := io.Copy(f, payload)
	if err != nil {
		f.Close()

		return err
	}

	if err = f.Close(); err != nil {
		return err
	}

	meta.Size = size
	s.entries[key] = path
	s.metas[key] = meta

	return nil
}

// Meta returns the stored metadata for a key.
func (s *MemoryStore) Meta(key string) (Metadata, bool) {
	meta, ok := s.metas[key]

	return meta, ok
}
