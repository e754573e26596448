package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Metadata records where a cached payload came from.
type Metadata struct {
	// URL is the original request URL (not the normalized key).
	URL string `yaml:"url"`
	// ContentType is the reported payload media type, when known.
	ContentType string `yaml:"content_type,omitempty"`
	// Size is the stored payload size in bytes.
	Size int64 `yaml:"size"`
	// FetchedAt is when the payload was stored.
	FetchedAt time.Time `yaml:"fetched_at"`
}

// Store is the minimal cache contract the downloader depends on.
// Implementations own their entries; nothing in this system evicts.
type Store interface {
	// DeriveKey normalizes a URL into a stable cache key.
	DeriveKey(rawURL string) string
	// Get returns a readable path to the cached payload for the key.
	Get(key string) (string, bool)
	// Put stores the payload under the key.
	Put(key string, payload io.Reader, meta Metadata) error
}

// signedParamPrefix marks the time-limited authentication query parameters
// cloud storage appends to otherwise-identical object URLs.
const signedParamPrefix = "x-amz-"

// DeriveKey normalizes a URL into a cache key. For recognized cloud-storage
// hosts the signed-request query parameters are stripped so that two signed
// URLs for the same object produce the same key; every other URL is returned
// verbatim.
func DeriveKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if !isCloudStorageHost(u.Host) {
		return rawURL
	}

	query := u.Query()
	for name := range query {
		if strings.HasPrefix(strings.ToLower(name), signedParamPrefix) {
			query.Del(name)
		}
	}

	u.RawQuery = query.Encode()

	return u.String()
}

// isCloudStorageHost reports whether the host serves signed storage URLs.
func isCloudStorageHost(host string) bool {
	host = strings.ToLower(host)

	return strings.HasSuffix(host, "amazonaws.com") ||
		strings.HasSuffix(host, "githubusercontent.com")
}

// FileStore is a process-wide on-disk content cache shared across runs.
// Payloads are keyed by the SHA-256 of the normalized URL, with a YAML
// metadata sidecar per entry. The store assumes a single installer process
// per directory; there is no locking and no eviction.
type FileStore struct {
	dir string
}

// NewFileStore creates the cache directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return &FileStore{dir: dir}, nil
}

// DeriveKey normalizes a URL into a stable cache key.
func (s *FileStore) DeriveKey(rawURL string) string {
	return DeriveKey(rawURL)
}

// Get returns the payload path for the key when present.
func (s *FileStore) Get(key string) (string, bool) {
	path := s.payloadPath(key)

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}

	return path, true
}

// Put stores the payload and its metadata sidecar. The payload is written to
// a temporary file first and renamed into place so readers never observe a
// partial entry.
func (s *FileStore) Put(key string, payload io.Reader, meta Metadata) error {
	tmp, err := os.CreateTemp(s.dir, "entry-*.partial")
	if err != nil {
		return fmt.Errorf("create cache entry: %w", err)
	}

	written, err := io.Copy(tmp, payload)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("write cache entry: %w", err)
	}

	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("close cache entry: %w", err)
	}

	if err = os.Rename(tmp.Name(), s.payloadPath(key)); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("store cache entry: %w", err)
	}

	meta.Size = written
	if meta.FetchedAt.IsZero() {
		meta.FetchedAt = time.Now().UTC()
	}

	data, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshal cache metadata: %w", err)
	}

	if err = os.WriteFile(s.metaPath(key), data, 0o644); err != nil {
		return fmt.Errorf("write cache metadata: %w", err)
	}

	return nil
}

// Meta loads the metadata sidecar for a key, when present.
func (s *FileStore) Meta(key string) (*Metadata, error) {
	data, err := os.ReadFile(s.metaPath(key))
	if err != nil {
		return nil, fmt.Errorf("read cache metadata: %w", err)
	}

	var meta Metadata
	if err = yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal cache metadata: %w", err)
	}

	return &meta, nil
}

func (s *FileStore) payloadPath(key string) string {
	return filepath.Join(s.dir, hashKey(key))
}

func (s *FileStore) metaPath(key string) string {
	return filepath.Join(s.dir, hashKey(key)+".meta.yaml")
}

// hashKey converts a normalized URL into a fixed-length filename.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))

	return hex.EncodeToString(sum[:])
}
