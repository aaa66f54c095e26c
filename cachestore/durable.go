package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Durable is the persisted tier of the store.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: callers swallow every error; implementations should still
//     return them so degradation can be logged.
type Durable interface {
	// Load retrieves the entry for key. Returns (zero, false, nil) on miss.
	Load(key string) (Entry, bool, error)

	// Store persists the entry under key.
	Store(key string, entry Entry) error

	// Delete removes the entry. Idempotent - no error on miss.
	Delete(key string) error

	// Clear removes every entry written by this tier.
	Clear() error
}

// ScopeRecorder is implemented by durable tiers that can persist the last
// known session scope across restarts.
type ScopeRecorder interface {
	SaveLastScope(scope string) error
	LastScope() (string, error)
}

// NopDurable is a Durable that persists nothing. Every Load misses.
type NopDurable struct{}

func (NopDurable) Load(string) (Entry, bool, error) { return Entry{}, false, nil }
func (NopDurable) Store(string, Entry) error        { return nil }
func (NopDurable) Delete(string) error              { return nil }
func (NopDurable) Clear() error                     { return nil }

// filePrefix namespaces this store's files inside a possibly shared directory.
const filePrefix = "rentsync-"

// scopeFile holds the last known session scope for warm starts.
const scopeFile = filePrefix + "scope"

// FileStore is a Durable backed by one JSON file per entry, the local
// analogue of the browser's persisted storage.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("cachestore: dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cachestore: create dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Load reads and decodes the entry file for key.
// A corrupt file reads as an error, which the Store treats as a miss.
func (f *FileStore) Load(key string) (Entry, bool, error) {
	raw, err := os.ReadFile(f.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("cachestore: read entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("cachestore: decode entry: %w", err)
	}
	return entry, true, nil
}

// Store encodes and writes the entry file for key.
func (f *FileStore) Store(key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cachestore: encode entry: %w", err)
	}
	if err := os.WriteFile(f.path(key), raw, 0o644); err != nil {
		return fmt.Errorf("cachestore: write entry: %w", err)
	}
	return nil
}

// Delete removes the entry file for key.
func (f *FileStore) Delete(key string) error {
	err := os.Remove(f.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cachestore: delete entry: %w", err)
	}
	return nil
}

// Clear removes every file this store wrote, leaving foreign files alone.
func (f *FileStore) Clear() error {
	names, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("cachestore: list dir: %w", err)
	}

	var errs []error
	for _, d := range names {
		if d.IsDir() || !strings.HasPrefix(d.Name(), filePrefix) {
			continue
		}
		if d.Name() == scopeFile {
			continue // Warm-start scope survives a cache clear
		}
		if err := os.Remove(filepath.Join(f.dir, d.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveLastScope persists the last known session scope for warm starts.
func (f *FileStore) SaveLastScope(scope string) error {
	if err := os.WriteFile(filepath.Join(f.dir, scopeFile), []byte(scope), 0o644); err != nil {
		return fmt.Errorf("cachestore: write scope: %w", err)
	}
	return nil
}

// LastScope returns the persisted session scope, or "" when none is known.
func (f *FileStore) LastScope() (string, error) {
	raw, err := os.ReadFile(filepath.Join(f.dir, scopeFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("cachestore: read scope: %w", err)
	}
	return string(raw), nil
}

// path maps a cache key to a stable filename. Keys carry scope and locator
// material that is unsafe in filenames, so the key is hashed.
func (f *FileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, filePrefix+hex.EncodeToString(sum[:8])+".json")
}

// Ensure FileStore implements Durable
var _ Durable = (*FileStore)(nil)
