package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultKey is the storage key the CacheStore blob is saved under.
const DefaultKey = "cacheStore"

// Storage is a key/value blob store the CacheStore is persisted to.
type Storage interface {
	// Load returns (data, true, nil) if key exists, (nil, false, nil) if not.
	Load(key string) ([]byte, bool, error)
	Save(key string, data []byte) error
	Remove(key string) error
}

// Compile-time checks.
var (
	_ Storage = (*FileStorage)(nil)
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*SQLiteStorage)(nil)
)

// ErrInvalidKey indicates a storage key is empty or contains path components.
var ErrInvalidKey = errors.New("cache: invalid storage key")

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || key != filepath.Base(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// FileStorage keeps one JSON file per key under a base directory.
type FileStorage struct {
	baseDir string
}

// NewFileStorage creates a FileStorage rooted at baseDir.
func NewFileStorage(baseDir string) *FileStorage {
	return &FileStorage{baseDir: baseDir}
}

// Save writes data to <baseDir>/<key>.json, replacing the file atomically.
func (s *FileStorage) Save(key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("cache: creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.baseDir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("cache: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("cache: writing %s: %w", p, err)
	}
	return nil
}

// Load reads the blob stored under key.
func (s *FileStorage) Load(key string) ([]byte, bool, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache: reading %s: %w", p, err)
	}
	return data, true, nil
}

// Remove deletes the blob stored under key. Missing keys are not an error.
func (s *FileStorage) Remove(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cache: removing %s: %w", p, err)
	}
	return nil
}

func (s *FileStorage) path(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, key+".json"), nil
}

// MemoryStorage keeps blobs in process memory. It is safe for concurrent use.
type MemoryStorage struct {
	mu    sync.Mutex
	items map[string][]byte
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{items: make(map[string][]byte)}
}

// Save stores a copy of data under key.
func (s *MemoryStorage) Save(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = append([]byte(nil), data...)
	return nil
}

// Load returns a copy of the blob under key.
func (s *MemoryStorage) Load(key string) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

// Remove deletes key.
func (s *MemoryStorage) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}
