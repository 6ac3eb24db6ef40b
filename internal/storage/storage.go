// Package storage persists mocaport session state as namespaced JSON records.
// On disk the records live in a zstore collection encrypted with the
// master password.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/core/pkg/zfilesystem"
	"github.com/zarlcorp/core/pkg/zstore"
)

// Persisted namespaces.
const (
	KeyIdentity    = "identity"
	KeyCredentials = "credentials"
	KeyReputation  = "reputation-cache"
)

// Namespaces lists every key logout must clear.
var Namespaces = []string{KeyIdentity, KeyCredentials, KeyReputation}

const collectionName = "state"

// MinPasswordLen is the shortest master password accepted for a new vault.
const MinPasswordLen = 8

// ErrNotFound is returned by a Backend when a key holds no record.
var ErrNotFound = errors.New("record not found")

// Backend reads and writes raw record payloads.
type Backend interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Remove(key string) error
}

// Store encodes values as JSON records on a Backend.
type Store struct {
	mu      deadlock.Mutex
	backend Backend
	closer  func() error
}

// New wraps a backend.
func New(b Backend) *Store {
	return &Store{backend: b}
}

// NewMemory returns a store that keeps records in memory only.
func NewMemory() *Store {
	return New(NewMemoryBackend())
}

// Initialized reports whether dir already holds an encrypted vault.
func Initialized(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "salt"))
	return err == nil
}

// Open opens or initializes the encrypted store in dir.
func Open(dir, password string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("open storage: create data dir: %w", err)
	}
	return OpenFS(zfilesystem.NewOSFileSystem(dir), password)
}

// OpenFS opens the encrypted store on fsys. A wrong password surfaces as
// zstore.ErrWrongPassword.
func OpenFS(fsys zfilesystem.ReadWriteFileFS, password string) (*Store, error) {
	zs, err := zstore.Open(fsys, []byte(password))
	if err != nil {
		return nil, err
	}

	col, err := zstore.NewCollection[record](zs, collectionName)
	if err != nil {
		zs.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	s := New(&zstoreBackend{col: col})
	s.closer = func() error {
		zs.Close()
		return nil
	}
	return s, nil
}

// Load decodes the record under key into v. A missing key reports
// found=false with a nil error.
func (s *Store) Load(key string, v any) (bool, error) {
	s.mu.Lock()
	data, err := s.backend.Read(key)
	s.mu.Unlock()

	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("load %s: decode: %w", key, err)
	}
	return true, nil
}

// Save encodes v and writes it under key.
func (s *Store) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("save %s: encode: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Write(key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Delete removes the record under key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.backend.Remove(key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying store.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	err := s.closer()
	s.closer = nil
	return err
}
