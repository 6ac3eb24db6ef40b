package storage

import (
	"encoding/json"
	"fmt"

	"github.com/sasha-s/go-deadlock"
	"github.com/zarlcorp/core/pkg/zstore"
)

// record wraps a JSON payload so heterogeneous values share one collection.
type record struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

type zstoreBackend struct {
	col *zstore.Collection[record]
}

func (b *zstoreBackend) Read(key string) ([]byte, error) {
	rec, err := b.col.Get(key)
	if err != nil {
		// zstore does not distinguish a missing key from a read failure
		ok, lerr := b.has(key)
		if lerr == nil && !ok {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return rec.Data, nil
}

func (b *zstoreBackend) Write(key string, data []byte) error {
	return b.col.Put(key, record{Key: key, Data: data})
}

func (b *zstoreBackend) Remove(key string) error {
	ok, err := b.has(key)
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	if !ok {
		return ErrNotFound
	}
	return b.col.Delete(key)
}

func (b *zstoreBackend) has(key string) (bool, error) {
	recs, err := b.col.List()
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.Key == key {
			return true, nil
		}
	}
	return false, nil
}

// MemoryBackend keeps records in a map.
type MemoryBackend struct {
	mu   deadlock.RWMutex
	data map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Read(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), d...), nil
}

func (m *MemoryBackend) Write(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryBackend) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.data[key]; !ok {
		return ErrNotFound
	}
	delete(m.data, key)
	return nil
}

// Len returns the number of stored records.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
