package storage

import (
	"bytes"
	"sync"
)

// MemoryStore keeps values for the lifetime of the process only.
type MemoryStore struct {
	items sync.Map
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get(key string) ([]byte, error) {
	if value, ok := m.items.Load(key); ok {
		return bytes.Clone(value.([]byte)), nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.items.Store(key, bytes.Clone(value))
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
