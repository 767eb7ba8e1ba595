package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
)

// JSONMap is a string-keyed map mirrored to one JSON file. Every change
// rewrites the file; a failed write leaves memory untouched.
type JSONMap[V any] struct {
	path string
	perm os.FileMode

	mu    sync.RWMutex
	items map[string]V
}

// OpenJSONMap loads path into memory. A missing or empty file is an empty map.
func OpenJSONMap[V any](path string, perm os.FileMode) (*JSONMap[V], error) {
	if perm == 0 {
		perm = 0o600
	}
	m := &JSONMap[V]{path: path, perm: perm, items: map[string]V{}}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &m.items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if m.items == nil {
		m.items = map[string]V{}
	}
	return m, nil
}

// Get returns the value stored under key.
func (m *JSONMap[V]) Get(key string) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok
}

// Keys returns the stored keys in sorted order.
func (m *JSONMap[V]) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set stores value under key and persists.
func (m *JSONMap[V]) Set(key string, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.items[key]
	m.items[key] = value
	if err := m.flushLocked(); err != nil {
		if had {
			m.items[key] = prev
		} else {
			delete(m.items, key)
		}
		return err
	}
	return nil
}

// Delete removes key and persists. Missing keys do not touch the file.
func (m *JSONMap[V]) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.items[key]
	if !had {
		return nil
	}
	delete(m.items, key)
	if err := m.flushLocked(); err != nil {
		m.items[key] = prev
		return err
	}
	return nil
}

func (m *JSONMap[V]) flushLocked() error {
	data, err := json.MarshalIndent(m.items, "", "  ")
	if err != nil {
		return err
	}
	return AtomicWrite(m.path, append(data, '\n'), m.perm)
}
