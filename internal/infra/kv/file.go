package kv

import (
	"context"
	"fmt"

	"nudge/internal/infra/filestore"
)

// FileStore persists all keys in one JSON document, rewritten atomically on
// every mutation.
type FileStore struct {
	items *filestore.JSONMap[string]
}

// NewFileStore loads (or lazily creates) the JSON document at path. A corrupt
// document is reported rather than silently discarded.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("kv: file store requires a path")
	}
	items, err := filestore.OpenJSONMap[string](path, 0o600)
	if err != nil {
		return nil, fmt.Errorf("kv: load %s: %w", path, err)
	}
	return &FileStore{items: items}, nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.items.Get(key)
	return v, ok, nil
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	if err := s.items.Set(key, value); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	if err := s.items.Delete(key); err != nil {
		return fmt.Errorf("kv: remove %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in sorted order.
func (s *FileStore) Keys() []string {
	return s.items.Keys()
}
