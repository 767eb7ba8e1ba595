// Package kv provides the small persistent key-value store that holds all of
// the engine's durable state: slot pointers, cooldown records, throttle
// stamps, and per-day content caches.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCorrupt reports a stored value that could not be decoded. Callers treat
// it as a cache miss.
var ErrCorrupt = errors.New("kv: corrupt value")

// Store is the persisted key-value contract.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Closer is implemented by stores holding OS resources.
type Closer interface {
	Close() error
}

// LoadJSON decodes the value under key into out. found is false when the key
// is absent; a value that fails to decode yields found=false and ErrCorrupt.
func LoadJSON(ctx context.Context, s Store, key string, out any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it under key.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, string(data))
}

// Open builds a store for the configured driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", driver)
	}
}
