package kv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	file, err := NewFileStore(filepath.Join(dir, "state.json"))
	require.NoError(t, err)

	sqlite, err := NewSQLiteStore(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   file,
		"sqlite": sqlite,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, "notification:morning")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Set(ctx, "notification:morning", "n-1"))
			require.NoError(t, store.Set(ctx, "notification:morning", "n-2"))

			v, ok, err := store.Get(ctx, "notification:morning")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "n-2", v)

			require.NoError(t, store.Remove(ctx, "notification:morning"))
			require.NoError(t, store.Remove(ctx, "notification:morning"))
			_, ok, err = store.Get(ctx, "notification:morning")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	first, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "lastFullRescheduleTimestamp", "2026-10-18T07:00:00Z"))

	second, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok, err := second.Get(ctx, "lastFullRescheduleTimestamp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2026-10-18T07:00:00Z", v)
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o600))
	_, err := NewFileStore(path)
	assert.Error(t, err)
}

func TestSQLiteStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "lastStoreDetection", `{"category":"pharmacy"}`))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()
	v, ok, err := second.Get(ctx, "lastStoreDetection")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"category":"pharmacy"}`, v)
}

func TestLoadJSONTreatsCorruptValueAsMiss(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, "foodAnalysis", "not-json"))

	var out struct{ Pattern string }
	found, err := LoadJSON(ctx, store, "foodAnalysis", &out)
	assert.False(t, found)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestSaveAndLoadJSON(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	type record struct {
		Category string  `json:"category"`
		Lat      float64 `json:"lat"`
	}
	require.NoError(t, SaveJSON(ctx, store, "lastStoreDetection", record{Category: "grocery", Lat: 37.5}))

	var out record
	found, err := LoadJSON(ctx, store, "lastStoreDetection", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, record{Category: "grocery", Lat: 37.5}, out)

	found, err = LoadJSON(ctx, store, "missing", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestOpenDrivers(t *testing.T) {
	s, err := Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open("redis", "")
	assert.Error(t, err)

	_, err = Open("file", "")
	assert.Error(t, err)
}
