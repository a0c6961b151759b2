package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tarot/backend/internal/config"
)

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID(uuid.NewString()))
	for _, bad := range []string{"", "../etc/passwd", "abc", "{" + uuid.NewString() + "}"} {
		assert.ErrorIs(t, ValidateID(bad), ErrInvalidID, bad)
	}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()

	_, err := store.Load(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	first := Capture(sampleLog(), map[string]any{"total_tokens_used": 5})
	require.NoError(t, store.Save(ctx, id, first))

	got, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first.History.Turns(), got.History.Turns())
	assert.Equal(t, float64(5), got.State["total_tokens_used"])

	log := sampleLog()
	log.AddAssistant("Farewell.")
	require.NoError(t, store.Save(ctx, id, Capture(log, nil)))

	got, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, got.History.Len())
	assert.Empty(t, got.State)

	_, err = store.Load(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, store.Save(ctx, "../escape", first), ErrInvalidID)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	exerciseStore(t, store)

	entries, err := os.ReadDir(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".json", filepath.Ext(entries[0].Name()))
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	id := uuid.NewString()
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte("{not json"), 0o644))

	_, err = store.Load(context.Background(), id)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := Open(ctx, config.StoreConfig{Driver: "memory", CacheSize: 8})
	require.NoError(t, err)
	exerciseStore(t, store)
	assert.NoError(t, closeFn())

	dir := filepath.Join(t.TempDir(), "sessions")
	store, closeFn, err = Open(ctx, config.StoreConfig{Driver: "file", Dir: dir})
	require.NoError(t, err)
	defer closeFn()
	exerciseStore(t, store)

	_, _, err = Open(ctx, config.StoreConfig{Driver: "redis"})
	assert.Error(t, err)
}
