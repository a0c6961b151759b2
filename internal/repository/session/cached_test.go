package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*MemoryStore
	loads int
}

func (s *countingStore) Load(ctx context.Context, id string) (Snapshot, error) {
	s.loads++
	return s.MemoryStore.Load(ctx, id)
}

func TestCachedStoreServesFromCache(t *testing.T) {
	origin := &countingStore{MemoryStore: NewMemoryStore()}
	store, err := NewCachedStore(origin, 8)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, store.Save(ctx, id, Capture(sampleLog(), nil)))

	for i := 0; i < 3; i++ {
		snap, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 3, snap.History.Len())
	}
	assert.Zero(t, origin.loads)

	store.Forget(id)
	_, err = store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, origin.loads)
}

func TestCachedStoreReturnsIndependentCopies(t *testing.T) {
	store, err := NewCachedStore(NewMemoryStore(), 8)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, store.Save(ctx, id, Capture(sampleLog(), nil)))

	snap, err := store.Load(ctx, id)
	require.NoError(t, err)
	snap.History.AddUser("not saved")

	again, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, again.History.Len())
}

func TestCachedStoreSurvivesForgetAfterSave(t *testing.T) {
	store, err := NewCachedStore(NewMemoryStore(), 8)
	require.NoError(t, err)

	ctx := context.Background()
	id := uuid.NewString()
	require.NoError(t, store.Save(ctx, id, Capture(sampleLog(), map[string]any{"started_chat": true})))
	store.Forget(id)

	snap, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, true, snap.State["started_chat"])
}
