package file_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultmind/memcore/internal/storage"
	"github.com/vaultmind/memcore/internal/storage/file"
	"github.com/vaultmind/memcore/pkg/types"
)

func newMemory(id, tenant string) *types.Memory {
	now := time.Now().UTC()
	return &types.Memory{
		ID:         id,
		TenantID:   tenant,
		Type:       types.TypeFact,
		Content:    "hello",
		Embedding:  []float32{1, 0, 0, 0},
		Importance: 0.5,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestStore_StoreAndRetrieveRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := file.New(t.TempDir())
	require.NoError(t, s.Initialize(ctx))

	mem := newMemory("m1", "tenant-a")
	require.NoError(t, s.StoreMemory(ctx, mem))

	got, err := s.Retrieve(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, mem.Content, got.Content)
	require.Equal(t, mem.TenantID, got.TenantID)
	require.Equal(t, mem.Embedding, got.Embedding)
}

func TestStore_RetrieveMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := file.New(t.TempDir())
	require.NoError(t, s.Initialize(ctx))

	_, err := s.Retrieve(ctx, "missing")
	require.Error(t, err)
	require.True(t, types.IsKind(err, types.KindNotFound))
}

func TestStore_DeleteRemovesRecord(t *testing.T) {
	ctx := context.Background()
	s := file.New(t.TempDir())
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.StoreMemory(ctx, newMemory("m1", "tenant-a")))

	require.NoError(t, s.DeleteMemory(ctx, "m1"))
	_, err := s.Retrieve(ctx, "m1")
	require.True(t, types.IsKind(err, types.KindNotFound))
}

func TestStore_ListFiltersByTenant(t *testing.T) {
	ctx := context.Background()
	s := file.New(t.TempDir())
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.StoreMemory(ctx, newMemory("a", "t1")))
	require.NoError(t, s.StoreMemory(ctx, newMemory("b", "t2")))

	results, err := s.List(ctx, storage.Filters{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].ID)
}

func TestStore_BulkStoreAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := file.New(t.TempDir())
	require.NoError(t, s.Initialize(ctx))

	batch := []*types.Memory{newMemory("m1", "t1"), newMemory("m2", "t1")}
	require.NoError(t, s.BulkStore(ctx, batch))

	count, err := s.Count(ctx, storage.Filters{TenantID: "t1"})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestStore_ClearTenantOnly(t *testing.T) {
	ctx := context.Background()
	s := file.New(t.TempDir())
	require.NoError(t, s.Initialize(ctx))
	require.NoError(t, s.StoreMemory(ctx, newMemory("a", "t1")))
	require.NoError(t, s.StoreMemory(ctx, newMemory("b", "t2")))

	require.NoError(t, s.Clear(ctx, "t1"))

	count, err := s.Count(ctx, storage.Filters{})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
