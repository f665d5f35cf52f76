package sqlstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vaultmind/memcore/internal/storage"
	"github.com/vaultmind/memcore/internal/storage/sqlstore"
	"github.com/vaultmind/memcore/pkg/types"
)

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	s, err := sqlstore.Open(sqlstore.DialectSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemory(id, tenant string) *types.Memory {
	now := time.Now().UTC()
	return &types.Memory{
		ID:         id,
		TenantID:   tenant,
		Type:       types.TypeFact,
		Content:    "hello sqlite",
		Embedding:  []float32{1, 2, 3},
		Importance: 0.6,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestStore_StoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	mem := newMemory("m1", "t1")
	require.NoError(t, s.StoreMemory(ctx, mem))

	got, err := s.Retrieve(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, mem.Content, got.Content)
	require.Equal(t, mem.Embedding, got.Embedding)
}

func TestStore_RetrieveMissing(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	_, err := s.Retrieve(ctx, "missing")
	require.True(t, types.IsKind(err, types.KindNotFound))
}

func TestStore_DeleteMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	err := s.DeleteMemory(ctx, "missing")
	require.True(t, types.IsKind(err, types.KindNotFound))
}

func TestStore_ListByTenant(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.StoreMemory(ctx, newMemory("a", "t1")))
	require.NoError(t, s.StoreMemory(ctx, newMemory("b", "t2")))

	results, err := s.List(ctx, storage.Filters{TenantID: "t1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestStore_BulkStoreTransactional(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.BulkStore(ctx, []*types.Memory{newMemory("a", "t1"), newMemory("b", "t1")}))
	count, err := s.Count(ctx, storage.Filters{TenantID: "t1"})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
