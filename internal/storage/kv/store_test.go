package kv_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vaultmind/memcore/internal/storage"
	"github.com/vaultmind/memcore/internal/storage/kv"
	"github.com/vaultmind/memcore/pkg/types"
)

func newStore(t *testing.T) *kv.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := kv.NewWithClient(client)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func newMemory(id, tenant, agent string, tags ...string) *types.Memory {
	now := time.Now().UTC()
	return &types.Memory{
		ID:         id,
		TenantID:   tenant,
		AgentID:    agent,
		Type:       types.TypeFact,
		Content:    "hello redis",
		Embedding:  []float32{1, 2, 3},
		Importance: 0.7,
		Tags:       tags,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestStore_StoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	mem := newMemory("m1", "t1", "a1", "work")
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

func TestStore_DeleteRemovesFromIndices(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	mem := newMemory("m1", "t1", "a1", "work")
	require.NoError(t, s.StoreMemory(ctx, mem))
	require.NoError(t, s.DeleteMemory(ctx, "m1"))

	_, err := s.Retrieve(ctx, "m1")
	require.True(t, types.IsKind(err, types.KindNotFound))

	results, err := s.List(ctx, storage.Filters{AgentID: "a1"})
	require.NoError(t, err)
	require.Len(t, results, 0)
}

func TestStore_ListByAgent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.StoreMemory(ctx, newMemory("a", "t1", "agent-1")))
	require.NoError(t, s.StoreMemory(ctx, newMemory("b", "t1", "agent-2")))

	results, err := s.List(ctx, storage.Filters{AgentID: "agent-1"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].ID)
}

func TestStore_BulkStoreThenCount(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	batch := []*types.Memory{
		newMemory("a", "t1", "agent-1"),
		newMemory("b", "t1", "agent-1"),
	}
	require.NoError(t, s.BulkStore(ctx, batch))

	count, err := s.Count(ctx, storage.Filters{AgentID: "agent-1"})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestStore_Health(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	report := s.Health(ctx)
	require.Equal(t, types.HealthHealthy, report.Status)
}
