package index_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultmind/memcore/internal/index"
	"github.com/vaultmind/memcore/pkg/types"
)

func mem(id string, tags ...string) *types.Memory {
	return &types.Memory{
		ID:        id,
		Type:      types.TypeFact,
		Content:   "the quick brown fox jumps",
		Embedding: []float32{1, 0, 0},
		Tags:      tags,
	}
}

func TestIndexer_InsertThenByTag(t *testing.T) {
	ix := index.New()
	ix.Insert(mem("a", "urgent"))
	ix.Insert(mem("b", "urgent"))

	ids := ix.ByTag("urgent")
	require.Len(t, ids, 2)
}

func TestIndexer_RemoveClearsAllIndices(t *testing.T) {
	ix := index.New()
	m := mem("a", "urgent")
	ix.Insert(m)
	ix.Remove(m)

	require.Len(t, ix.ByTag("urgent"), 0)
	require.Len(t, ix.ByType(types.TypeFact), 0)
	_, ok := ix.Embedding("a")
	require.False(t, ok)
}

func TestIndexer_InsertIsIdempotent(t *testing.T) {
	ix := index.New()
	m := mem("a", "urgent", "urgent")
	ix.Insert(m)
	ix.Insert(m)
	require.Len(t, ix.ByTag("urgent"), 1)
}

func TestIndexer_ReindexAllRebuildsFromScratch(t *testing.T) {
	ix := index.New()
	ix.Insert(mem("stale", "old"))
	ix.ReindexAll([]*types.Memory{mem("a", "new")})

	require.Len(t, ix.ByTag("old"), 0)
	require.Len(t, ix.ByTag("new"), 1)
}

func TestIndexer_TagCounts(t *testing.T) {
	ix := index.New()
	ix.Insert(mem("a", "urgent"))
	ix.Insert(mem("b", "urgent"))
	ix.Remove(mem("a", "urgent"))

	counts := ix.TagCounts()
	require.Equal(t, 1, counts["urgent"])
}
